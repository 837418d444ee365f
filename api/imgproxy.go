package api

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liveshelf/liveshelf/imgcache"
	"github.com/liveshelf/liveshelf/metrics"
)

const (
	// imageFetchTimeout bounds the upstream image fetch.
	imageFetchTimeout = 4 * time.Second

	// imageCacheControl marks proxied images publicly cacheable for 30 days
	// at both the browser and the edge.
	imageCacheControl = "public, s-maxage=2592000, max-age=2592000"
)

// handleImageProxy serves preview images through the application origin so
// pages never hot-link upstream hosts. Only https targets are accepted, which
// keeps the proxy from being used to probe internal plaintext endpoints.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rawURL := r.URL.Query().Get("u")
	if rawURL == "" {
		metrics.ImageProxyRequests.WithLabelValues("bad_request").Inc()
		respondError(w, http.StatusBadRequest, "u is required")
		return
	}

	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme != "https" || target.Host == "" {
		metrics.ImageProxyRequests.WithLabelValues("bad_request").Inc()
		respondError(w, http.StatusBadRequest, "invalid image url")
		return
	}

	key := imgcache.Key(target.String())
	if entry, err := s.cache.Get(r.Context(), key); err == nil {
		metrics.ImageProxyRequests.WithLabelValues("hit").Inc()
		serveImage(w, entry)
		return
	} else if err != imgcache.ErrNotFound {
		s.logger.Warn("image cache lookup failed", "error", err)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		metrics.ImageProxyRequests.WithLabelValues("bad_request").Inc()
		respondError(w, http.StatusBadRequest, "invalid image url")
		return
	}

	resp, err := s.imageClient.Do(req)
	if err != nil {
		metrics.ImageProxyRequests.WithLabelValues("upstream_error").Inc()
		respondError(w, http.StatusBadGateway, "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ImageProxyRequests.WithLabelValues("upstream_error").Inc()
		respondError(w, http.StatusBadGateway, "failed to fetch image")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		metrics.ImageProxyRequests.WithLabelValues("not_image").Inc()
		respondError(w, http.StatusBadRequest, "not an image")
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ImageProxyRequests.WithLabelValues("upstream_error").Inc()
		respondError(w, http.StatusBadGateway, "failed to read image")
		return
	}

	entry := &imgcache.Entry{Data: data, ContentType: contentType}

	// A failed cache write costs a re-fetch later, nothing more.
	if err := s.cache.Put(r.Context(), key, entry); err != nil {
		s.logger.Warn("image cache write failed", "error", err)
	}

	metrics.ImageProxyRequests.WithLabelValues("miss").Inc()
	serveImage(w, entry)
}

func serveImage(w http.ResponseWriter, entry *imgcache.Entry) {
	contentType := entry.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", imageCacheControl)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write(entry.Data)
}
