// Package liveshelf implements the broadcast preview-fetch pipeline: given
// a target URL it produces OpenGraph/Twitter-card style metadata under hard
// time and size bounds. Social-platform URLs are delegated to a rendering
// API because their metadata is only exposed after script execution; every
// other origin is fetched directly and parsed from at most the first 2 MiB
// of HTML.
package liveshelf

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/liveshelf/liveshelf/metrics"
	"github.com/liveshelf/liveshelf/microlink"
	"github.com/liveshelf/liveshelf/models"
)

// Config contains fetcher configuration.
type Config struct {
	DirectTimeout    time.Duration // Timeout for direct fetches of arbitrary sites
	RenderTimeout    time.Duration // Timeout for rendering API lookups
	MaxBodyBytes     int64         // Maximum HTML bytes read from a direct fetch
	RenderAPIBaseURL string        // Rendering API endpoint; empty selects the public one
}

// DefaultConfig returns default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		DirectTimeout: 3 * time.Second,
		RenderTimeout: microlink.DefaultTimeout,
		MaxBodyBytes:  2 * 1024 * 1024, // 2MiB is enough for any <head> plus slack
	}
}

// Fetcher fetches preview metadata for broadcast source pages.
type Fetcher struct {
	config     Config
	httpClient *http.Client
	render     *microlink.Client
	logger     *slog.Logger
}

// NewFetcher creates a new Fetcher instance.
func NewFetcher(config Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		config:     config,
		httpClient: &http.Client{},
		render:     microlink.NewClient(config.RenderAPIBaseURL, config.RenderTimeout),
		logger:     logger,
	}
}

// IsSocialURL reports whether a URL belongs to the social-media domain set
// that requires the rendering API.
func IsSocialURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return strings.Contains(host, "x.com") || strings.Contains(host, "twitter.com")
}

// Fetch produces preview metadata for targetURL. It never returns an error:
// timeouts, unreachable hosts, non-HTML responses, and malformed payloads
// all resolve to a result with status fail and nil content fields.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) models.PreviewResult {
	var strategy string
	var result models.PreviewResult
	if IsSocialURL(targetURL) {
		strategy = "rendered"
		result = f.fetchRendered(ctx, targetURL)
	} else {
		strategy = "direct"
		result = f.fetchDirect(ctx, targetURL)
	}
	metrics.PreviewFetches.WithLabelValues(strategy, string(result.Status)).Inc()
	return result
}

// fetchRendered delegates to the rendering API with prerendering enabled.
func (f *Fetcher) fetchRendered(ctx context.Context, targetURL string) models.PreviewResult {
	site := models.SiteTwitter
	if strings.Contains(targetURL, "x.com") {
		site = models.SiteX
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.RenderTimeout)
	defer cancel()

	data, err := f.render.Lookup(ctx, targetURL)
	if err != nil {
		f.logger.Warn("rendering API lookup failed", "url", targetURL, "error", err)
		return failResult(site)
	}

	return models.PreviewResult{
		Title:       data.Title,
		Description: data.Description,
		ImageURL:    data.ImageURL,
		Author:      data.Author,
		Site:        site,
		Status:      deriveStatus(data.Title, data.ImageURL),
	}
}

// fetchDirect issues a bounded GET to the target and extracts metadata from
// the response HTML.
func (f *Fetcher) fetchDirect(ctx context.Context, targetURL string) models.PreviewResult {
	ctx, cancel := context.WithTimeout(ctx, f.config.DirectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return failResult(models.SiteUnknown)
	}
	req.Header.Set("User-Agent", "LiveShelf-Preview/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("preview fetch failed", "url", targetURL, "error", err)
		return failResult(models.SiteUnknown)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("preview fetch rejected", "url", targetURL, "status", resp.StatusCode)
		return failResult(models.SiteUnknown)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		return failResult(models.SiteUnknown)
	}

	// Read at most MaxBodyBytes; anything past the cap is discarded and the
	// truncated document is still parsed.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		f.logger.Warn("preview body read failed", "url", targetURL, "error", err)
		return failResult(models.SiteUnknown)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return failResult(models.SiteUnknown)
	}

	meta := extractMeta(doc)

	title := firstNonEmpty(meta.ogTitle, meta.twitterTitle, meta.htmlTitle)
	description := firstNonEmpty(meta.ogDescription, meta.twitterDescription, meta.description)
	author := firstNonEmpty(meta.author, meta.twitterCreator)

	var imageURL *string
	if raw := firstNonEmptyString(meta.ogImage, meta.twitterImage); raw != "" {
		imageURL = resolveImageURL(targetURL, raw)
	}

	return models.PreviewResult{
		Title:       title,
		Description: description,
		ImageURL:    imageURL,
		Author:      author,
		Site:        classifySite(meta.ogSiteName, targetURL),
		Status:      deriveStatus(title, imageURL),
	}
}

// pageMeta collects the metadata candidates a single tree walk can observe.
// For each slot the first occurrence wins.
type pageMeta struct {
	ogTitle            string
	twitterTitle       string
	htmlTitle          string
	ogDescription      string
	twitterDescription string
	description        string
	ogImage            string
	twitterImage       string
	author             string
	twitterCreator     string
	ogSiteName         string
}

// extractMeta walks the parsed document once, recording og:/twitter:/plain
// meta values and the <title> text.
func extractMeta(n *html.Node) pageMeta {
	meta := pageMeta{}

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, name, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = strings.ToLower(attr.Val)
					case "name":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if content == "" {
					break
				}
				key := property
				if key == "" {
					key = name
				}
				switch key {
				case "og:title":
					if meta.ogTitle == "" {
						meta.ogTitle = content
					}
				case "twitter:title":
					if meta.twitterTitle == "" {
						meta.twitterTitle = content
					}
				case "og:description":
					if meta.ogDescription == "" {
						meta.ogDescription = content
					}
				case "twitter:description":
					if meta.twitterDescription == "" {
						meta.twitterDescription = content
					}
				case "description":
					if meta.description == "" {
						meta.description = content
					}
				case "og:image":
					if meta.ogImage == "" {
						meta.ogImage = content
					}
				case "twitter:image":
					if meta.twitterImage == "" {
						meta.twitterImage = content
					}
				case "author":
					if meta.author == "" {
						meta.author = content
					}
				case "twitter:creator":
					if meta.twitterCreator == "" {
						meta.twitterCreator = content
					}
				case "og:site_name":
					if meta.ogSiteName == "" {
						meta.ogSiteName = content
					}
				}
			case "title":
				if meta.htmlTitle == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.htmlTitle = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)

	return meta
}

// resolveImageURL resolves a possibly-relative image reference against the
// page URL. Returns nil when resolution fails.
func resolveImageURL(pageURL, ref string) *string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(parsed).String()
	return &resolved
}

// deriveStatus maps field presence to a fetch status: title and image means
// success, exactly one means partial, neither means fail.
func deriveStatus(title, imageURL *string) models.FetchStatus {
	switch {
	case title != nil && imageURL != nil:
		return models.FetchStatusSuccess
	case title != nil || imageURL != nil:
		return models.FetchStatusPartial
	default:
		return models.FetchStatusFail
	}
}

func failResult(site models.Site) models.PreviewResult {
	return models.PreviewResult{
		Site:   site,
		Status: models.FetchStatusFail,
	}
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
