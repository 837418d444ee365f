// Package api exposes the JSON API: ingestion, browsing, search, previews,
// and the caching image proxy.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/liveshelf/liveshelf/auth"
	"github.com/liveshelf/liveshelf/db"
	"github.com/liveshelf/liveshelf/imgcache"
	"github.com/liveshelf/liveshelf/ingest"
	"github.com/liveshelf/liveshelf/metrics"
	"github.com/liveshelf/liveshelf/models"
)

// Store is the read side of the catalogue the API serves.
type Store interface {
	ListBroadcasts(ctx context.Context, opts db.ListOptions) ([]models.Broadcast, int, error)
	SearchBroadcasts(ctx context.Context, query string, since *time.Time, limit int) ([]models.Broadcast, error)
	ListBroadcastsByTag(ctx context.Context, tag string, limit, offset int) ([]models.Broadcast, error)
	ListBroadcastsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Broadcast, error)
	SearchBroadcasters(ctx context.Context, query string, limit int) ([]models.Broadcaster, error)
	ListNotesByBroadcastIDs(ctx context.Context, broadcastIDs []string) (map[string][]models.Note, error)
	CountBroadcasts(ctx context.Context) (int, error)
}

// Ingestor is the write-side workflow behind /api/add and /api/notes/add.
type Ingestor interface {
	AddBroadcast(ctx context.Context, userID string, req models.AddBroadcastRequest) (*ingest.AddResult, error)
	AddNote(ctx context.Context, userID string, req models.AddNoteRequest) (*models.Note, error)
	GetOrRefreshPreview(ctx context.Context, broadcastID string) (*models.Preview, bool, error)
}

// Server represents the API server
type Server struct {
	store     Store
	ingestor  Ingestor
	verifier  auth.Verifier
	refresher auth.Refresher
	cache     imgcache.Cache
	logger    *slog.Logger

	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
	requireAuth bool

	imageClient *http.Client
}

// Config contains server configuration
type Config struct {
	Addr        string
	CORSEnabled bool
	RequireAuth bool // when false, anonymous submissions are accepted
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CORSEnabled: true,
		RequireAuth: true,
	}
}

// NewServer creates a new API server
func NewServer(config Config, store Store, ingestor Ingestor, verifier auth.Verifier, refresher auth.Refresher, cache imgcache.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:       store,
		ingestor:    ingestor,
		verifier:    verifier,
		refresher:   refresher,
		cache:       cache,
		logger:      logger,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
		requireAuth: config.RequireAuth,
		imageClient: &http.Client{Timeout: imageFetchTimeout},
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "liveshelf-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/add", s.handleAdd)
	s.mux.HandleFunc("/api/notes/add", s.handleAddNote)
	s.mux.HandleFunc("/api/preview", s.handlePreview)
	s.mux.HandleFunc("/api/broadcasts", s.handleListBroadcasts)
	s.mux.HandleFunc("/api/search", s.handleSearch)
	s.mux.HandleFunc("/api/broadcasters", s.handleBroadcasters)
	s.mux.HandleFunc("/api/tags/", s.handleTag) // Handles /api/tags/{tag}
	s.mux.HandleFunc("/api/me", s.handleMe)
	s.mux.HandleFunc("/img", s.handleImageProxy)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Handler returns the full handler chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.middleware(s.mux)
}

// middleware applies CORS, session refresh, and request logging to all
// routes.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Keep the session cookie fresh on every page hit. Provider
		// outages are logged, never surfaced.
		if s.refresher != nil {
			cookies := &auth.HTTPCookieStore{Request: r, Writer: w}
			if _, err := auth.RefreshSession(r.Context(), cookies, s.refresher); err != nil {
				s.logger.Warn("session refresh failed", "error", err)
			}
		}

		start := time.Now()
		next.ServeHTTP(w, r)

		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			duration := time.Since(start)
			s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", duration)
			metrics.HTTPDuration.WithLabelValues(r.URL.Path, r.Method).Observe(duration.Seconds())
		}
	})
}

// currentUser resolves the request's user from the Authorization header or
// the session cookie. Returns nil when the request is anonymous.
func (s *Server) currentUser(r *http.Request) *auth.User {
	token := ""
	if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		token = h[7:]
	} else if c, err := r.Cookie(auth.SessionCookieName); err == nil {
		token = c.Value
	}
	if token == "" || s.verifier == nil {
		return nil
	}

	user, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		if err != auth.ErrInvalidSession {
			s.logger.Warn("session verification failed", "error", err)
		}
		return nil
	}
	return user
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.CountBroadcasts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"broadcasts": count,
		"time":       time.Now(),
	})
}
