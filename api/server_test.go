package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/liveshelf/liveshelf/auth"
	"github.com/liveshelf/liveshelf/db"
	"github.com/liveshelf/liveshelf/imgcache"
	"github.com/liveshelf/liveshelf/ingest"
	"github.com/liveshelf/liveshelf/models"
)

// fakeStore serves canned browse data and records the search filter it saw.
type fakeStore struct {
	broadcasts  []models.Broadcast
	notes       map[string][]models.Note
	err         error
	searchSince *time.Time
}

func (f *fakeStore) ListBroadcasts(_ context.Context, _ db.ListOptions) ([]models.Broadcast, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.broadcasts, len(f.broadcasts), nil
}

func (f *fakeStore) SearchBroadcasts(_ context.Context, _ string, since *time.Time, _ int) ([]models.Broadcast, error) {
	f.searchSince = since
	return f.broadcasts, f.err
}

func (f *fakeStore) ListBroadcastsByTag(_ context.Context, _ string, _, _ int) ([]models.Broadcast, error) {
	return f.broadcasts, f.err
}

func (f *fakeStore) ListBroadcastsByUser(_ context.Context, _ string, _, _ int) ([]models.Broadcast, error) {
	return f.broadcasts, f.err
}

func (f *fakeStore) SearchBroadcasters(_ context.Context, _ string, _ int) ([]models.Broadcaster, error) {
	return nil, f.err
}

func (f *fakeStore) ListNotesByBroadcastIDs(_ context.Context, _ []string) (map[string][]models.Note, error) {
	if f.notes == nil {
		return map[string][]models.Note{}, nil
	}
	return f.notes, nil
}

func (f *fakeStore) CountBroadcasts(_ context.Context) (int, error) {
	return len(f.broadcasts), f.err
}

// fakeIngestor returns scripted responses for the write paths.
type fakeIngestor struct {
	addResult  *ingest.AddResult
	addErr     error
	note       *models.Note
	noteErr    error
	preview    *models.Preview
	cached     bool
	previewErr error
}

func (f *fakeIngestor) AddBroadcast(_ context.Context, _ string, _ models.AddBroadcastRequest) (*ingest.AddResult, error) {
	return f.addResult, f.addErr
}

func (f *fakeIngestor) AddNote(_ context.Context, _ string, _ models.AddNoteRequest) (*models.Note, error) {
	return f.note, f.noteErr
}

func (f *fakeIngestor) GetOrRefreshPreview(_ context.Context, _ string) (*models.Preview, bool, error) {
	return f.preview, f.cached, f.previewErr
}

// fakeVerifier accepts the token "good".
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*auth.User, error) {
	if token == "good" {
		return &auth.User{ID: "user-1"}, nil
	}
	return nil, auth.ErrInvalidSession
}

// fakeCache is an in-memory cache with an optional failing Put.
type fakeCache struct {
	entries map[string]*imgcache.Entry
	putErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*imgcache.Entry{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (*imgcache.Entry, error) {
	if e, ok := f.entries[key]; ok {
		return e, nil
	}
	return nil, imgcache.ErrNotFound
}

func (f *fakeCache) Put(_ context.Context, key string, entry *imgcache.Entry) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[key] = entry
	return nil
}

func newTestServer(store Store, ingestor Ingestor, cache imgcache.Cache) *Server {
	if store == nil {
		store = &fakeStore{}
	}
	if ingestor == nil {
		ingestor = &fakeIngestor{}
	}
	if cache == nil {
		cache = newFakeCache()
	}
	return NewServer(DefaultConfig(), store, ingestor, fakeVerifier{}, nil, cache, nil)
}

func doJSON(t *testing.T, server *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestAddRequiresAuth(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/add", "", models.AddBroadcastRequest{
		BroadcastURL: "https://x.com/i/broadcasts/abc123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodPost, "/api/add", "bad-token", models.AddBroadcastRequest{
		BroadcastURL: "https://x.com/i/broadcasts/abc123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for rejected token, got %d", rec.Code)
	}
}

func TestAddErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"invalid url", ingest.ErrInvalidURL, http.StatusBadRequest, "invalid broadcast URL"},
		{"username required", ingest.ErrUsernameRequired, http.StatusBadRequest, "Could not detect username. Please enter manually."},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(nil, &fakeIngestor{addErr: tt.err}, nil)

			rec := doJSON(t, server, http.MethodPost, "/api/add", "good", models.AddBroadcastRequest{
				BroadcastURL: "https://example.com/whatever",
			})
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			body := decodeBody(t, rec)
			if body["error"] != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, body["error"])
			}
			if body["success"] != false {
				t.Errorf("expected success false, got %v", body["success"])
			}
		})
	}
}

func TestAddSuccess(t *testing.T) {
	ingestor := &fakeIngestor{addResult: &ingest.AddResult{
		BroadcastID: "abc123",
		NoteSaved:   true,
	}}
	server := newTestServer(nil, ingestor, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/add", "good", models.AddBroadcastRequest{
		BroadcastURL: "https://x.com/i/broadcasts/abc123",
		NoteBody:     "keeper",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["broadcast_id"] != "abc123" || body["note_saved"] != true {
		t.Errorf("unexpected response: %v", body)
	}
}

func TestAddNoteWarningPassthrough(t *testing.T) {
	ingestor := &fakeIngestor{addResult: &ingest.AddResult{
		BroadcastID: "abc123",
		Warning:     "broadcast saved, but the note could not be saved",
	}}
	server := newTestServer(nil, ingestor, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/add", "good", models.AddBroadcastRequest{
		BroadcastURL: "https://x.com/i/broadcasts/abc123",
		NoteBody:     "keeper",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Error("note failure must not fail the add")
	}
	if w, ok := body["warning"].(string); !ok || w == "" {
		t.Error("expected warning in response")
	}
}

func TestAddNoteDuplicate(t *testing.T) {
	server := newTestServer(nil, &fakeIngestor{noteErr: ingest.ErrDuplicateNote}, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/notes/add", "good", models.AddNoteRequest{
		BroadcastID: "abc123", Body: "hello",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false || body["error"] != "duplicate note" {
		t.Errorf("unexpected duplicate response: %v", body)
	}
}

func TestAddNoteUnknownBroadcast(t *testing.T) {
	server := newTestServer(nil, &fakeIngestor{noteErr: ingest.ErrBroadcastNotFound}, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/notes/add", "good", models.AddNoteRequest{
		BroadcastID: "missing", Body: "hello",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "broadcast not found" {
		t.Errorf("unexpected error message: %v", body["error"])
	}
}

func TestAddNoteBlankBody(t *testing.T) {
	server := newTestServer(nil, &fakeIngestor{noteErr: ingest.ErrNoteBodyRequired}, nil)

	rec := doJSON(t, server, http.MethodPost, "/api/notes/add", "good", models.AddNoteRequest{
		BroadcastID: "abc123", Body: "   ",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false || body["error"] != "note body is required" {
		t.Errorf("unexpected response: %v", body)
	}
}

func TestPreviewNotFound(t *testing.T) {
	server := newTestServer(nil, &fakeIngestor{previewErr: ingest.ErrBroadcastNotFound}, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/preview?broadcast_id=missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPreviewCached(t *testing.T) {
	ingestor := &fakeIngestor{
		preview: &models.Preview{
			Title:  models.String("Jane live"),
			Status: models.FetchStatusSuccess,
		},
		cached: true,
	}
	server := newTestServer(nil, ingestor, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/preview?broadcast_id=abc123", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["cached"] != true {
		t.Error("expected cached true")
	}
}

func TestListBroadcastsAttachesNotes(t *testing.T) {
	store := &fakeStore{
		broadcasts: []models.Broadcast{
			{BroadcastID: "abc123", BroadcastURL: "https://x.com/i/broadcasts/abc123"},
			{BroadcastID: "def456", BroadcastURL: "https://x.com/i/broadcasts/def456"},
		},
		notes: map[string][]models.Note{
			"abc123": {{ID: "n1", BroadcastID: "abc123", Body: "keeper"}},
		},
	}
	server := newTestServer(store, nil, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/broadcasts?range=7d", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Broadcasts []models.BroadcastWithNotes `json:"broadcasts"`
		Count      int                         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Count != 2 || len(body.Broadcasts) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d (count %d)", len(body.Broadcasts), body.Count)
	}
	if len(body.Broadcasts[0].Notes) != 1 {
		t.Errorf("expected attached note on first broadcast, got %v", body.Broadcasts[0].Notes)
	}
	if body.Broadcasts[1].Notes == nil {
		t.Error("expected empty note list, not null")
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/search", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSearchRangeFilter(t *testing.T) {
	store := &fakeStore{}
	server := newTestServer(store, nil, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/search?q=jane", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.searchSince != nil {
		t.Errorf("expected no time filter without range, got %v", store.searchSince)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/search?q=jane&range=24h", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.searchSince == nil {
		t.Fatal("expected range=24h to set a time filter")
	}
	want := time.Now().UTC().Add(-24 * time.Hour)
	if diff := store.searchSince.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected filter near 24h ago, got %v", store.searchSince)
	}
}

func TestTagHandler(t *testing.T) {
	store := &fakeStore{broadcasts: []models.Broadcast{{BroadcastID: "abc123"}}}
	server := newTestServer(store, nil, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/tags/Jazz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["tag"] != "jazz" {
		t.Errorf("expected tag folded to lowercase, got %v", body["tag"])
	}

	rec = doJSON(t, server, http.MethodGet, "/api/tags/", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty tag, got %d", rec.Code)
	}
}

func TestMeRequiresAuth(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	rec := doJSON(t, server, http.MethodGet, "/api/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/me", "good", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with session, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	store := &fakeStore{broadcasts: []models.Broadcast{{BroadcastID: "abc123"}}}
	server := newTestServer(store, nil, nil)

	rec := doJSON(t, server, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestImageProxyRejectsNonHTTPS(t *testing.T) {
	server := newTestServer(nil, nil, nil)

	for _, u := range []string{
		"http%3A%2F%2Finternal-service.local%2Fadmin",
		"ftp%3A%2F%2Fexample.com%2Ffile",
		"not-a-url",
		"",
	} {
		rec := doJSON(t, server, http.MethodGet, "/img?u="+u, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("url %q: expected 400, got %d", u, rec.Code)
		}
	}
}

func TestImageProxyCacheHit(t *testing.T) {
	cache := newFakeCache()
	cache.entries[imgcache.Key("https://example.com/thumb.jpg")] = &imgcache.Entry{
		Data:        []byte("cached-bytes"),
		ContentType: "image/png",
	}
	server := newTestServer(nil, nil, cache)

	rec := doJSON(t, server, http.MethodGet, "/img?u="+url.QueryEscape("https://example.com/thumb.jpg"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "cached-bytes" {
		t.Errorf("expected cached body, got %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("expected stored content type, got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, s-maxage=2592000, max-age=2592000" {
		t.Errorf("unexpected cache control: %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected permissive CORS, got %q", got)
	}
}

func TestImageProxyFetchAndCache(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/thumb.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer upstream.Close()

	cache := newFakeCache()
	server := newTestServer(nil, nil, cache)
	server.imageClient = upstream.Client()
	server.imageClient.Timeout = time.Second

	imageURL := upstream.URL + "/thumb.jpg"
	rec := doJSON(t, server, http.MethodGet, "/img?u="+url.QueryEscape(imageURL), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
	if _, ok := cache.entries[imgcache.Key(imageURL)]; !ok {
		t.Error("expected fetched image to be cached")
	}

	rec = doJSON(t, server, http.MethodGet, "/img?u="+url.QueryEscape(upstream.URL+"/page.html"), "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-image content, got %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/img?u="+url.QueryEscape(upstream.URL+"/missing.jpg"), "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for upstream failure, got %d", rec.Code)
	}
}

func TestImageProxyCachePutFailureNonFatal(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		w.Write([]byte("webp-bytes"))
	}))
	defer upstream.Close()

	cache := newFakeCache()
	cache.putErr = errors.New("disk full")
	server := newTestServer(nil, nil, cache)
	server.imageClient = upstream.Client()

	rec := doJSON(t, server, http.MethodGet, "/img?u="+url.QueryEscape(upstream.URL+"/a.webp"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cache write failure must not fail the request, got %d", rec.Code)
	}
	if rec.Body.String() != "webp-bytes" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}
