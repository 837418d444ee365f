package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mapCookieStore is an in-memory CookieStore for exercising the refresh
// routine without HTTP plumbing.
type mapCookieStore struct {
	values  map[string]string
	cleared []string
	ttls    map[string]time.Duration
}

func newMapCookieStore() *mapCookieStore {
	return &mapCookieStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapCookieStore) Read(name string) (string, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m *mapCookieStore) Write(name, value string, ttl time.Duration) {
	m.values[name] = value
	m.ttls[name] = ttl
}

func (m *mapCookieStore) Clear(name string) {
	delete(m.values, name)
	m.cleared = append(m.cleared, name)
}

type stubRefresher struct {
	token string
	ttl   time.Duration
	err   error
	calls int
}

func (s *stubRefresher) Refresh(_ context.Context, _ string) (string, time.Duration, error) {
	s.calls++
	return s.token, s.ttl, s.err
}

func TestRefreshSessionWritesNewToken(t *testing.T) {
	cookies := newMapCookieStore()
	cookies.values[SessionCookieName] = "old-token"
	refresher := &stubRefresher{token: "new-token", ttl: time.Hour}

	refreshed, err := RefreshSession(context.Background(), cookies, refresher)
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if !refreshed {
		t.Error("expected a refresh")
	}
	if cookies.values[SessionCookieName] != "new-token" {
		t.Errorf("expected new token in cookie, got %q", cookies.values[SessionCookieName])
	}
	if cookies.ttls[SessionCookieName] != time.Hour {
		t.Errorf("expected 1h ttl, got %v", cookies.ttls[SessionCookieName])
	}
}

func TestRefreshSessionNoCookie(t *testing.T) {
	cookies := newMapCookieStore()
	refresher := &stubRefresher{}

	refreshed, err := RefreshSession(context.Background(), cookies, refresher)
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if refreshed {
		t.Error("expected no refresh without a cookie")
	}
	if refresher.calls != 0 {
		t.Error("refresher should not be called without a cookie")
	}
}

func TestRefreshSessionInvalidClearsCookie(t *testing.T) {
	cookies := newMapCookieStore()
	cookies.values[SessionCookieName] = "stale"
	refresher := &stubRefresher{err: ErrInvalidSession}

	refreshed, err := RefreshSession(context.Background(), cookies, refresher)
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if refreshed {
		t.Error("expected no refresh for an invalid session")
	}
	if len(cookies.cleared) != 1 || cookies.cleared[0] != SessionCookieName {
		t.Errorf("expected session cookie cleared, got %v", cookies.cleared)
	}
}

func TestRefreshSessionProviderOutageKeepsCookie(t *testing.T) {
	cookies := newMapCookieStore()
	cookies.values[SessionCookieName] = "token"
	refresher := &stubRefresher{err: errors.New("connection refused")}

	refreshed, err := RefreshSession(context.Background(), cookies, refresher)
	if err == nil {
		t.Fatal("expected error from provider outage")
	}
	if refreshed {
		t.Error("expected no refresh during an outage")
	}
	if _, ok := cookies.values[SessionCookieName]; !ok {
		t.Error("cookie must survive a provider outage")
	}
}

func TestClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/session" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"user":{"id":"user-123"}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)

	user, err := client.Verify(context.Background(), "good")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if user.ID != "user-123" {
		t.Errorf("expected user-123, got %q", user.ID)
	}

	_, err = client.Verify(context.Background(), "bad")
	if !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestClientRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/session/refresh" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"fresh","expires_in":3600}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	token, ttl, err := client.Refresh(context.Background(), "old")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if token != "fresh" || ttl != time.Hour {
		t.Errorf("unexpected refresh result: %q %v", token, ttl)
	}
}
