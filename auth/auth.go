// Package auth is the boundary to the external authentication provider.
// Sign-up and password handling live entirely on the provider side; this
// package only verifies session tokens and keeps the session cookie fresh.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// SessionCookieName is the cookie carrying the provider session token.
const SessionCookieName = "liveshelf_session"

// ErrInvalidSession is returned when the provider rejects a session token.
var ErrInvalidSession = errors.New("invalid session")

// User is the authenticated identity attached to a request.
type User struct {
	ID string `json:"id"`
}

// Verifier resolves a session token to a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// Refresher exchanges a session token for a fresh one before it expires.
type Refresher interface {
	Refresh(ctx context.Context, token string) (newToken string, ttl time.Duration, err error)
}

// CookieStore is the minimal cookie surface the session-refresh routine
// needs. Keeping it an interface keeps the routine testable without an HTTP
// round trip.
type CookieStore interface {
	Read(name string) (string, bool)
	Write(name, value string, ttl time.Duration)
	Clear(name string)
}

// RefreshSession reads the session cookie, asks the provider for a refreshed
// token, and writes the result back. An invalid session clears the cookie;
// provider outages leave the cookie untouched so a transient failure does not
// log the user out. Returns whether a refreshed token was written.
func RefreshSession(ctx context.Context, cookies CookieStore, refresher Refresher) (bool, error) {
	token, ok := cookies.Read(SessionCookieName)
	if !ok || token == "" {
		return false, nil
	}

	newToken, ttl, err := refresher.Refresh(ctx, token)
	if errors.Is(err, ErrInvalidSession) {
		cookies.Clear(SessionCookieName)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	cookies.Write(SessionCookieName, newToken, ttl)
	return true, nil
}

// HTTPCookieStore adapts a request/response pair to the CookieStore
// interface.
type HTTPCookieStore struct {
	Request *http.Request
	Writer  http.ResponseWriter
}

func (s *HTTPCookieStore) Read(name string) (string, bool) {
	c, err := s.Request.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (s *HTTPCookieStore) Write(name, value string, ttl time.Duration) {
	http.SetCookie(s.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPCookieStore) Clear(name string) {
	http.SetCookie(s.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
