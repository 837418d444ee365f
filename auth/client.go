package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds calls to the authentication provider.
const DefaultTimeout = 5 * time.Second

// Client talks to the authentication provider's session API. It implements
// both Verifier and Refresher.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an authentication provider client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sessionResponse struct {
	User User `json:"user"`
}

type refreshResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// Verify resolves a session token to a user. Returns ErrInvalidSession when
// the provider rejects the token.
func (c *Client) Verify(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/session", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach auth provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidSession
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth provider returned status %d", resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if body.User.ID == "" {
		return nil, ErrInvalidSession
	}
	return &body.User, nil
}

// Refresh exchanges a session token for a fresh one.
func (c *Client) Refresh(ctx context.Context, token string) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/session/refresh", nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to reach auth provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", 0, ErrInvalidSession
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("auth provider returned status %d", resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if body.Token == "" {
		return "", 0, ErrInvalidSession
	}
	return body.Token, time.Duration(body.ExpiresIn) * time.Second, nil
}
