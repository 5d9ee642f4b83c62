// Package api is the client for the chat backend's REST endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pairchat/pairchat/internal/session"
)

// User is a directory entry from the users endpoint.
type User struct {
	Username string `json:"username"`
}

// ChatMessage is one backlog entry from the history endpoint.
type ChatMessage struct {
	ID      string `json:"id"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// LoginResult is the login endpoint response.
type LoginResult struct {
	Token string           `json:"token"`
	User  session.Identity `json:"user"`
}

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Client calls the backend. It satisfies session.Verifier.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges an email for a token and identity.
func (c *Client) Login(ctx context.Context, email string) (string, session.Identity, error) {
	form := url.Values{}
	form.Set("email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/user/login-user/", strings.NewReader(form.Encode()))
	if err != nil {
		return "", session.Identity{}, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result LoginResult
	if err := c.do(req, &result); err != nil {
		return "", session.Identity{}, fmt.Errorf("login failed: %w", err)
	}
	return result.Token, result.User, nil
}

// VerifyToken validates a stored token and returns the identity it names.
func (c *Client) VerifyToken(ctx context.Context, token string) (session.Identity, error) {
	req, err := c.get(ctx, "/api/auth/verify-token", token)
	if err != nil {
		return session.Identity{}, err
	}
	var identity session.Identity
	if err := c.do(req, &identity); err != nil {
		return session.Identity{}, fmt.Errorf("token verification failed: %w", err)
	}
	return identity, nil
}

// Users fetches the user directory.
func (c *Client) Users(ctx context.Context, token string) ([]User, error) {
	req, err := c.get(ctx, "/api/users", token)
	if err != nil {
		return nil, err
	}
	var users []User
	if err := c.do(req, &users); err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, nil
}

// History fetches the ordered message backlog between self and peer.
func (c *Client) History(ctx context.Context, token, self, peer string) ([]ChatMessage, error) {
	path := fmt.Sprintf("/api/messages/get-chat-user/%s/%s",
		url.PathEscape(self), url.PathEscape(peer))
	req, err := c.get(ctx, path, token)
	if err != nil {
		return nil, err
	}
	var msgs []ChatMessage
	if err := c.do(req, &msgs); err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return msgs, nil
}

func (c *Client) get(ctx context.Context, path, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
