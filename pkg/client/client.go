// Package client is a small Go client for the Sphere HTTP API.
//
// Every authenticated call carries the stored session token. When the server
// rejects that token as expired, the client exchanges it once through
// /auth/refresh-token and replays the original request once. A failed
// exchange clears the stored token and the original error is returned.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	dialTimeout = 10 * time.Second
	reqTimeout  = 30 * time.Second
)

// ReasonExpired is the reason the API attaches to a 401 for an expired token.
const ReasonExpired = "Expired"

// ErrNoSession is returned by Refresh when there is no token to exchange.
var ErrNoSession = errors.New("client has no session token")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// TokenExpired reports whether the server rejected the session token as expired.
func (e *APIError) TokenExpired() bool {
	return e.Status == http.StatusUnauthorized && e.Reason == ReasonExpired
}

// Client talks to one Sphere server and holds the current session token.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string

	// refreshes shares one in-flight exchange per presented token.
	refreshes singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with an existing session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: dialTimeout}).DialContext,
			},
			Timeout: reqTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the stored session token, or "" when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the stored session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Do sends an authenticated request and decodes a successful response into out.
// An expired token triggers at most one refresh and one replay.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	body, err := encode(in)
	if err != nil {
		return err
	}

	sent := c.Token()
	err = c.send(ctx, method, path, body, sent, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.TokenExpired() {
		return err
	}

	fresh, refreshErr := c.refreshFrom(ctx, sent)
	if refreshErr != nil {
		return err
	}
	return c.send(ctx, method, path, body, fresh, out)
}

// Refresh exchanges the stored token for a new one.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refreshFrom(ctx, c.Token())
	return err
}

// refreshFrom returns a token that replaces sent. If another call already
// replaced it, that token is used as is. Concurrent callers holding the same
// token share a single exchange. The session is cleared only when the
// exchange failed and sent is still the stored token.
func (c *Client) refreshFrom(ctx context.Context, sent string) (string, error) {
	if sent == "" {
		return "", ErrNoSession
	}
	if current := c.Token(); current != sent && current != "" {
		return current, nil
	}

	v, err, _ := c.refreshes.Do(sent, func() (any, error) {
		return c.exchange(context.WithoutCancel(ctx), sent)
	})
	if err == nil {
		return v.(string), nil
	}

	if current := c.Token(); current != sent && current != "" {
		return current, nil
	}
	c.compareAndSwap(sent, "")
	return "", err
}

// exchange trades sent for a new token at /auth/refresh-token and stores it
// unless the stored token changed in the meantime.
func (c *Client) exchange(ctx context.Context, sent string) (string, error) {
	body, err := encode(map[string]string{"token": sent})
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/refresh-token", body, "", &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("refresh returned an empty token")
	}
	c.compareAndSwap(sent, resp.Token)
	return resp.Token, nil
}

// compareAndSwap stores next only if the stored token is still prev.
func (c *Client) compareAndSwap(prev, next string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != prev {
		return false
	}
	c.token = next
	return true
}

func encode(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("error marshalling request: %w", err)
	}
	return b, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
