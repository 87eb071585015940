// Package introspection implements the RFC 7662 client half of remote token
// validation: asking another authorization server whether a token it issued
// is still active.
//
// The validator falls back to this client when a presented bearer token is
// unknown or no longer valid locally. Every network or parse failure is
// reported as an error and the validator treats it as "token invalid": a
// flaky introspection endpoint degrades to deny, never to crash.
package introspection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// defaultRequestTimeout bounds a single introspection round trip. The caller
// must never hold a storage lock while this request is in flight.
const defaultRequestTimeout = 10 * time.Second

// Response is the subset of an RFC 7662 introspection response the decision
// core consumes.
type Response struct {
	// Active reports whether the authorization server considers the token
	// currently valid. Everything else is meaningless when false.
	Active bool `json:"active"`

	// Username identifies the resource owner, when the server shares it.
	Username string `json:"username,omitempty"`

	// Scope is the token's space-separated scope string.
	Scope string `json:"scope,omitempty"`

	// Exp is the token's expiry as a Unix timestamp, 0 when absent.
	Exp int64 `json:"exp,omitempty"`
}

// ExpiresAt returns Exp as a time.Time, or the zero time when the server
// sent no expiry.
func (r *Response) ExpiresAt() time.Time {
	if r.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(r.Exp, 0).UTC()
}

// Config holds introspection client configuration.
type Config struct {
	// Endpoint is the authorization server's introspection URL.
	Endpoint string

	// AuthToken is the bearer credential this server presents when calling
	// the endpoint.
	AuthToken string

	// RequestTimeout bounds a single round trip (default: 10s).
	RequestTimeout time.Duration

	// HTTPClient is an optional custom HTTP client. The AuthToken bearer
	// header is layered on top of its transport.
	HTTPClient *http.Client
}

// Client posts tokens to a remote introspection endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// New creates an introspection client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("introspection endpoint is required")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("introspection auth token is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	// oauth2.NewClient wraps the base transport so every request carries
	// the Authorization: Bearer header without manual header plumbing.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AuthToken, TokenType: "Bearer"})

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: oauth2.NewClient(ctx, source),
		timeout:    timeout,
	}, nil
}

// Introspect posts token to the endpoint and returns the parsed response.
// Any transport, status or parse failure is returned as an error; callers
// fail closed.
func (c *Client) Introspect(ctx context.Context, token string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request to %s failed: %w", c.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspection endpoint returned status %d", resp.StatusCode)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse introspection response: %w", err)
	}

	return &parsed, nil
}
