package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultUserAgent = "recipunto/0.1"
	requestTimeout   = 10 * time.Second
	contentJSON      = "application/json"
	contentObject    = "application/vnd.pgrst.object+json"
)

// Client talks to the backend's REST and auth endpoints.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	http      *http.Client
	userAgent string
	log       *zap.Logger

	mu     sync.RWMutex
	token  string
	userID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a Client for the project at baseURL authenticated with
// the public apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		apiKey:    strings.TrimSpace(apiKey),
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL reports the normalized project URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// APIKey reports the public key sent with every request.
func (c *Client) APIKey() string { return c.apiKey }

// SetSession makes later requests act as the signed-in user. Empty values
// revert to anonymous access.
func (c *Client) SetSession(accessToken, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = accessToken
	c.userID = userID
}

// UserID reports the signed-in user, empty when anonymous.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		return c.token
	}
	return c.apiKey
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// single asks for one object; zero or many rows yield PGRST116.
	single bool
	// represent asks mutations to return the affected rows.
	represent bool
	// token overrides the session bearer token.
	token string
}

func (c *Client) do(ctx context.Context, r request, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	rel := &url.URL{Path: r.path}
	if len(r.query) > 0 {
		rel.RawQuery = r.query.Encode()
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	accept := contentJSON
	if r.single {
		accept = contentObject
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("apikey", c.apiKey)
	token := r.token
	if token == "" {
		token = c.bearer()
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.body != nil {
		req.Header.Set("Content-Type", contentJSON)
	}
	if r.represent {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := decodeError(resp)
		apiErr.Path = rel.Path
		c.log.Debug("backend request failed",
			zap.String("method", r.method),
			zap.String("path", rel.Path),
			zap.Int("status", apiErr.Status),
			zap.String("code", apiErr.Code))
		return apiErr
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: empty body")
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse backend url %q: missing host", raw)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
