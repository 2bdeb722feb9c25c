package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "turnos/internal/log"
	"turnos/internal/model"
)

const (
	appointmentsPath = "/api/appointments"
	maxBodyBytes     = 10 << 20
	defaultTimeout   = 30 * time.Second
)

// Client talks to the appointments backend. The list endpoint is fetched
// with ETag revalidation against an in-memory copy of the last response.
type Client struct {
	baseURL   *url.URL
	client    *http.Client
	tokens    TokenSource
	requestID func() string

	mu     sync.Mutex
	etag   string
	cached []model.Appointment
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRequestID overrides how X-Request-Id values are generated.
func WithRequestID(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.requestID = fn
		}
	}
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("api: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: base url %q must be http or https", baseURL)
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL:   u,
		client:    &http.Client{Timeout: defaultTimeout},
		tokens:    tokens,
		requestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListAppointments returns every appointment visible to the session.
func (c *Client) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, appointmentsPath)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.etag != "" && c.cached != nil {
		req.Header.Set("If-None-Match", c.etag)
	}
	c.mu.Unlock()

	appLog.Debug("appointments fetch start", "url", redactURL(req.URL.String()), "request_id", req.Header.Get("X-Request-Id"))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
		}
		items, err := model.DecodeAppointments(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}

		c.mu.Lock()
		c.etag = resp.Header.Get("ETag")
		c.cached = cloneAppointments(items)
		c.mu.Unlock()

		appLog.Info("appointments fetch success", "count", len(items), "request_id", req.Header.Get("X-Request-Id"))
		return items, nil

	case http.StatusNotModified:
		c.mu.Lock()
		cached := cloneAppointments(c.cached)
		hasCache := c.cached != nil
		c.mu.Unlock()
		if !hasCache {
			return nil, fmt.Errorf("%w: 304 Not Modified without a cached response", ErrNetwork)
		}
		appLog.Info("appointments not modified; using cache", "count", len(cached))
		return cached, nil

	case http.StatusUnauthorized, http.StatusForbidden:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, resp.Status)

	default:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrNetwork, resp.Status)
	}
}

// DeleteAppointment removes one appointment on the backend.
func (c *Client) DeleteAppointment(ctx context.Context, id int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, appointmentsPath+"/"+strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()
	drain(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		c.invalidate()
		appLog.Info("appointment deleted", "id", id, "request_id", req.Header.Get("X-Request-Id"))
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, resp.Status)
	case http.StatusNotFound:
		return fmt.Errorf("%w: appointment %d", ErrNotFound, id)
	default:
		return fmt.Errorf("%w: %s", ErrNetwork, resp.Status)
	}
}

// newRequest resolves the session token first so a missing credential never
// reaches the network.
func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: token: %w", ErrUnauthenticated, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no session token", ErrUnauthenticated)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", c.requestID())
	return req, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.etag = ""
	c.cached = nil
	c.mu.Unlock()
}

func cloneAppointments(in []model.Appointment) []model.Appointment {
	if in == nil {
		return nil
	}
	out := make([]model.Appointment, len(in))
	copy(out, in)
	return out
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxBodyBytes))
}

// redactURL keeps scheme and host only, so tokens in paths or queries never
// reach the logs.
func redactURL(raw string) string {
	const redactedSuffix = "/...(redacted)"
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "api://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + redactedSuffix
}

// IsUnauthenticated reports whether err should send the user back to login.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
