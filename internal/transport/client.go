package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oilfox_bridge/internal/logger"
)

// Timeouts and limits for calls to the cloud API.
const (
	DefaultReadTimeout    = 10 * time.Second
	DefaultConnectTimeout = 15 * time.Second
	DefaultScheme         = "https"

	AuthHeader   = "X-Auth-Token"
	maxBodyBytes = 4 << 20 // 4 MB
	maxErrorText = 256
)

// TokenSource supplies the session token for authenticated requests.
// ok is false when the session is not online.
type TokenSource interface {
	AuthToken() (token string, ok bool)
}

// Options tunes the HTTP client. Zero values fall back to the defaults.
type Options struct {
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration
	// Scheme is "https" in production; tests point it at plain-HTTP fakes.
	Scheme string
	// HTTPClient replaces the internally built client when set.
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Scheme == "" {
		o.Scheme = DefaultScheme
	}
	return o
}

// Client issues JSON requests against one cloud host.
type Client struct {
	host   string
	scheme string
	http   *http.Client
	tokens TokenSource
	log    *logger.Logger
}

// NewClient builds a client for host (e.g. "api.oilfox.io"). The host is not
// validated here; a malformed host surfaces as a ConfigurationError per request.
func NewClient(host string, tokens TokenSource, opts Options, log *logger.Logger) *Client {
	opts = opts.withDefaults()
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts)
	}
	return &Client{
		host:   strings.TrimSpace(host),
		scheme: opts.Scheme,
		http:   hc,
		tokens: tokens,
		log:    logger.OrNop(log),
	}
}

// newHTTPClient maps connect/read timeouts onto the transport.
func newHTTPClient(opts Options) *http.Client {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	return &http.Client{
		Timeout: opts.ConnectTimeout + opts.ReadTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ReadTimeout,
			MaxIdleConns:          4,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Host returns the configured host.
func (c *Client) Host() string { return c.host }

// Get performs an authenticated GET.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Request(ctx, path, nil)
}

// Request performs an authenticated GET when body is nil, otherwise an
// unauthenticated POST of body encoded as JSON. The response body is returned
// verbatim once it is known to be valid JSON.
func (c *Client) Request(ctx context.Context, path string, body any) (json.RawMessage, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	c.log.Debugw("cloud_request", "method", req.Method, "url", endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &CommunicationError{Endpoint: path, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &CommunicationError{Endpoint: path, StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s: %w", path, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &CommunicationError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Message:    errorText(resp.StatusCode, raw),
		}
	}

	if !json.Valid(raw) {
		return nil, &CommunicationError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Message:    "response body is not valid JSON",
		}
	}
	return json.RawMessage(raw), nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string, body any) (*http.Request, error) {
	if body == nil {
		token, ok := c.tokens.AuthToken()
		if !ok {
			return nil, ErrNotAuthenticated
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, &ConfigurationError{Field: "hostname", Value: c.host, Message: "cannot build request", Err: err}
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set(AuthHeader, token)
		return req, nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ConfigurationError{Field: "hostname", Value: c.host, Message: "cannot build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// endpoint joins scheme, host and path, rejecting hosts that do not parse
// as a bare authority.
func (c *Client) endpoint(path string) (string, error) {
	if c.host == "" {
		return "", &ConfigurationError{Field: "hostname", Value: c.host, Message: "hostname is empty"}
	}
	raw := c.scheme + "://" + c.host + path
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigurationError{Field: "hostname", Value: c.host, Message: "malformed URL", Err: err}
	}
	if u.Host != c.host || u.User != nil {
		return "", &ConfigurationError{Field: "hostname", Value: c.host, Message: "hostname must be a bare host[:port]"}
	}
	return u.String(), nil
}

// errorText builds a short message for a failed response.
func errorText(status int, body []byte) string {
	text := http.StatusText(status)
	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		return text
	}
	if len(snippet) > maxErrorText {
		snippet = snippet[:maxErrorText]
	}
	return text + ": " + snippet
}

// IsUnauthorized reports whether err signals an invalid token.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
