// Package smugmug is a client for the SmugMug API v2. It implements
// dups.PhotoHost.
package smugmug

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"smugdups/internal/dups"
)

const (
	DefaultBaseURL        = "https://api.smugmug.com/api/v2"
	DefaultUserAgent      = "smugdups/1.0"
	DefaultPageSize       = 100
	DefaultWriteInterval  = time.Second
	DefaultMaxRetries     = 3
	DefaultMaxRateRetries = 5
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
)

// Config describes a Client. Zero durations, sizes and strings take the
// defaults above; retry counts are used as given.
type Config struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
	// UserName is the account whose albums are listed and created. When
	// empty it is looked up through !authuser on first use.
	UserName string

	BaseURL        string
	UserAgent      string
	PageSize       int
	WriteInterval  time.Duration
	MaxRetries     int
	MaxRateRetries int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RedirectPolicy RedirectPolicy
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the client whose transport carries signed requests.
// Its CheckRedirect is not used.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.base = hc }
}

// WithClock sets the time source used for write spacing and backoff.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the logger for retries and redirects.
func WithLogger(logger dups.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client talks to the SmugMug API. It is safe for concurrent use; write
// calls are spaced by the configured interval.
type Client struct {
	cfg     Config
	baseURL *url.URL
	http    *http.Client
	base    *http.Client
	clock   Clock
	logger  dups.Logger
	writes  *writeLimiter
	user    *userCache
}

var _ dups.PhotoHost = (*Client)(nil)

// New creates a Client. Missing credentials fail with dups.ErrAuth.
func New(cfg Config, opts ...Option) (*Client, error) {
	var missing []string
	for name, v := range map[string]string{
		"api key":       cfg.APIKey,
		"api secret":    cfg.APISecret,
		"access token":  cfg.AccessToken,
		"access secret": cfg.AccessSecret,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("smugmug: missing credentials (%s): %w", strings.Join(missing, ", "), dups.ErrAuth)
	}

	applyDefaults(&cfg)
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("smugmug: parse base url: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		baseURL: base,
		base:    &http.Client{},
		clock:   realClock{},
		logger:  dups.NewNopLogger(),
		user:    &userCache{name: cfg.UserName},
	}
	for _, opt := range opts {
		opt(c)
	}

	// The oauth1 transport signs every round trip with a fresh nonce, so a
	// re-issued redirect is signed again.
	oauthCfg := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, c.base)
	c.http = oauthCfg.Client(ctx, token)
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c.writes = newWriteLimiter(cfg.WriteInterval, c.clock)
	return c, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.WriteInterval <= 0 {
		cfg.WriteInterval = DefaultWriteInterval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRateRetries < 0 {
		cfg.MaxRateRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.RedirectPolicy == nil {
		cfg.RedirectPolicy = ReissueOnce(cfg.BaseURL)
	}
}

// request is one logical API call. It may be sent several times.
type request struct {
	op       string // e.g. "list album images"
	resource string
	method   string
	url      *url.URL
	body     []byte
}

// endpoint resolves an API path against the base URL. Paths starting with
// '!' are appended to the base itself, as in "/api/v2!authuser".
func (c *Client) endpoint(path string, query url.Values) *url.URL {
	var u *url.URL
	if strings.HasPrefix(path, "!") {
		cp := *c.baseURL
		cp.Path = strings.TrimSuffix(cp.Path, "/") + path
		u = &cp
	} else {
		u = c.baseURL.ResolveReference(&url.URL{Path: path})
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

// call sends req and decodes the envelope's Response into out (when non-nil).
func (c *Client) call(ctx context.Context, req request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &dups.APIError{Op: req.op, Resource: req.resource, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	if out == nil || len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return &dups.APIError{Op: req.op, Resource: req.resource, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

// send issues req until it succeeds or fails for good. It returns the
// successful response with an unread body.
//
// Rate-limited requests are retried with exponential backoff (honouring
// Retry-After) up to MaxRateRetries. Transport failures and gateway errors
// are retried up to MaxRetries, except for POST which is never re-sent
// after it may have reached the host.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	write := req.method != http.MethodGet
	rateAttempts, netAttempts := 0, 0

	for {
		if write {
			if err := c.writes.wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := c.follow(ctx, req)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var apiErr *dups.APIError
			if errors.As(err, &apiErr) {
				return nil, err
			}
			netErr := &dups.APIError{Kind: dups.ErrNetwork, Op: req.op, Resource: req.resource, Err: err}
			if !c.retryable(req, netAttempts) {
				return nil, netErr
			}
			netAttempts++
			if err := c.backoff(ctx, req, netAttempts, 0, netErr); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := c.statusError(req, resp)
		switch {
		case errors.Is(apiErr, dups.ErrRateLimited) && rateAttempts < c.cfg.MaxRateRetries:
			rateAttempts++
			wait := retryAfter(resp.Header.Get("Retry-After"), c.clock.Now())
			if err := c.backoff(ctx, req, rateAttempts, wait, apiErr); err != nil {
				return nil, err
			}
			continue
		case errors.Is(apiErr, dups.ErrNetwork) && c.retryable(req, netAttempts):
			netAttempts++
			if err := c.backoff(ctx, req, netAttempts, 0, apiErr); err != nil {
				return nil, err
			}
			continue
		}
		return nil, apiErr
	}
}

func (c *Client) retryable(req request, attempts int) bool {
	return req.method != http.MethodPost && attempts < c.cfg.MaxRetries
}

// backoff sleeps before retry number attempt: InitialBackoff doubling up to
// MaxBackoff, or floor when the host asked for longer.
func (c *Client) backoff(ctx context.Context, req request, attempt int, floor time.Duration, cause error) error {
	d := c.cfg.InitialBackoff << (attempt - 1)
	if d > c.cfg.MaxBackoff || d <= 0 {
		d = c.cfg.MaxBackoff
	}
	if floor > d {
		d = floor
	}
	c.logger.Warn("smugmug request failed, retrying",
		"op", req.op,
		"resource", req.resource,
		"attempt", attempt,
		"backoff", d,
		"error", cause,
	)
	return c.clock.Sleep(ctx, d)
}

// follow sends one signed request. Redirect responses are handed to the
// redirect policy; the request is re-built and re-signed for every target.
func (c *Client) follow(ctx context.Context, req request) (*http.Response, error) {
	target := req.url
	for redirects := 0; ; redirects++ {
		var body io.Reader
		if req.body != nil {
			body = bytes.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
		if err != nil {
			return nil, &dups.APIError{Op: req.op, Resource: req.resource, Message: "build request", Err: err}
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
		if req.body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}
		drain(resp)

		next, err := c.cfg.RedirectPolicy(resp, redirects)
		if err != nil {
			return nil, &dups.APIError{Kind: dups.ErrRedirect, Op: req.op, Resource: req.resource, Status: resp.StatusCode, Err: err}
		}
		c.logger.Debug("re-signing redirected request", "op", req.op, "from", target.String(), "to", next.String())
		target = next
	}
}

// statusError maps a failed response to an APIError and closes its body.
func (c *Client) statusError(req request, resp *http.Response) error {
	defer drain(resp)
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := strings.TrimSpace(string(data))
	var env envelope
	if json.Unmarshal(data, &env) == nil && env.Message != "" {
		message = env.Message
	}
	if len(message) > 200 {
		message = message[:200]
	}

	e := &dups.APIError{Op: req.op, Resource: req.resource, Status: resp.StatusCode, Message: message}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Kind = dups.ErrAuth
	case http.StatusNotFound:
		e.Kind = dups.ErrNotFound
	case http.StatusTooManyRequests:
		e.Kind = dups.ErrRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		e.Kind = dups.ErrNetwork
	}
	return e
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func jsonBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("smugmug: encode request: %w", err)
	}
	return data, nil
}
