package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Response is the decoded payload of one successful mutation.
type Response struct {
	Data map[string]any `json:"data"`
}

// Get walks nested objects of the response data, returning nil when any
// segment is missing. Handlers use it to reach the mutation payload, e.g.
// resp.Get("activities", "logActivity").
func (r *Response) Get(path ...string) map[string]any {
	if r == nil {
		return nil
	}
	current := r.Data
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// accessTokenCookie carries the access token's expiry time (unix seconds);
// the backend sets it alongside the httpOnly token cookies.
const accessTokenCookie = "atEat"

// refreshLeeway is how close to expiry the access token may get before a
// refresh is forced ahead of the next request.
const refreshLeeway = 10 * time.Second

// Client is the GraphQL transport: it posts mutation documents with their
// variables, coalesces batchable mutations into a single HTTP call, and
// keeps the cookie-carried session fresh through a single-flight token
// refresh. All callers awaiting a refresh observe the same outcome.
type Client struct {
	apiHost     string
	graphqlPath string
	http        *http.Client
	timeout     time.Duration
	refresh     singleflight.Group
	onAuthLost  func()
	nowFn       func() time.Time
	log         *slog.Logger
	batcher     *batcher
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request deadline after which a request is treated
// as a retryable timeout failure.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithAuthLostHandler registers the logout hook invoked when the refresh
// token is rejected.
func WithAuthLostHandler(fn func()) ClientOption {
	return func(c *Client) { c.onAuthLost = fn }
}

// WithTransportLogger sets the structured logger.
func WithTransportLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithBatchWindow tunes how long the transport waits to coalesce batchable
// mutations before flushing.
func WithBatchWindow(d time.Duration) ClientOption {
	return func(c *Client) { c.batcher.window = d }
}

// NewClient creates a transport for the API at apiHost (e.g.
// "https://host/api").
func NewClient(apiHost string, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		apiHost:     apiHost,
		graphqlPath: "/graphql",
		http:        &http.Client{Jar: jar},
		timeout:     30 * time.Second,
		nowFn:       time.Now,
		log:         slog.Default(),
	}
	c.batcher = newBatcher(c, 10, 10*time.Millisecond)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mutate sends one mutation and decodes its outcome. Batchable mutations may
// be coalesced with concurrent ones into a single HTTP call; the per-request
// semantics are identical either way.
func (c *Client) Mutate(ctx context.Context, document string, variables map[string]any, batchable bool) (*Response, error) {
	if err := c.refreshTokenIfNeeded(ctx); err != nil {
		return nil, err
	}
	if batchable {
		return c.batcher.do(ctx, document, variables)
	}
	results, err := c.post(ctx, []operation{{Query: document, Variables: variables}})
	if err != nil {
		return nil, err
	}
	return decodeResult(document, results[0])
}

// refreshTokenIfNeeded refreshes the cookie-carried access token when it is
// about to expire. Concurrent callers share one in-flight refresh.
func (c *Client) refreshTokenIfNeeded(ctx context.Context) error {
	expiry, ok := c.accessTokenExpiry()
	if !ok || c.nowFn().Add(refreshLeeway).Before(expiry) {
		return nil
	}
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiHost+"/token/refresh", nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, classifyTransportError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.log.Warn("token refresh rejected", "status", resp.StatusCode)
			if c.onAuthLost != nil {
				c.onAuthLost()
			}
			return nil, &RefreshTokenError{Message: string(body)}
		}
		return nil, nil
	})
	return err
}

func (c *Client) accessTokenExpiry() (time.Time, bool) {
	base, err := url.Parse(c.apiHost)
	if err != nil || c.http.Jar == nil {
		return time.Time{}, false
	}
	for _, cookie := range c.http.Jar.Cookies(base) {
		if cookie.Name == accessTokenCookie {
			unix, err := strconv.ParseInt(cookie.Value, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.Unix(unix, 0), true
		}
	}
	return time.Time{}, false
}

// operation is one GraphQL operation on the wire.
type operation struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// wireResult is the wire shape of one operation's outcome.
type wireResult struct {
	Data   map[string]any `json:"data"`
	Errors []wireError    `json:"errors,omitempty"`
}

type wireError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// post transmits one or more operations in a single HTTP call. A single
// operation is posted as an object, several as an array (apollo batch
// framing); the response mirrors the request shape.
func (c *Client) post(ctx context.Context, ops []operation) ([]wireResult, error) {
	var payload any = ops
	if len(ops) == 1 {
		payload = ops[0]
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiHost+c.graphqlPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.onAuthLost != nil {
			c.onAuthLost()
		}
		return nil, &RefreshTokenError{Message: "access rejected"}
	case resp.StatusCode >= 500:
		return nil, &NetworkError{Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if len(ops) == 1 {
		var single wireResult
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, &NetworkError{Err: fmt.Errorf("decode response: %w", err)}
		}
		return []wireResult{single}, nil
	}
	var many []wireResult
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("decode batch response: %w", err)}
	}
	if len(many) != len(ops) {
		return nil, &NetworkError{Err: fmt.Errorf("batch response size %d for %d operations", len(many), len(ops))}
	}
	return many, nil
}

// decodeResult turns one wire result into a Response or a terminal
// MutationError carrying the structured GraphQL errors.
func decodeResult(document string, res wireResult) (*Response, error) {
	if len(res.Errors) == 0 {
		return &Response{Data: res.Data}, nil
	}
	me := &MutationError{Document: document}
	for _, we := range res.Errors {
		ge := GraphQLError{Message: we.Message, Extensions: we.Extensions}
		if code, ok := we.Extensions["code"].(string); ok {
			ge.Code = code
		}
		me.Errors = append(me.Errors, ge)
	}
	return nil, me
}

// classifyTransportError maps low-level HTTP failures onto the retryable
// error taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &NetworkError{Err: err}
}
