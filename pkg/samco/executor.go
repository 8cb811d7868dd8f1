package samco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the StockNote REST host.
	DefaultBaseURL = "https://api.stocknote.com"

	// SessionTokenHeader carries the session token on every signed request.
	SessionTokenHeader = "x-session-token"

	defaultRate    = 10
	defaultWindow  = time.Second
	defaultTimeout = 15 * time.Second
)

// Request is an unsigned broker call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte // JSON payload, nil for none
}

// Endpoint returns "METHOD /path" for logs and errors.
func (r Request) Endpoint() string {
	return r.Method + " /" + strings.TrimLeft(r.Path, "/")
}

// Response is a fully read broker response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Attempts   int
}

// ExecutorConfig configures the request executor. Zero values get defaults.
type ExecutorConfig struct {
	BaseURL    string        // default: https://api.stocknote.com
	Rate       int           // admissions per Window, default: 10
	Window     time.Duration // default: 1s
	Retry      RetryPolicy   // default: DefaultRetryPolicy()
	Timeout    time.Duration // per send, default: 15s
	HTTPClient *http.Client  // optional, overrides Timeout

	// Optional hooks, e.g. for metrics.
	OnWait     func(d time.Duration)
	OnThrottle func(endpoint string, attempt int)
	OnResponse func(endpoint string, status int, d time.Duration)
}

// Executor signs, rate-limits and retries broker calls.
//
// Admission is a token bucket refilled at Rate per Window with a burst of one,
// so no more than Rate sends start within any rolling Window.
type Executor struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy

	onWait     func(time.Duration)
	onThrottle func(string, int)
	onResponse func(string, int, time.Duration)

	tokenMu sync.RWMutex
	token   string

	// serializes Authorize and Logout against each other
	sessionMu sync.Mutex
}

// NewExecutor creates an executor with defaults applied.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Rate <= 0 {
		cfg.Rate = defaultRate
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Executor{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.Rate)), 1),
		retry:      cfg.Retry,
		onWait:     cfg.OnWait,
		onThrottle: cfg.OnThrottle,
		onResponse: cfg.OnResponse,
	}
}

// Token returns the current session token ("" when logged out).
func (e *Executor) Token() string {
	e.tokenMu.RLock()
	defer e.tokenMu.RUnlock()
	return e.token
}

// SetToken installs a session token obtained elsewhere.
func (e *Executor) SetToken(t string) {
	e.tokenMu.Lock()
	e.token = t
	e.tokenMu.Unlock()
}

func (e *Executor) sign() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if tok := e.Token(); tok != "" {
		h.Set(SessionTokenHeader, tok)
	}
	return h
}

// Execute signs req once and sends it under the retry policy.
// The final response is returned unmodified whatever its status; only
// transport failures and context cancellation are returned as errors.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	hdr := e.sign()
	endpoint := req.Endpoint()

	return e.retry.Run(ctx, func(ctx context.Context, n int) (*Response, error) {
		if n > 1 {
			slog.Warn("broker throttled request, retrying",
				slog.String("component", "executor"),
				slog.String("endpoint", endpoint),
				slog.Int("attempt", n))
			if e.onThrottle != nil {
				e.onThrottle(endpoint, n)
			}
		}
		if err := e.admit(ctx); err != nil {
			return nil, err
		}
		return e.send(ctx, req, hdr)
	})
}

// admit blocks until the limiter lets one request through.
func (e *Executor) admit(ctx context.Context) error {
	if e.limiter.Allow() {
		return nil
	}
	slog.Debug("request rate limited, waiting for a slot", slog.String("component", "executor"))
	start := time.Now()
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if e.onWait != nil {
		e.onWait(time.Since(start))
	}
	return nil
}

// send performs one HTTP round trip. It has no retry or limiter logic.
func (e *Executor) send(ctx context.Context, req Request, hdr http.Header) (*Response, error) {
	u := e.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		if strings.Contains(u, "?") {
			u += "&" + req.Query.Encode()
		} else {
			u += "?" + req.Query.Encode()
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", req.Endpoint(), err)
	}
	httpReq.Header = hdr.Clone()
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Endpoint(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", req.Endpoint(), err)
	}
	if e.onResponse != nil {
		e.onResponse(req.Endpoint(), resp.StatusCode, time.Since(start))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

// Authorize logs in and stores the returned session token for all later calls.
func (e *Executor) Authorize(ctx context.Context, userID, password, yob string) (*LoginResponse, error) {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()

	payload, err := json.Marshal(AuthRequest{UserID: userID, Password: password, YOB: yob})
	if err != nil {
		return nil, fmt.Errorf("login: marshal: %w", err)
	}
	req := Request{Method: http.MethodPost, Path: "/login", Body: payload}
	resp, err := e.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Endpoint: req.Endpoint(), StatusCode: resp.StatusCode, Status: resp.Status, Body: resp.Body}
	}

	var out LoginResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, &ParseError{Source: req.Endpoint(), Err: err}
	}
	if out.SessionToken == "" {
		return nil, fmt.Errorf("%s: no session token in response (status=%s message=%s)",
			req.Endpoint(), out.Status, out.StatusMessage)
	}

	e.SetToken(out.SessionToken)
	slog.Info("broker session established",
		slog.String("component", "executor"),
		slog.String("account_id", out.AccountID))
	return &out, nil
}

// Logout invalidates the session server-side and clears the stored token.
func (e *Executor) Logout(ctx context.Context) error {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()

	req := Request{Method: http.MethodDelete, Path: "/logout"}
	resp, err := e.Execute(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Endpoint: req.Endpoint(), StatusCode: resp.StatusCode, Status: resp.Status, Body: resp.Body}
	}
	e.SetToken("")
	slog.Info("broker session closed", slog.String("component", "executor"))
	return nil
}
