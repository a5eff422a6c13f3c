package glasir

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/glasir-hub/glasir-sync-api/internal/domain/shared"
	"github.com/glasir-hub/glasir-sync-api/internal/domain/timetable"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// FetcherConfig contains configuration for the upstream fetcher.
type FetcherConfig struct {
	// BaseURL is the Glasir site base URL
	BaseURL string

	// Timeout is the per-attempt HTTP timeout
	Timeout time.Duration

	// MaxRetries is the total number of attempts per request
	MaxRetries int

	// Backoff is the base delay; attempt n waits Backoff * 2^(n-1)
	Backoff time.Duration

	// Coordinator receives success/failure reports (optional)
	Coordinator Coordinator

	// ForceMaxConcurrency suppresses coordinator callbacks
	ForceMaxConcurrency bool

	// HTTPClient is an externally owned client; when set the fetcher does
	// not close it on teardown
	HTTPClient *http.Client

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables per-request debug logging
	Debug bool
}

// DefaultFetcherConfig returns sensible defaults.
func DefaultFetcherConfig(baseURL string) FetcherConfig {
	return FetcherConfig{
		BaseURL:    baseURL,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FETCHER
// ══════════════════════════════════════════════════════════════════════════════

// Response is the outcome of one upstream request. Redirect statuses are
// returned as-is rather than followed; on this site a 3xx means the session
// is no longer authenticated.
type Response struct {
	StatusCode int
	Body       string
	Header     http.Header
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Redirect reports whether the status is in the 3xx range.
func (r *Response) Redirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// Fetcher performs GET/POST against the Glasir site with a session cookie
// jar, browser default headers, and retry with exponential backoff.
type Fetcher struct {
	config      FetcherConfig
	httpClient  *http.Client
	ownsClient  bool
	logger      *slog.Logger
	coordinator Coordinator

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher seeded with the given session cookies.
func NewFetcher(config FetcherConfig, cookies []timetable.Cookie) (*Fetcher, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", config.BaseURL, err)
	}

	client := config.HTTPClient
	ownsClient := false
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
		ownsClient = true
	}

	// Each fetcher carries its own jar even over a shared transport, so
	// sessions never leak between students.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	jar.SetCookies(base, toHTTPCookies(cookies))

	clientCopy := *client
	clientCopy.Jar = jar
	clientCopy.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if clientCopy.Timeout == 0 {
		clientCopy.Timeout = config.Timeout
	}

	coordinator := config.Coordinator
	if coordinator == nil {
		coordinator = NullCoordinator{}
	}

	return &Fetcher{
		config:      config,
		httpClient:  &clientCopy,
		ownsClient:  ownsClient,
		logger:      config.Logger,
		coordinator: coordinator,
		sleep:       sleepCtx,
	}, nil
}

// Close releases the underlying client when the fetcher owns it.
func (f *Fetcher) Close() {
	if f.ownsClient {
		f.httpClient.CloseIdleConnections()
	}
}

// Get performs a GET with retries.
func (f *Fetcher) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return f.do(ctx, http.MethodGet, path, nil, headers)
}

// PostForm performs a form-urlencoded POST with retries.
func (f *Fetcher) PostForm(ctx context.Context, path string, form url.Values, headers map[string]string) (*Response, error) {
	return f.do(ctx, http.MethodPost, path, form, headers)
}

// do runs the retry loop around single attempts.
func (f *Fetcher) do(ctx context.Context, method, path string, form url.Values, headers map[string]string) (*Response, error) {
	fullURL := f.resolveURL(path)

	var lastErr error
	for attempt := 1; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 1 {
			wait := f.config.Backoff << (attempt - 2)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		resp, err := f.doSingle(ctx, method, fullURL, form, headers)
		if err != nil {
			lastErr = err
			f.reportFailure()
			if f.config.Debug {
				f.logger.Debug("upstream request failed",
					"method", method, "url", fullURL, "attempt", attempt, "error", err)
			}
			continue
		}

		// 2xx succeeds; 3xx is surfaced as-is so callers can detect a
		// lost session. 4xx/5xx go back to the retry loop.
		if resp.StatusCode < 400 {
			f.reportSuccess()
			return resp, nil
		}

		lastErr = &shared.UpstreamHTTPError{Op: method, URL: fullURL, StatusCode: resp.StatusCode}
		if isThrottleStatus(resp.StatusCode) {
			f.reportFailure()
		}
		if f.config.Debug {
			f.logger.Debug("upstream status error",
				"method", method, "url", fullURL, "attempt", attempt, "status", resp.StatusCode)
		}
	}

	if _, ok := lastErr.(*shared.UpstreamHTTPError); ok {
		return nil, lastErr
	}
	return nil, shared.WrapError("glasir", method, shared.ErrUpstreamTransport,
		fmt.Sprintf("request failed after %d attempts", f.config.MaxRetries), lastErr)
}

// doSingle performs a single HTTP attempt.
func (f *Fetcher) doSingle(ctx context.Context, method, fullURL string, form url.Values, headers map[string]string) (*Response, error) {
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for name, value := range defaultHeaders {
		req.Header.Set(name, value)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Header:     resp.Header,
	}, nil
}

func (f *Fetcher) resolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(f.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (f *Fetcher) reportSuccess() {
	if !f.config.ForceMaxConcurrency {
		f.coordinator.ReportSuccess()
	}
}

func (f *Fetcher) reportFailure() {
	if !f.config.ForceMaxConcurrency {
		f.coordinator.ReportFailure()
	}
}

func isThrottleStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusInternalServerError ||
		status == http.StatusServiceUnavailable
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func toHTTPCookies(cookies []timetable.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		}
		if c.Expires != "" {
			if t, err := time.Parse(time.RFC3339, c.Expires); err == nil {
				hc.Expires = t
			}
		}
		out = append(out, hc)
	}
	return out
}
