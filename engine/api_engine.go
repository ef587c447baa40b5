package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/harvest/models"
)

// APIEngine fetches through a Scrapfly-compatible scraping API. The API
// does the proxying, browser rendering and anti-bot work; this engine
// only encodes requests, decodes the envelope and retries transient
// failures.
type APIEngine struct {
	baseURL    string
	key        string
	client     *http.Client
	retries    int
	retryDelay time.Duration
}

// APIEngineConfig configures an APIEngine.
type APIEngineConfig struct {
	BaseURL    string
	Key        string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// NewAPIEngine creates an APIEngine.
func NewAPIEngine(cfg APIEngineConfig) *APIEngine {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &APIEngine{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.Key,
		client:     client,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
	}
}

func (e *APIEngine) Name() string { return "api" }

// RendersJS reports true: rendering is delegated to the API.
func (e *APIEngine) RendersJS() bool { return true }

// apiEnvelope is the subset of the scraping-API response we consume.
type apiEnvelope struct {
	Result struct {
		Content    string    `json:"content"`
		StatusCode int       `json:"status_code"`
		URL        string    `json:"url"`
		Success    bool      `json:"success"`
		Error      *apiError `json:"error"`
	} `json:"result"`

	// Set instead of Result when the API itself rejects the call.
	apiError
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// attemptError marks whether a failed attempt may be retried.
type attemptError struct {
	err       error
	retryable bool
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func (e *APIEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	endpoint := e.endpoint(req)

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			delay := e.retryDelay << (attempt - 1)
			slog.Debug("api_engine: retrying",
				"url", req.URL, "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, e.fail(req, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := e.attempt(ctx, endpoint, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var ae *attemptError
		if errors.As(err, &ae) && !ae.retryable {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, e.fail(req, lastErr)
}

func (e *APIEngine) fail(req *FetchRequest, err error) error {
	code := models.ErrCodeTransport
	if errors.Is(err, context.DeadlineExceeded) {
		code = models.ErrCodeTimeout
	}
	return &models.ScrapeError{
		Code:    code,
		Message: "scraping api request failed",
		URL:     req.URL,
		Err:     err,
	}
}

// endpoint encodes the request descriptor into the API's query string.
func (e *APIEngine) endpoint(req *FetchRequest) string {
	q := url.Values{}
	q.Set("key", e.key)
	q.Set("url", req.URL)
	if req.ASP {
		q.Set("asp", "true")
	}
	if req.RenderJS {
		q.Set("render_js", "true")
	}
	if req.Country != "" {
		q.Set("country", strings.ToLower(req.Country))
	}
	if req.Session != "" {
		q.Set("session", req.Session)
	}
	if req.Cache {
		q.Set("cache", "true")
	}
	if req.Debug {
		q.Set("debug", "true")
	}
	for k, v := range req.Headers {
		q.Set("headers["+strings.ToLower(k)+"]", v)
	}
	return e.baseURL + "/scrape?" + q.Encode()
}

func (e *APIEngine) attempt(ctx context.Context, endpoint string, req *FetchRequest) (*FetchResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("api_engine: build request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("api_engine: do request: %w", err), retryable: true}
	}
	defer resp.Body.Close()

	// Scraped pages can be large; cap at 50 MB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("api_engine: read body: %w", err), retryable: true}
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &attemptError{
			err:       fmt.Errorf("api_engine: decode envelope (HTTP %d): %w", resp.StatusCode, err),
			retryable: resp.StatusCode >= 500,
		}
	}

	if resp.StatusCode >= 400 || !env.Result.Success {
		apiErr := env.Result.Error
		if apiErr == nil && env.Code != "" {
			apiErr = &env.apiError
		}
		msg := "HTTP " + strconv.Itoa(resp.StatusCode)
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if apiErr != nil {
			msg += " " + apiErr.Code + ": " + apiErr.Message
			retryable = retryable || apiErr.Retryable
		}
		if env.Result.StatusCode >= 500 {
			retryable = true
		}
		return nil, &attemptError{err: fmt.Errorf("api_engine: %s", msg), retryable: retryable}
	}

	return &FetchResult{
		Content:    env.Result.Content,
		StatusCode: env.Result.StatusCode,
		FinalURL:   env.Result.URL,
		EngineName: e.Name(),
		Request:    req,
	}, nil
}
