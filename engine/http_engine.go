package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/harvest/models"
)

// HTTPEngine fetches with plain HTTP and a Chrome TLS fingerprint. It is
// the first tier of the direct-mode race and serves every request that
// does not need JavaScript rendering.
type HTTPEngine struct {
	client   *http.Client
	sessions *SessionJars
}

// HTTPEngineConfig configures an HTTPEngine.
type HTTPEngineConfig struct {
	Timeout time.Duration

	// Proxy routes requests through an HTTP proxy. Proxied TLS is done by
	// net/http, so the Chrome fingerprint only applies to direct dials.
	Proxy string

	// Sessions holds per-session cookies. Nil creates a private registry.
	Sessions *SessionJars

	// Transport overrides the utls transport (tests).
	Transport http.RoundTripper
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// net/http cannot speak h2 over a utls conn, so never offer it.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine.
func NewHTTPEngine(cfg HTTPEngineConfig) (*HTTPEngine, error) {
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionJars(0)
	}

	transport := cfg.Transport
	if transport == nil {
		t := &http.Transport{
			DialTLSContext:    dialChromeTLS,
			ForceAttemptHTTP2: false,
		}
		if cfg.Proxy != "" {
			proxyURL, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("http_engine: parse proxy: %w", err)
			}
			t.Proxy = http.ProxyURL(proxyURL)
		}
		transport = t
	}

	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		sessions: sessions,
	}, nil
}

func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) EndSession(session string) { e.sessions.EndSession(session) }

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid request url", err)
	}

	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	// A shallow copy lets each session carry its own jar through redirects.
	client := *e.client
	client.Jar = e.sessions.Jar(req.Session)

	resp, err := client.Do(httpReq)
	if err != nil {
		code := models.ErrCodeTransport
		if ctx.Err() == context.DeadlineExceeded {
			code = models.ErrCodeTimeout
		}
		return nil, &models.ScrapeError{Code: code, Message: "http request failed", URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	const maxBody = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &models.ScrapeError{Code: models.ErrCodeTransport, Message: "read body", URL: req.URL, Err: err}
	}

	// Blocked or failed responses are errors so the dispatcher escalates.
	if resp.StatusCode >= 400 {
		return nil, &models.ScrapeError{
			Code:    models.ErrCodeTransport,
			Message: fmt.Sprintf("upstream status %d", resp.StatusCode),
			URL:     req.URL,
		}
	}

	return &FetchResult{
		Content:    string(body),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
		Request:    req,
	}, nil
}
