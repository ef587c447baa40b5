package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/models"
)

// RodEngine renders pages in a local Chromium controlled through rod. It is
// the second tier of the direct-mode race and the only direct engine that
// can serve RenderJS requests.
type RodEngine struct {
	browser  *rod.Browser
	pool     rod.Pool[rod.Page]
	sessions *SessionJars
	maxPages int
	blocked  map[proto.NetworkResourceType]struct{}
	health   *pageHealth
	active   atomic.Int32
}

// RodEngineConfig configures a RodEngine.
type RodEngineConfig struct {
	Headless   bool
	NoSandbox  bool
	BrowserBin string
	Proxy      string
	MaxPages   int

	// BlockResources skips images, fonts and media while rendering.
	BlockResources bool

	// Sessions is shared with the HTTP engine so both tiers see the same
	// cookies for a session.
	Sessions *SessionJars
}

// NewRodEngine launches a browser and initialises the page pool.
func NewRodEngine(cfg RodEngineConfig) (*RodEngine, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionJars(0)
	}

	e := &RodEngine{
		browser:  browser,
		pool:     rod.NewPagePool(maxPages),
		sessions: sessions,
		maxPages: maxPages,
		health:   newPageHealth(),
	}
	if cfg.BlockResources {
		e.blocked = map[proto.NetworkResourceType]struct{}{
			proto.NetworkResourceTypeImage: {},
			proto.NetworkResourceTypeFont:  {},
			proto.NetworkResourceTypeMedia: {},
		}
	}
	return e, nil
}

func (e *RodEngine) Name() string { return "rod" }

func (e *RodEngine) RendersJS() bool { return true }

func (e *RodEngine) EndSession(session string) { e.sessions.EndSession(session) }

// ActivePages returns the number of tabs currently in use.
func (e *RodEngine) ActivePages() int { return int(e.active.Load()) }

// MaxPages returns the page pool capacity.
func (e *RodEngine) MaxPages() int { return e.maxPages }

// Close drains the page pool and kills the browser process.
func (e *RodEngine) Close() {
	e.pool.Cleanup(closePage)
	if err := e.browser.Close(); err != nil {
		slog.Warn("rod_engine: close browser", "error", err)
	}
}

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (_ *FetchResult, err error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	target, perr := url.Parse(req.URL)
	if perr != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid request url", perr)
	}

	e.active.Add(1)
	defer e.active.Add(-1)

	page, gerr := e.pool.Get(e.newPage)
	if gerr != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", gerr)
	}
	// The original page reference has no request context, so cleanup
	// still works after the deadline fired.
	defer func() { e.release(page, err == nil) }()

	if req.ASP {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("rod_engine: stealth injection failed", "error", err)
		}
	}

	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(req.Headers)}.Call(page)
	}

	if err := e.importCookies(page, req.Session, target); err != nil {
		slog.Warn("rod_engine: import session cookies", "session", req.Session, "error", err)
	}

	if router := e.hijack(page); router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)
	if err := p.Navigate(req.URL); err != nil {
		return nil, browserError(req.URL, err, "navigation failed")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("rod_engine: DOM did not settle", "url", req.URL, "error", err)
	}

	content, err := pageContent(p)
	if err != nil {
		return nil, browserError(req.URL, err, "failed to read page content")
	}

	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const nav = performance.getEntriesByType("navigation");
			if (nav.length > 0) return nav[0].responseStatus || 0;
		} catch (e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	finalURL := req.URL
	if res, err := p.Eval(`() => window.location.href`); err == nil && res.Value.Str() != "" {
		finalURL = res.Value.Str()
	}

	if err := e.exportCookies(p, req.Session, target); err != nil {
		slog.Warn("rod_engine: export session cookies", "session", req.Session, "error", err)
	}

	if statusCode >= 400 {
		return nil, &models.ScrapeError{
			Code:    models.ErrCodeTransport,
			Message: "upstream status " + http.StatusText(statusCode),
			URL:     req.URL,
		}
	}

	return &FetchResult{
		Content:    content,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		EngineName: e.Name(),
		Request:    req,
	}, nil
}

// pageContent returns the rendered HTML, or the raw body text when the
// browser is showing a JSON (or other non-HTML) document.
func pageContent(p *rod.Page) (string, error) {
	res, err := p.Eval(`() => document.contentType`)
	if err == nil && res.Value.Str() != "text/html" && res.Value.Str() != "" {
		body, err := p.Eval(`() => document.body ? document.body.innerText : document.documentElement.textContent`)
		if err != nil {
			return "", err
		}
		return body.Value.Str(), nil
	}
	return p.HTML()
}

// newPage opens a tab in its own browser context. Cookies set or cleared
// through the tab never reach the other tabs of the pool.
func (e *RodEngine) newPage() (*rod.Page, error) {
	incognito, err := e.browser.Incognito()
	if err != nil {
		return nil, err
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, err
	}
	return page, nil
}

// closePage closes page and disposes of its browser context.
func closePage(page *rod.Page) {
	_ = page.Close()
	if b := page.Browser(); b.BrowserContextID != "" {
		_ = b.Close()
	}
}

// release returns page to the pool, or closes it and frees its slot when
// its health says it should be retired.
func (e *RodEngine) release(page *rod.Page, success bool) {
	if e.health.record(page, success) {
		slog.Debug("rod_engine: retiring page")
		closePage(page)
		e.pool.Put(nil)
		return
	}
	if err := page.Browser().SetCookies(nil); err != nil {
		slog.Warn("rod_engine: clear page cookies", "error", err)
	}
	if err := page.Navigate("about:blank"); err != nil {
		slog.Warn("rod_engine: reset page", "error", err)
	}
	e.pool.Put(page)
}

func (e *RodEngine) importCookies(page *rod.Page, session string, u *url.URL) error {
	params := cookieParams(e.sessions.Cookies(session, u), u)
	if len(params) == 0 {
		return nil
	}
	return page.SetCookies(params)
}

func (e *RodEngine) exportCookies(page *rod.Page, session string, u *url.URL) error {
	if session == "" {
		return nil
	}
	cookies, err := page.Cookies([]string{u.String()})
	if err != nil {
		return err
	}
	e.sessions.Store(session, u, httpCookies(cookies))
	return nil
}

// cookieParams scopes jar cookies to u for injection into a page.
func cookieParams(cookies []*http.Cookie, u *url.URL) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   u.String(),
		})
	}
	return params
}

func httpCookies(cookies []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}

// hijack blocks heavy resource types. It returns nil when nothing is
// blocked; the caller must Stop a non-nil router.
func (e *RodEngine) hijack(page *rod.Page) *rod.HijackRouter {
	if len(e.blocked) == 0 {
		return nil
	}
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if _, ok := e.blocked[h.Request.Type()]; ok {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// toHeadersMap converts headers to the gson-valued map CDP expects.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

func browserError(target string, err error, msg string) *models.ScrapeError {
	code := models.ErrCodeBrowserCrash
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = models.ErrCodeTimeout
	case errors.As(err, new(*rod.NavigationError)):
		code = models.ErrCodeTransport
	}
	return &models.ScrapeError{Code: code, Message: msg, URL: target, Err: err}
}
