package engine

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/use-agent/harvest/cache"
)

const (
	// DefaultSessionTTL bounds how long an abandoned session's cookies live.
	DefaultSessionTTL = 30 * time.Minute

	maxSessions = 10000
)

// SessionEnder is implemented by fetchers that hold per-session state.
// EndSession discards that state; later requests of the session start
// from scratch.
type SessionEnder interface {
	EndSession(session string)
}

// SessionJars keeps one cookie jar per session id so the direct engines
// can carry cookies between requests of the same session, the way the
// scraping API does server-side. Jars expire ttl after creation even when
// nobody ends the session.
type SessionJars struct {
	mu   sync.Mutex // serialises get-or-create
	jars *cache.Cache[http.CookieJar]
}

// NewSessionJars creates an empty jar registry. ttl <= 0 uses
// DefaultSessionTTL.
func NewSessionJars(ttl time.Duration) *SessionJars {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionJars{jars: cache.New[http.CookieJar](maxSessions, ttl)}
}

// Jar returns the jar for session, creating it on first use. An empty
// session id yields nil: stateless requests carry no cookies.
func (s *SessionJars) Jar(session string) http.CookieJar {
	if session == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if jar, ok := s.jars.Get(session); ok {
		return jar
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil options value.
		return nil
	}
	s.jars.Set(session, jar)
	return jar
}

// Store adds cookies for u to the session's jar.
func (s *SessionJars) Store(session string, u *url.URL, cookies []*http.Cookie) {
	if jar := s.Jar(session); jar != nil && len(cookies) > 0 {
		jar.SetCookies(u, cookies)
	}
}

// Cookies returns the session's cookies applicable to u.
func (s *SessionJars) Cookies(session string, u *url.URL) []*http.Cookie {
	if jar := s.Jar(session); jar != nil {
		return jar.Cookies(u)
	}
	return nil
}

// EndSession forgets a session.
func (s *SessionJars) EndSession(session string) {
	s.jars.Delete(session)
}

// Len returns the number of held sessions, expired ones included until
// the next cleanup sweep.
func (s *SessionJars) Len() int {
	return s.jars.Len()
}

// Close stops the expiry loop.
func (s *SessionJars) Close() {
	s.jars.Stop()
}
