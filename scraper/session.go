package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/use-agent/harvest/models"
)

// ObtainSession opens a fresh session by rendering seedURL once with the
// session attached, so the cookies it sets authorize later API calls of
// the same session. The returned id is immutable; attach it to every
// template of the operation. Any failure is fatal for the operation.
func (s *Scraper) ObtainSession(ctx context.Context, seedURL string) (string, error) {
	id := s.sessionPrefix(seedURL) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	t := s.Template(seedURL)
	t.RenderJS = true
	t.Session = id

	if _, err := s.client.Fetch(ctx, t.Build(0)); err != nil {
		s.client.EndSession(id)
		return "", &models.ScrapeError{
			Code:    models.ErrCodeSession,
			Message: "could not establish session",
			URL:     seedURL,
			Err:     err,
		}
	}
	return id, nil
}

// EndSession drops the cookies held for a session. Call it once the
// operation that obtained the session is done with it.
func (s *Scraper) EndSession(id string) {
	s.client.EndSession(id)
}

// sessionPrefix is the configured prefix or the site name taken from the
// seed host, e.g. "tiktok" for www.tiktok.com.
func (s *Scraper) sessionPrefix(seedURL string) string {
	if s.opts.SessionPrefix != "" {
		return s.opts.SessionPrefix
	}
	u, err := url.Parse(seedURL)
	if err != nil || u.Hostname() == "" {
		return "session"
	}
	labels := strings.Split(u.Hostname(), ".")
	if len(labels) >= 2 {
		return labels[len(labels)-2]
	}
	return labels[0]
}
