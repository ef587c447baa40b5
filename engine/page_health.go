package engine

import (
	"math"
	"sync"
	"time"

	"github.com/go-rod/rod"
)

// Page retirement thresholds. A page is closed instead of returned to the
// pool once any one of them is reached.
const (
	retireErrScore = 3.0
	retireUseCount = 50
	retireAge      = 50 * time.Minute
)

type pageStats struct {
	errScore float64
	useCount int
	created  time.Time
}

// pageHealth scores pooled browser tabs. Success lowers the error score by
// 0.5 (min 0), failure raises it by 1.
type pageHealth struct {
	mu    sync.Mutex
	pages map[*rod.Page]*pageStats
	now   func() time.Time
}

func newPageHealth() *pageHealth {
	return &pageHealth{
		pages: make(map[*rod.Page]*pageStats),
		now:   time.Now,
	}
}

// record applies the outcome of one fetch and reports whether the page
// should be retired. A retired page is forgotten.
func (h *pageHealth) record(p *rod.Page, success bool) (retire bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.pages[p]
	if !ok {
		s = &pageStats{created: h.now()}
		h.pages[p] = s
	}
	s.useCount++
	if success {
		s.errScore = math.Max(0, s.errScore-0.5)
	} else {
		s.errScore++
	}

	if s.errScore >= retireErrScore || s.useCount >= retireUseCount || h.now().Sub(s.created) >= retireAge {
		delete(h.pages, p)
		return true
	}
	return false
}

func (h *pageHealth) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pages)
}
