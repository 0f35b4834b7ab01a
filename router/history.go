package router

import (
	"sync"
	"time"

	"github.com/spektr-org/storequery/engine"
)

// DefaultHistorySize is how many resolutions a session keeps.
const DefaultHistorySize = 10

// Source says which path answered a question.
type Source string

const (
	SourceRule     Source = "rule"
	SourceFallback Source = "fallback"
	SourceNone     Source = "none"
)

// QueryResolution is the outcome of one question. Failed questions are
// recorded too, with Error set and no Result.
type QueryResolution struct {
	ID              string         `json:"id"`
	Question        string         `json:"question"`
	AskedAt         time.Time      `json:"askedAt"`
	DatasetID       string         `json:"datasetId"`
	Source          Source         `json:"source"`
	RuleID          string         `json:"ruleId,omitempty"`
	Label           string         `json:"label,omitempty"`
	Metric          string         `json:"metric,omitempty"`
	Store           string         `json:"store,omitempty"`
	StoreCandidates []string       `json:"storeCandidates,omitempty"`
	Period          string         `json:"period,omitempty"`
	Reply           string         `json:"reply"`
	Result          *engine.Result `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	// Raw is the model output behind a failed fallback.
	Raw      string        `json:"raw,omitempty"`
	Duration time.Duration `json:"durationNs"`

	err error
}

// Err returns the failure behind the resolution, if any.
func (r *QueryResolution) Err() error { return r.err }

// History is a bounded ring buffer of resolutions, oldest evicted first.
type History struct {
	mu    sync.RWMutex
	buf   []*QueryResolution
	start int
	n     int
}

// NewHistory creates a buffer holding at most size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]*QueryResolution, size)}
}

// Add appends r, evicting the oldest entry when full.
func (h *History) Add(r *QueryResolution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = r
		h.n++
		return
	}
	h.buf[h.start] = r
	h.start = (h.start + 1) % len(h.buf)
}

// Entries returns the retained resolutions, oldest first.
func (h *History) Entries() []*QueryResolution {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*QueryResolution, 0, h.n)
	for i := 0; i < h.n; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

// Get finds a retained resolution by ID.
func (h *History) Get(id string) (*QueryResolution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := 0; i < h.n; i++ {
		if r := h.buf[(h.start+i)%len(h.buf)]; r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

func (h *History) Cap() int { return len(h.buf) }
