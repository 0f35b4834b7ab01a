package server

import (
	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/router"
)

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	SessionID string                    `json:"sessionId"`
	Capacity  int                       `json:"capacity"`
	Entries   []*router.QueryResolution `json:"entries"`
}

// RuleDTO is one rule in GET /api/rules.
type RuleDTO struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Metric   string   `json:"metric"`
	Label    string   `json:"label"`
	Triggers []string `json:"triggers"`
}

func toRuleDTOs(rules []engine.Rule) []RuleDTO {
	out := make([]RuleDTO, 0, len(rules))
	for _, r := range rules {
		out = append(out, RuleDTO{
			ID:       r.ID,
			Kind:     string(r.Kind),
			Metric:   string(r.Metric),
			Label:    r.Label,
			Triggers: r.Triggers,
		})
	}
	return out
}
