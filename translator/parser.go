package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spektr-org/storequery/engine"
)

// ============================================================================
// RESPONSE PARSER: Extracts a plan or an answer from model output
// ============================================================================
// Accepted plan shapes, each optionally fenced and optionally followed by
// the summary separator:
//   {"interpretation": {...}, "querySpec": {...}}
//   {...QuerySpec fields...}
// Prose before the first "{" is ignored.
// ============================================================================

type planResponse struct {
	QuerySpec      *engine.QuerySpec      `json:"querySpec"`
	Interpretation *engine.Interpretation `json:"interpretation"`
}

// parsePlan extracts the QuerySpec, the optional interpretation and the
// summary from a plan-mode response.
func parsePlan(raw string) (*planResponse, string, error) {
	body, summary := splitSummary(raw)

	obj, ok := jsonObject(stripFences(body))
	if !ok {
		return nil, "", malformed(raw, fmt.Errorf("no JSON object found"))
	}

	var plan planResponse
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		return nil, "", malformed(raw, err)
	}
	if plan.QuerySpec == nil {
		var direct engine.QuerySpec
		if err := json.Unmarshal([]byte(obj), &direct); err != nil {
			return nil, "", malformed(raw, err)
		}
		if direct.Intent == "" && direct.Measure == "" && direct.Aggregation == "" {
			return nil, "", malformed(raw, fmt.Errorf("response has no querySpec"))
		}
		plan.QuerySpec = &direct
	}

	spec := plan.QuerySpec
	if spec.Intent == "" {
		spec.Intent = "text"
	}
	if spec.Aggregation == "" {
		spec.Aggregation = "sum"
	}
	if spec.Visualize == "" {
		spec.Visualize = spec.Intent
	}
	if spec.Confidence == 0 && plan.Interpretation != nil && plan.Interpretation.Confidence > 0 {
		spec.Confidence = plan.Interpretation.Confidence
	}
	*spec = engine.NormalizeQuerySpec(*spec)

	if summary == "" && plan.Interpretation != nil {
		summary = plan.Interpretation.Summary
	}
	return &plan, summary, nil
}

// parseAnswer cleans a free-text response.
func parseAnswer(raw string) (string, error) {
	text, _ := splitSummary(raw)
	text = strings.TrimSpace(stripFences(text))
	if text == "" {
		return "", malformed(raw, ErrEmptyResponse)
	}
	return text, nil
}

func malformed(raw string, cause error) error {
	return &GenerationError{Raw: raw, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, cause)}
}

// splitSummary cuts at the first separator line.
func splitSummary(raw string) (body, summary string) {
	if i := strings.Index(raw, SummarySeparator); i >= 0 {
		return raw[:i], strings.TrimSpace(raw[i+len(SummarySeparator):])
	}
	return raw, ""
}

// stripFences removes a ``` or ```json fence pair anywhere in s.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// jsonObject returns the span from the first "{" to its matching "}".
func jsonObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
