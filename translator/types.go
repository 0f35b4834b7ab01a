package translator

import (
	"context"
	"time"

	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/schema"
)

// ============================================================================
// TRANSLATOR: Fallback for questions no rule answers
// ============================================================================
// The translator is the ONLY component that calls an external AI service.
// It sends the schema description plus a capped sample of rows and asks
// for either a declarative plan (a QuerySpec) or a free-text answer.
//
// A plan is validated against an allow-list and executed locally by
// engine.Execute. Nothing the model returns is ever run as code.
// ============================================================================

// Mode selects what the model is asked to produce.
type Mode string

const (
	// ModePlan asks for a JSON QuerySpec followed by a summary.
	ModePlan Mode = "plan"
	// ModeAnswer asks for a plain-text answer grounded on the sample.
	ModeAnswer Mode = "answer"
)

// SummarySeparator divides the plan JSON from the summary text.
const SummarySeparator = "---SUMMARY---"

// Generator produces model output for a request.
// Implementations: Gemini (production), fakes in tests.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is everything one model call sees.
type Request struct {
	Mode               Mode          `json:"mode"`
	SystemInstructions string        `json:"systemInstructions"`
	UserPrompt         string        `json:"userPrompt"`
	Schema             schema.Config `json:"schema"`
	Rows               Sample        `json:"rows"`
}

// Sample is a capped slice of the dataset in pivoted form.
type Sample struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	Total  int        `json:"total"` // rows before the cap
}

// Answer is the outcome of one fallback call.
type Answer struct {
	Mode           Mode                   `json:"mode"`
	Reply          string                 `json:"reply"`
	Summary        string                 `json:"summary,omitempty"`
	QuerySpec      *engine.QuerySpec      `json:"querySpec,omitempty"`
	Interpretation *engine.Interpretation `json:"interpretation,omitempty"`
	Result         *engine.Result         `json:"result,omitempty"`
	Attempts       int                    `json:"attempts"`
}

// Config holds translator configuration.
type Config struct {
	APIKey     string        // AI provider API key
	Model      string        // Model name (e.g., "gemini-2.0-flash")
	Endpoint   string        // API endpoint override (empty = default)
	Mode       Mode          // plan (default) or answer
	Timeout    time.Duration // per call
	Retries    int           // extra attempts after the first
	Backoff    time.Duration // wait before a retry
	SampleRows int           // row cap sent with each request
}

const (
	DefaultModel      = "gemini-2.0-flash"
	DefaultEndpoint   = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultTimeout    = 30 * time.Second
	DefaultBackoff    = 500 * time.Millisecond
	DefaultSampleRows = 200
)

// DefaultGeminiConfig returns a Config with sensible Gemini defaults.
func DefaultGeminiConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		Model:      DefaultModel,
		Endpoint:   DefaultEndpoint,
		Mode:       ModePlan,
		Timeout:    DefaultTimeout,
		Retries:    1,
		Backoff:    DefaultBackoff,
		SampleRows: DefaultSampleRows,
	}
}

// withDefaults fills zero fields. A zero Retries gets one retry; a
// negative Retries disables retrying.
func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Mode == "" {
		c.Mode = ModePlan
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.Retries == 0:
		c.Retries = 1
	case c.Retries < 0:
		c.Retries = 0
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.SampleRows <= 0 {
		c.SampleRows = DefaultSampleRows
	}
	return c
}
