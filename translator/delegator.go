package translator

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/schema"
)

// ============================================================================
// DELEGATOR: Question → model → validated plan → local execution
// ============================================================================
// Pipeline (plan mode):
//   1. Sample the view (capped at SampleRows)
//   2. Build system + user prompt
//   3. Call the Generator with a per-call timeout, one retry on transient errors
//   4. Parse plan + summary
//   5. Allow-list validation
//   6. engine.Execute and a shape check on the table
// ============================================================================

// Delegator answers questions through a Generator.
type Delegator struct {
	gen  Generator
	cfg  Config
	opts []engine.Option
	wait func(ctx context.Context, d time.Duration) error
}

// NewDelegator wires a Generator with the reliability settings from cfg.
// Engine options apply when plans are executed.
func NewDelegator(gen Generator, cfg Config, opts ...engine.Option) *Delegator {
	return &Delegator{
		gen:  gen,
		cfg:  cfg.withDefaults(),
		opts: opts,
		wait: sleepCtx,
	}
}

// Config returns the effective configuration.
func (d *Delegator) Config() Config { return d.cfg }

// Delegate answers question from the dataset described by sch and viewed
// through view.
func (d *Delegator) Delegate(ctx context.Context, question string, sch schema.Config, view engine.RecordView) (*Answer, error) {
	view = engine.NewDerivedView(view)
	mode := d.cfg.Mode

	req := Request{
		Mode:               mode,
		SystemInstructions: BuildPrompt(sch, mode),
		Schema:             sch,
		Rows:               SampleView(view, d.cfg.SampleRows),
	}
	req.UserPrompt = BuildUserPrompt(question, req.Rows, mode)

	log.Printf("🔄 storequery: fallback query=%q mode=%s rows=%d/%d",
		truncate(question, 80), mode, len(req.Rows.Rows), req.Rows.Total)

	raw, attempts, err := d.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if mode == ModeAnswer {
		text, err := parseAnswer(raw)
		if err != nil {
			return nil, err
		}
		return &Answer{Mode: mode, Reply: text, Attempts: attempts}, nil
	}

	plan, summary, err := parsePlan(raw)
	if err != nil {
		log.Printf("⚠️ storequery: unparseable plan: %v", err)
		return nil, err
	}
	if err := ValidatePlan(*plan.QuerySpec, sch); err != nil {
		log.Printf("⚠️ storequery: %v", err)
		return nil, &GenerationError{Raw: raw, Err: err}
	}

	result, err := engine.Execute(*plan.QuerySpec, view, d.opts...)
	if err != nil {
		return nil, &GenerationError{Raw: raw, Err: fmt.Errorf("executing plan: %w", err)}
	}
	if result.Table != nil {
		if err := result.Table.Validate(); err != nil {
			return nil, &GenerationError{Raw: raw, Err: err}
		}
	}
	result.Interpretation = plan.Interpretation

	reply := summary
	if reply == "" {
		reply = result.Reply
	}

	log.Printf("✅ storequery: fallback intent=%s aggregation=%s measure=%s rows=%d",
		plan.QuerySpec.Intent, plan.QuerySpec.Aggregation, plan.QuerySpec.Measure, result.Table.Len())

	return &Answer{
		Mode:           mode,
		Reply:          reply,
		Summary:        summary,
		QuerySpec:      plan.QuerySpec,
		Interpretation: plan.Interpretation,
		Result:         result,
		Attempts:       attempts,
	}, nil
}

// generate makes at most 1+Retries calls, each under its own timeout.
// Only retryable failures are repeated.
func (d *Delegator) generate(ctx context.Context, req Request) (string, int, error) {
	var lastErr error
	attempts := 0
	for attempts <= d.cfg.Retries {
		if attempts > 0 {
			if err := d.wait(ctx, d.cfg.Backoff); err != nil {
				break
			}
		}
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		out, err := d.gen.Generate(callCtx, req)
		cancel()
		if err == nil {
			return out, attempts, nil
		}
		lastErr = err

		log.WithFields(log.Fields{
			"attempt":   attempts,
			"retryable": IsRetryable(err),
		}).Warnf("storequery: model call failed: %v", err)

		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return "", attempts, &ExternalError{Attempts: attempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
