// Package storequery answers plain-English questions about per-store
// monthly financials.
//
// Usage:
//
//	import "github.com/spektr-org/storequery/router"
//
//	s := router.NewSession(router.WithFallback(delegator))
//	info, err := s.Load("pnl.xlsx", file)
//	res, err := s.Ask(ctx, "Which store had the highest net sales in Dec 24?")
//
// Uploads are normalized once by the schema package into an immutable
// dataset.Table of (month, store, metric, amount) observations. Questions go
// through entity extraction and the engine's rule registry. Only questions
// no rule covers reach the translator, which asks Gemini for a QuerySpec
// plan and runs it locally after validation. Generated text is never
// executed as code.
package storequery
