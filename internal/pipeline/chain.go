package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/timmy/mdconv/internal/logger"
	"github.com/timmy/mdconv/internal/validator"
)

// Validator decides whether extracted text is usable.
type Validator interface {
	Check(text string) validator.Verdict
}

// Attempt is one engine's output within a fallback chain. It only lives for
// the duration of a pipeline run.
type Attempt struct {
	Engine  string
	Ordinal int // 1-based position in the chain
	Text    string
	Err     error
	Valid   bool
	Reason  string // why the text was rejected, when it was
}

// OK reports whether the attempt produced text that passed validation.
func (a Attempt) OK() bool { return a.Err == nil && a.Valid }

// Blank reports whether the attempt errored or produced only whitespace.
func (a Attempt) Blank() bool { return a.Err != nil || strings.TrimSpace(a.Text) == "" }

// Step is one engine invocation in a chain.
type Step struct {
	Engine string
	Run    func(ctx context.Context) (string, error)
}

// Chain is an ordered list of fallbacks; each step runs only when every
// earlier step failed validation.
type Chain []Step

// Evaluate runs the steps in order and stops at the first attempt that
// validates. It returns every attempt made, in order.
func (c Chain) Evaluate(ctx context.Context, v Validator) []Attempt {
	attempts := make([]Attempt, 0, len(c))
	for i, step := range c {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		a := Attempt{Engine: step.Engine, Ordinal: i + 1}
		a.Text, a.Err = step.Run(ctx)
		if a.Err == nil {
			verdict := v.Check(a.Text)
			a.Valid, a.Reason = verdict.Valid, verdict.Reason
		}
		attempts = append(attempts, a)

		entry := logger.With(logger.Fields{
			logger.FieldEngine: step.Engine,
			"ordinal":          a.Ordinal,
			"valid":            a.Valid,
		}).WithDuration(time.Since(start).Milliseconds())
		switch {
		case a.Err != nil:
			entry.Warn(ctx, "Extraction attempt failed: %v", a.Err)
		case !a.Valid:
			entry.WithField("reason", a.Reason).Info(ctx, "Extraction attempt rejected")
		default:
			entry.Debug(ctx, "Extraction attempt accepted")
		}

		if a.OK() {
			break
		}
	}
	return attempts
}

// Last returns the final attempt, or a zero Attempt for an empty slice.
func Last(attempts []Attempt) Attempt {
	if len(attempts) == 0 {
		return Attempt{}
	}
	return attempts[len(attempts)-1]
}

// find returns the attempt made by engine, if any.
func find(attempts []Attempt, engine string) (Attempt, bool) {
	for _, a := range attempts {
		if a.Engine == engine {
			return a, true
		}
	}
	return Attempt{}, false
}
