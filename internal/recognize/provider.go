// Package recognize fans a captured audio clip out to two independent
// fingerprint providers and arbitrates their results.
package recognize

import "context"

// Result is the outcome of one provider's identification attempt.
type Result struct {
	Success    bool
	Title      string
	Artist     string
	Album      string
	Confidence float64
	Links      []string
	Provider   string
	FailReason string
}

// Provider identifies a recorded song from an audio sample.
type Provider interface {
	Name() string
	// Configured reports whether credentials are present. Unconfigured
	// providers degrade to "no match" so the pipeline can still answer from
	// transcript alone.
	Configured() bool
	Recognize(ctx context.Context, audio []byte) (Result, error)
}

func failure(provider, reason string) Result {
	return Result{Provider: provider, FailReason: reason}
}
