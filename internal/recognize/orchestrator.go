package recognize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/earworm-app/resolver/internal/breaker"
	"github.com/earworm-app/resolver/internal/intent"
)

// Tuning holds the arbitration constants, carried in configuration.
type Tuning struct {
	// FullSongBytes is the payload size above which a clip is treated as a
	// full-song capture rather than a hummed fragment.
	FullSongBytes int
	// SubstituteMin is the minimum confidence the non-preferred provider needs
	// to displace the full-song-preferred result.
	SubstituteMin float64
	// SubstituteMargin is how far the non-preferred provider must beat the
	// partial-preferred result's confidence.
	SubstituteMargin float64
}

// Orchestrator issues both provider calls concurrently, each behind its own
// circuit breaker, waits for both to settle, and arbitrates.
type Orchestrator struct {
	full           Provider // tuned for whole-track matching
	partial        Provider // tuned for partial/hummed clips
	fullBreaker    *breaker.Breaker
	partialBreaker *breaker.Breaker
	tuning         Tuning
	logger         *slog.Logger
}

func NewOrchestrator(full, partial Provider, fullBreaker, partialBreaker *breaker.Breaker, tuning Tuning, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		full:           full,
		partial:        partial,
		fullBreaker:    fullBreaker,
		partialBreaker: partialBreaker,
		tuning:         tuning,
		logger:         logger,
	}
}

// Identify runs both providers and returns the arbitrated winner, or nil when
// neither matched. A nil result is a degraded outcome, never an error: the
// caller continues with transcript-only resolution.
func (o *Orchestrator) Identify(ctx context.Context, audio []byte, it intent.Intent) *Result {
	if !o.full.Configured() && !o.partial.Configured() {
		o.logger.Warn("no fingerprint providers configured", "stage", "recognize")
		return nil
	}

	var (
		wg         sync.WaitGroup
		fullRes    Result
		partialRes Result
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		fullRes = o.callProvider(ctx, o.full, o.fullBreaker, audio)
	}()
	go func() {
		defer wg.Done()
		partialRes = o.callProvider(ctx, o.partial, o.partialBreaker, audio)
	}()
	wg.Wait()

	isFullSong := it.Type == intent.FindSong || len(audio) > o.tuning.FullSongBytes

	winner := arbitrate(fullRes, partialRes, isFullSong, o.tuning)
	if winner == nil {
		o.logger.Info("no provider matched",
			"stage", "recognize",
			"full_reason", fullRes.FailReason,
			"partial_reason", partialRes.FailReason,
		)
		return nil
	}

	o.logger.Info("recognition winner",
		"stage", "recognize",
		"provider", winner.Provider,
		"title", winner.Title,
		"artist", winner.Artist,
		"confidence", winner.Confidence,
		"full_song", isFullSong,
	)
	return winner
}

// callProvider never lets one provider's failure affect the other: breaker
// rejections and provider errors settle as failed results.
func (o *Orchestrator) callProvider(ctx context.Context, p Provider, b *breaker.Breaker, audio []byte) Result {
	start := time.Now()

	res, err := breaker.Execute(ctx, b, func(ctx context.Context) (Result, error) {
		return p.Recognize(ctx, audio)
	})
	if err != nil {
		o.logger.Warn("fingerprint provider failed",
			"stage", "recognize",
			"provider", p.Name(),
			"duration", time.Since(start),
			"error", err,
		)
		return failure(p.Name(), err.Error())
	}
	return res
}

// arbitrate chooses between the two settled results. For full-song captures
// the whole-track provider is preferred, displaced only by a clearly stronger
// result; for fragments the partial provider is preferred with a margin rule.
func arbitrate(full, partial Result, isFullSong bool, t Tuning) *Result {
	preferred, other := partial, full
	if isFullSong {
		preferred, other = full, partial
	}

	if !preferred.Success && !other.Success {
		return nil
	}
	if !preferred.Success {
		if other.Success {
			return &other
		}
		return nil
	}
	if !other.Success {
		return &preferred
	}

	if isFullSong {
		if other.Confidence >= t.SubstituteMin && other.Confidence > preferred.Confidence {
			return &other
		}
		return &preferred
	}

	if other.Confidence > preferred.Confidence+t.SubstituteMargin {
		return &other
	}
	return &preferred
}
