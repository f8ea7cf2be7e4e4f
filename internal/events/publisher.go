// Package events publishes resolution lifecycle signals over NATS so
// downstream consumers (analytics, catalog warmers) can react without being
// in the request path. Publishing is best-effort: a broken broker never fails
// a resolution.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects for resolver lifecycle signals.
const (
	SubjectCompleted        = "earworm.resolver.completed"
	SubjectRateLimited      = "earworm.resolver.rate_limited"
	SubjectProviderDegraded = "earworm.resolver.provider.degraded"
)

// CompletedSignal is emitted when a resolution request finishes.
type CompletedSignal struct {
	ThreadID   string  `json:"thread_id"`
	CallerID   string  `json:"caller_id"`
	Intent     string  `json:"intent"`
	Status     string  `json:"status"`
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// RateLimitedSignal is emitted when a caller is turned away at the gate.
type RateLimitedSignal struct {
	CallerID   string `json:"caller_id"`
	Reason     string `json:"reason"`
	RetryAfter int    `json:"retry_after_seconds"`
}

// ProviderDegradedSignal is emitted when a circuit breaker opens.
type ProviderDegradedSignal struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
}

// Publisher wraps a NATS connection. A nil Publisher is valid and drops every
// signal, so the service runs without a broker.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials the broker with aggressive reconnect settings so a broker
// restart does not orphan the publisher.
func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Publisher{conn: nc, logger: logger}, nil
}

// Publish serialises the signal and fires it at the subject. Failures are
// logged and swallowed.
func (p *Publisher) Publish(subject string, data any) {
	if p == nil || p.conn == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("event marshal failed", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
