package healer

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// DefaultAlertsSubject carries alert envelopes for the bus consumer.
const DefaultAlertsSubject = "autoheal.alerts"

// Subscriber opens a durable subscription; *bus.Bus satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

// ConsumeAlerts feeds every message on subject through h. Messages are always
// acknowledged: outcomes are reported, not redelivered.
func ConsumeAlerts(ctx context.Context, sub Subscriber, subject, durable string, h EventHandler, logger zerolog.Logger) (io.Closer, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	if h == nil {
		return nil, errors.New("event handler is required")
	}
	if subject == "" {
		subject = DefaultAlertsSubject
	}
	if durable == "" {
		durable = "autoheal-alerts"
	}

	return sub.Subscribe(ctx, subject, durable, func(ctx context.Context, data []byte) error {
		resp := h.Handle(ctx, data)
		logger.Info().
			Str("subject", subject).
			Int("status_code", resp.StatusCode).
			Msg("processed alert from bus")
		return nil
	})
}
