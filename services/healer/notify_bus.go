package healer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultResultsSubject is the NATS subject outcome notifications go to.
const DefaultResultsSubject = "autoheal.results"

// Publisher publishes JSON-encodable values under a dedupe id; *bus.Bus
// satisfies it.
type Publisher interface {
	PublishMsg(ctx context.Context, subj, msgID string, v any) error
}

// BusNotifier publishes notifications on a NATS JetStream subject.
type BusNotifier struct {
	pub     Publisher
	subject string
}

// NewBusNotifier publishes to subject, or DefaultResultsSubject when empty.
func NewBusNotifier(pub Publisher, subject string) (*BusNotifier, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if subject == "" {
		subject = DefaultResultsSubject
	}
	return &BusNotifier{pub: pub, subject: subject}, nil
}

func (n *BusNotifier) Name() string { return "nats" }

// Notify publishes note. One notification is sent per invocation, so the
// invocation id doubles as the message id.
func (n *BusNotifier) Notify(ctx context.Context, note Notification) error {
	var msgID string
	if id := InvocationFrom(ctx); id != uuid.Nil {
		msgID = id.String()
	}
	if err := n.pub.PublishMsg(ctx, n.subject, msgID, note); err != nil {
		return fmt.Errorf("publish to %s: %w", n.subject, err)
	}
	return nil
}
