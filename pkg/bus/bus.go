package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultAckWait outlasts one full alert handling cycle, including the
	// remote command poll budget.
	DefaultAckWait = 2 * time.Minute
	// DefaultMaxDeliver bounds redelivery of messages whose handler failed.
	DefaultMaxDeliver = 3
)

// Bus wraps a NATS JetStream connection for publishing and consuming events.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url string, opts ...nats.Option) (*Bus, error) {
	opts = append([]nats.Option{nats.MaxReconnects(-1)}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// Close drains the connection, falling back to a hard close.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Connected reports whether the underlying connection is up.
func (b *Bus) Connected() bool {
	return b != nil && b.conn.IsConnected()
}

// EnsureStream creates the named file-backed stream over subjects unless it
// already exists. Duplicate publishes within two minutes are dropped by
// message id.
func (b *Bus) EnsureStream(name string, subjects ...string) error {
	if b == nil {
		return errors.New("nil bus")
	}
	if name == "" || len(subjects) == 0 {
		return errors.New("stream name and subjects are required")
	}

	if _, err := b.js.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:       name,
		Subjects:   dedupe(subjects),
		Storage:    nats.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	return err
}

func dedupe(subjects []string) []string {
	seen := make(map[string]struct{}, len(subjects))
	out := subjects[:0:0]
	for _, s := range subjects {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Publish encodes v as JSON and publishes it to subj.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	return b.PublishMsg(ctx, subj, "", v)
}

// PublishMsg publishes v with a JetStream message id so redelivered or
// retried publishes are dropped by the stream. An empty id disables this.
func (b *Bus) PublishMsg(ctx context.Context, subj, msgID string, v any) error {
	if b == nil {
		return errors.New("nil bus")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}
	_, err = b.js.Publish(subj, data, opts...)
	return err
}

// SubscribeOptions tunes a durable consumer. Zero values use the defaults.
type SubscribeOptions struct {
	AckWait    time.Duration
	MaxDeliver int
}

type subscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

// Subscribe creates a durable consumer on subj with default options.
func (b *Bus) Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	return b.SubscribeWith(ctx, subj, durable, SubscribeOptions{}, fn)
}

// SubscribeWith creates a durable consumer on subj and invokes fn for each
// message. Messages are acked when fn returns nil and nak'd otherwise. While
// fn runs, the message is marked in progress every half AckWait.
func (b *Bus) SubscribeWith(ctx context.Context, subj, durable string, opts SubscribeOptions, fn func(ctx context.Context, data []byte) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}
	if opts.AckWait <= 0 {
		opts.AckWait = DefaultAckWait
	}
	if opts.MaxDeliver <= 0 {
		opts.MaxDeliver = DefaultMaxDeliver
	}

	handler := func(msg *nats.Msg) {
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan struct{})
		defer close(done)
		go keepAlive(msg, opts.AckWait/2, done)

		if err := fn(handlerCtx, msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}

	sub, err := b.js.Subscribe(subj, handler,
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(opts.AckWait),
		nats.MaxDeliver(opts.MaxDeliver),
	)
	if err != nil {
		return nil, err
	}

	s := &subscription{sub: sub}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

func keepAlive(msg *nats.Msg, every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = msg.InProgress()
		}
	}
}
