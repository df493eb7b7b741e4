// Package transport implements the PUSH-semantic fan-out socket records are
// handed to after assembly.
package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ProjectMeniscus/portal/internal/logging"
)

// produceTopic is the fixed destination topic records are pushed to. The
// spec's PUSH socket has no notion of topics; one fixed topic keeps the
// round-robin partitioner the sole distribution mechanism, matching a PUSH
// socket's undifferentiated fan-out.
const produceTopic = "portal.records"

// Config holds PushTransport configuration.
type Config struct {
	// Brokers lists one host:port pair per connected downstream consumer
	// endpoint, the analogue of a ZeroMQ PUSH socket's connected peers.
	Brokers []string
	Logger  *slog.Logger
}

// PushTransport distributes completed records to exactly one of its
// connected consumers at a time, round-robin, analogous to a ZeroMQ PUSH
// socket. It is bound once via Bind and is safe for concurrent Send calls
// from multiple connection goroutines.
type PushTransport struct {
	logger *slog.Logger

	mu     sync.Mutex
	client *kgo.Client
	bound  bool
	closed bool

	closeOnce sync.Once
}

// New creates an unbound PushTransport. Call Bind before the first Send.
func New(logger *slog.Logger) *PushTransport {
	return &PushTransport{
		logger: logging.Default(logger).With("component", "transport"),
	}
}

// Bind connects the transport to its configured consumer endpoints. It is
// the PUSH-socket analogue of ZeroMQ's bind/connect handshake: once bound,
// Send round-robins across the endpoints the way a PUSH socket round-robins
// across its connected peers.
func (t *PushTransport) Bind(cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bound {
		return nil
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(produceTopic),
		kgo.RecordPartitioner(kgo.RoundRobinPartitioner()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return &Error{Kind: ErrNotBound, Cause: err}
	}

	t.client = client
	t.bound = true
	t.logger.Info("transport bound", "brokers", cfg.Brokers)
	return nil
}

// Send pushes one already-serialized record downstream, blocking until it
// is accepted or definitively fails, matching the spec's "blocks or
// fails-fast" backpressure contract. It is safe to call from multiple
// goroutines concurrently: kgo.Client is itself safe for concurrent
// ProduceSync calls, so no additional lock is held across the send.
func (t *PushTransport) Send(data []byte) error {
	t.mu.Lock()
	client, bound, closed := t.client, t.bound, t.closed
	t.mu.Unlock()

	if !bound || closed {
		return &Error{Kind: ErrNotBound}
	}

	rec := &kgo.Record{Topic: produceTopic, Value: data}
	results := client.ProduceSync(context.Background(), rec)
	if err := results.FirstErr(); err != nil {
		return &Error{Kind: ErrSendFailed, Cause: err}
	}
	return nil
}

// Close releases the underlying client. Idempotent: a second call is a
// no-op, and Send after Close always returns ErrNotBound.
func (t *PushTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		client := t.client
		t.mu.Unlock()

		if client != nil {
			client.Close()
		}
		t.logger.Info("transport closed")
	})
	return nil
}
