package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/refdata/validate-service/internal/domain"
)

// NATSBus implements domain.EventBus over NATS, used as the pro-tier bus
// so a batch sweep's completion events reach external subscribers
// (dashboards, alerting) beyond the process that ran the sweep.
type NATSBus struct {
	mu   sync.RWMutex
	conn *nats.Conn
	subs map[string]*nats.Subscription
}

// NewNATSBus connects to cfg.NatsURL with reconnect/backoff handling and
// returns a ready-to-use bus.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NatsURL
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSBus{conn: conn, subs: make(map[string]*nats.Subscription)}, nil
}

func subject(topic string) string {
	return "validate." + topic
}

// Publish marshals event to JSON and publishes it to the topic's subject.
func (b *NATSBus) Publish(ctx context.Context, topic string, event domain.RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	return b.conn.Publish(subject(topic), data)
}

// Subscribe registers handler on the topic's subject.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler func(domain.RunEvent)) (func(), error) {
	sub, err := b.conn.Subscribe(subject(topic), func(m *nats.Msg) {
		var ev domain.RunEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("nats unmarshal run event failed", "error", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	b.mu.Lock()
	b.subs[subject(topic)] = sub
	b.mu.Unlock()

	return func() { _ = sub.Unsubscribe() }, nil
}

// Close unsubscribes everything and closes the underlying connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.conn.Close()
	return nil
}
