package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/refdata/validate-service/internal/domain"
)

// ChannelBus implements domain.EventBus using Go channels. Used as the
// community tier default bus for single-process deployments.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id     string
	topic  string
	evCh   chan domain.RunEvent
	cancel context.CancelFunc
}

// NewChannelBus creates a channel-based event bus with the given
// per-subscription buffer size.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish delivers event to every subscriber of topic, non-blocking: a
// full subscriber buffer drops the event rather than stalling the
// publisher.
func (b *ChannelBus) Publish(ctx context.Context, topic string, event domain.RunEvent) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := b.subscriptions[topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.evCh <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers handler for topic and starts a goroutine delivering
// events to it until the returned unsubscribe func is called.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler func(domain.RunEvent)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:     uuid.New().String(),
		topic:  topic,
		evCh:   make(chan domain.RunEvent, b.bufferSize),
		cancel: cancel,
	}
	b.subscriptions[topic] = append(b.subscriptions[topic], sub)

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case ev := <-sub.evCh:
				handler(ev)
			}
		}
	}()

	return func() {
		sub.cancel()
		b.removeSub(topic, sub.id)
	}, nil
}

func (b *ChannelBus) removeSub(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscriptions[topic]
	for i, s := range subs {
		if s.id == id {
			b.subscriptions[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Close shuts the bus down, cancelling every active subscription.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.subscriptions = make(map[string][]*channelSubscription)
	return nil
}
