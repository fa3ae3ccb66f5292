package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
)

// ErrClosed is returned when publishing or subscribing on a closed bus.
var ErrClosed = errors.New("pubsub closed")

type memorySubscription struct {
	key     string
	pattern bool
	ch      chan *Event
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// MemoryPubSub implements PubSub in-process. Used when every window runs in
// one process and by tests.
type MemoryPubSub struct {
	subscriptions map[string][]*memorySubscription
	closed        bool
	mu            sync.RWMutex
}

// NewMemoryPubSub creates a new in-memory PubSub instance.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		subscriptions: make(map[string][]*memorySubscription),
	}
}

// Publish delivers the event to every matching subscriber in publish order.
// Events are round-tripped through JSON so subscribers never share memory
// with the publisher.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	var targets []*memorySubscription
	for _, subs := range m.subscriptions {
		for _, sub := range subs {
			if sub.matches(channel) {
				targets = append(targets, sub)
			}
		}
	}
	m.mu.RUnlock()

	for _, sub := range targets {
		var copied Event
		if err := json.Unmarshal(data, &copied); err != nil {
			return fmt.Errorf("failed to unmarshal event: %w", err)
		}
		if err := sub.deliver(ctx, &copied); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.subscribe(ctx, channel, false)
}

// SubscribePattern subscribes to channels matching a glob pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return m.subscribe(ctx, pattern, true)
}

func (m *MemoryPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		key:     key,
		pattern: pattern,
		ch:      make(chan *Event, 100),
		ctx:     subCtx,
		cancel:  cancel,
	}
	m.subscriptions[key] = append(m.subscriptions[key], sub)

	go func() {
		<-subCtx.Done()
		m.remove(sub)
	}()

	return sub.ch, nil
}

// Unsubscribe removes every subscription registered under channel.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.RLock()
	subs := append([]*memorySubscription(nil), m.subscriptions[channel]...)
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.cancel()
		m.remove(sub)
	}
	return nil
}

// Close closes all subscriptions.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	m.closed = true
	var all []*memorySubscription
	for _, subs := range m.subscriptions {
		all = append(all, subs...)
	}
	m.mu.Unlock()

	for _, sub := range all {
		sub.cancel()
		m.remove(sub)
	}
	return nil
}

func (m *MemoryPubSub) remove(sub *memorySubscription) {
	m.mu.Lock()
	subs := m.subscriptions[sub.key]
	for i, s := range subs {
		if s == sub {
			m.subscriptions[sub.key] = append(subs[:i:i], subs[i+1:]...)
			if len(m.subscriptions[sub.key]) == 0 {
				delete(m.subscriptions, sub.key)
			}
			break
		}
	}
	m.mu.Unlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// deliver blocks until the subscriber accepts the event, the subscription
// is cancelled, or ctx expires. The subscription is cancelled before its
// channel is closed, so a blocked deliver always returns first.
func (s *memorySubscription) deliver(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	select {
	case s.ch <- event:
		return nil
	case <-s.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memorySubscription) matches(channel string) bool {
	if !s.pattern {
		return s.key == channel
	}
	ok, _ := path.Match(s.key, channel)
	return ok
}
