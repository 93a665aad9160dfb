package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// subscriberBuffer is the channel capacity of each in-memory subscription.
const subscriberBuffer = 100

type subscriber struct {
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// InMemoryBroker delivers every published message to every subscriber of
// the topic. Publish blocks while a subscriber's buffer is full.
type InMemoryBroker struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	offset      atomic.Int64
	closed      bool
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subscribers: make(map[string][]*subscriber),
	}
}

// Publish delivers the message to the current subscribers of topic.
// Channels are only sent on under the read lock, so they can be closed
// safely under the write lock.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Offset:    b.offset.Add(1) - 1,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, sub := range b.subscribers[topic] {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a subscriber for the topic. The channel is closed when
// ctx is done or the broker is closed.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{
		ch:   make(chan Message, subscriberBuffer),
		done: make(chan struct{}),
	}
	b.subscribers[topic] = append(b.subscribers[topic], sub)

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(topic, sub)
		case <-sub.done:
		}
	}()
	return sub.ch, nil
}

func (b *InMemoryBroker) unsubscribe(topic string, sub *subscriber) {
	// Release publishers blocked on this subscriber before taking the lock.
	sub.stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, s := range subs {
		if s == sub {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Close closes every subscriber channel.
func (b *InMemoryBroker) Close() error {
	for _, subs := range b.snapshot() {
		for _, sub := range subs {
			sub.stop()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.subscribers, topic)
	}
	return nil
}

func (b *InMemoryBroker) snapshot() map[string][]*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]*subscriber, len(b.subscribers))
	for topic, subs := range b.subscribers {
		out[topic] = append([]*subscriber(nil), subs...)
	}
	return out
}
