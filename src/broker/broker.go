// Package broker carries triage requests, match events and rule summaries
// between the CLI, the worker and downstream consumers.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrClosed = errors.New("broker is closed")

// Broker is a topic-based message transport.
type Broker interface {
	// Publish sends value to topic. Brokers that partition use key to keep
	// messages for one key in order.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe consumes topic as a member of groupID. The channel closes
	// when ctx is done or the broker is closed.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	Close() error
}

// Publisher is the publishing half of a Broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, value []byte) error
}

// Message is one consumed record. Timestamp is in unix milliseconds.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64
}

// PublishJSON marshals v and publishes it under key.
func PublishJSON(ctx context.Context, p Publisher, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return p.Publish(ctx, topic, key, data)
}

// New returns a Redpanda broker when brokers are configured, otherwise an
// in-memory one.
func New(brokers []string) (Broker, error) {
	if len(brokers) == 0 {
		return NewInMemoryBroker(), nil
	}
	b, err := NewRedpandaBroker(brokers)
	if err != nil {
		return nil, err
	}
	return b, nil
}
