package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"buildtriage/src/logger"
)

const clientID = "buildtriage"

// consumerBuffer is how many fetched records may wait for the reader.
const consumerBuffer = 100

// RedpandaBroker publishes and consumes through a Kafka-compatible cluster.
// Producers key match events by issue URI, so events for one issue stay on
// one partition and arrive in order.
type RedpandaBroker struct {
	producer *kgo.Client
	seeds    []string
	log      logger.Logger

	mu        sync.Mutex
	consumers map[string]*kgo.Client // "topic/group" -> client
	closed    bool
}

// NewRedpandaBroker connects a producer to the seed brokers, e.g.
// ["localhost:19092"].
func NewRedpandaBroker(seeds []string) (*RedpandaBroker, error) {
	if len(seeds) == 0 {
		return nil, errors.New("at least one broker address is required")
	}

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}

	return &RedpandaBroker{
		producer:  producer,
		seeds:     seeds,
		log:       logger.New("broker"),
		consumers: make(map[string]*kgo.Client),
	}, nil
}

func (b *RedpandaBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Publish produces one record and waits for the cluster to acknowledge it.
func (b *RedpandaBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	if b.isClosed() {
		return ErrClosed
	}

	rec := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	if err := b.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Subscribe joins groupID on topic. A group without committed offsets starts
// at the oldest retained record so requests submitted before the first
// worker started are still handled. Offsets are committed once a record has
// been handed to the channel reader. The channel closes when ctx is done or
// the broker is closed.
func (b *RedpandaBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	id := topic + "/" + groupID
	if _, exists := b.consumers[id]; exists {
		return nil, fmt.Errorf("group %s is already consuming %s", groupID, topic)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(b.seeds...),
		kgo.ClientID(clientID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AutoCommitMarks(),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", topic, err)
	}
	if err := consumer.Ping(ctx); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("reach brokers for %s: %w", topic, err)
	}

	b.consumers[id] = consumer
	out := make(chan Message, consumerBuffer)
	go b.consume(ctx, id, consumer, out)
	return out, nil
}

func (b *RedpandaBroker) consume(ctx context.Context, id string, consumer *kgo.Client, out chan<- Message) {
	defer func() {
		b.release(id, consumer)
		close(out)
	}()

	for ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				b.log.Warn("[RedpandaBroker] Fetch error on %s/%d: %v", topic, partition, err)
			}
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			select {
			case out <- toMessage(rec):
				consumer.MarkCommitRecords(rec)
			case <-ctx.Done():
				return
			}
		}
	}
}

// release closes a consumer whose loop ended, unless Close already did.
func (b *RedpandaBroker) release(id string, consumer *kgo.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumers[id] == consumer {
		delete(b.consumers, id)
		consumer.CommitMarkedOffsets(context.Background())
		consumer.Close()
	}
}

func toMessage(rec *kgo.Record) Message {
	return Message{
		Topic:     rec.Topic,
		Key:       string(rec.Key),
		Value:     rec.Value,
		Offset:    rec.Offset,
		Partition: rec.Partition,
		Timestamp: rec.Timestamp.UnixMilli(),
	}
}

// Close leaves every consumer group and flushes the producer.
func (b *RedpandaBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	consumers := b.consumers
	b.consumers = make(map[string]*kgo.Client)
	b.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	if err := b.producer.Flush(context.Background()); err != nil {
		b.log.Warn("[RedpandaBroker] Flush on close: %v", err)
	}
	b.producer.Close()
	return nil
}
