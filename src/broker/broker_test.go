package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"buildtriage/src/contracts"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message within 1s")
		return Message{}
	}
}

func requireClosed(t *testing.T, ch <-chan Message) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected closed channel")
	case <-time.After(time.Second):
		t.Fatal("channel still open after 1s")
	}
}

func TestInMemoryBroker_DeliversToEveryGroup(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	worker, err := b.Subscribe(ctx, contracts.TopicTriageRequests, "worker")
	require.NoError(t, err)
	audit, err := b.Subscribe(ctx, contracts.TopicTriageRequests, "audit")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, contracts.TopicTriageRequests, "req-1", []byte(`{"request_id":"req-1"}`)))
	require.NoError(t, b.Publish(ctx, contracts.TopicTriageRequests, "req-2", []byte(`{"request_id":"req-2"}`)))

	for _, ch := range []<-chan Message{worker, audit} {
		first, second := receive(t, ch), receive(t, ch)
		require.Equal(t, contracts.TopicTriageRequests, first.Topic)
		require.Equal(t, []string{"req-1", "req-2"}, []string{first.Key, second.Key})
		require.Less(t, first.Offset, second.Offset)
		require.NotZero(t, first.Timestamp)
	}
}

func TestInMemoryBroker_TopicsAreSeparate(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	matches, _ := b.Subscribe(ctx, contracts.TopicTriageMatches, "g")
	summaries, _ := b.Subscribe(ctx, contracts.TopicRuleSummaries, "g")

	require.NoError(t, b.Publish(ctx, contracts.TopicRuleSummaries, "disk-full", []byte("{}")))
	require.Equal(t, "disk-full", receive(t, summaries).Key)

	select {
	case msg := <-matches:
		t.Fatalf("matches topic received %q", msg.Key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInMemoryBroker_PublishWithoutSubscribers(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	require.NoError(t, b.Publish(context.Background(), contracts.TopicTriageMatches, "k", nil))
}

func TestInMemoryBroker_CancelEndsSubscription(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, contracts.TopicTriageRequests, "worker")
	require.NoError(t, err)

	cancel()
	requireClosed(t, ch)
	require.NoError(t, b.Publish(context.Background(), contracts.TopicTriageRequests, "late", nil))
}

func TestInMemoryBroker_PublishHonoursContext(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()

	// Never drained, so the buffer fills.
	_, err := b.Subscribe(context.Background(), "slow", "g")
	require.NoError(t, err)
	for i := 0; i < subscriberBuffer; i++ {
		require.NoError(t, b.Publish(context.Background(), "slow", "", nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, b.Publish(ctx, "slow", "", nil), context.DeadlineExceeded)
}

func TestInMemoryBroker_Close(t *testing.T) {
	b := NewInMemoryBroker()
	ch, _ := b.Subscribe(context.Background(), contracts.TopicTriageRequests, "worker")

	require.NoError(t, b.Close())
	requireClosed(t, ch)
	require.NoError(t, b.Close(), "Close is idempotent")

	require.ErrorIs(t, b.Publish(context.Background(), contracts.TopicTriageRequests, "k", nil), ErrClosed)
	_, err := b.Subscribe(context.Background(), contracts.TopicTriageRequests, "worker")
	require.ErrorIs(t, err, ErrClosed)
}

func TestPublishJSON_MatchEvent(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	ch, _ := b.Subscribe(ctx, contracts.TopicTriageMatches, "g")
	event := contracts.TriageMatchEvent{
		RuleName: "disk-full",
		RecordID: "rec-7",
		JobName:  "Linux x64",
	}
	require.NoError(t, PublishJSON(ctx, b, contracts.TopicTriageMatches, "dotnet/runtime#42", event))

	msg := receive(t, ch)
	require.Equal(t, "dotnet/runtime#42", msg.Key)

	var got contracts.TriageMatchEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, event, got)
}

func TestPublishJSON_MarshalError(t *testing.T) {
	b := NewInMemoryBroker()
	defer b.Close()
	err := PublishJSON(context.Background(), b, "t", "k", map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "marshal t message")
}

func TestNew(t *testing.T) {
	b, err := New(nil)
	require.NoError(t, err)
	defer b.Close()
	require.IsType(t, &InMemoryBroker{}, b)
}
