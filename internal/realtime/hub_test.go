package realtime

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case envelope := <-ch:
		return envelope
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	hub := NewHub(8, slog.Default())
	ch, cancel := hub.Subscribe(ConversationTopic("c1"), nil)
	defer cancel()

	hub.Publish(ConversationTopic("c1"), EventMessageReceived, map[string]string{"id": "m1"})

	envelope := receiveOne(t, ch)
	assert.Equal(t, ConversationTopic("c1"), envelope.Topic)
	assert.Equal(t, EventMessageReceived, envelope.Event)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, "m1", payload["id"])
}

func TestPublishSkipsOtherTopics(t *testing.T) {
	hub := NewHub(8, slog.Default())
	ch, cancel := hub.Subscribe(ConversationTopic("c1"), nil)
	defer cancel()

	hub.Publish(ConversationTopic("c2"), EventMessageReceived, "x")

	select {
	case envelope := <-ch:
		t.Fatalf("unexpected event: %+v", envelope)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterDropsPerSubscriber(t *testing.T) {
	hub := NewHub(8, slog.Default())
	allowed, cancelAllowed := hub.Subscribe(TopicAdminFeed, func(Envelope) bool { return true })
	defer cancelAllowed()
	denied, cancelDenied := hub.Subscribe(TopicAdminFeed, func(Envelope) bool { return false })
	defer cancelDenied()

	hub.Publish(TopicAdminFeed, EventConversationUpdated, "payload")

	receiveOne(t, allowed)
	select {
	case envelope := <-denied:
		t.Fatalf("filter should have dropped event: %+v", envelope)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDoesNotBlockOnFullBuffer(t *testing.T) {
	hub := NewHub(1, slog.Default())
	_, cancel := hub.Subscribe(TopicMetrics, nil)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(TopicMetrics, EventMetricsUpdated, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
	assert.GreaterOrEqual(t, hub.Dropped(), uint64(1))
}

func TestCancelClosesChannelAndUnsubscribes(t *testing.T) {
	hub := NewHub(8, slog.Default())
	ch, cancel := hub.Subscribe(TopicAdminFeed, nil)
	require.Equal(t, 1, hub.SubscriberCount(TopicAdminFeed))

	cancel()
	cancel() // idempotent

	assert.Equal(t, 0, hub.SubscriberCount(TopicAdminFeed))
	_, open := <-ch
	assert.False(t, open)
}
