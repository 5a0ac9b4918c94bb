package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

type fakeConversations struct {
	conv conversation.Conversation
	err  error
	got  conversation.Identity
}

func (f *fakeConversations) FindOrCreate(_ context.Context, identity conversation.Identity) (conversation.Conversation, error) {
	f.got = identity
	return f.conv, f.err
}

type fakeMessages struct {
	msg     message.Message
	created bool
	err     error
	got     message.CreateInput
}

func (f *fakeMessages) Create(_ context.Context, input message.CreateInput) (message.Message, bool, error) {
	f.got = input
	return f.msg, f.created, f.err
}

type published struct {
	topic string
	event string
}

type fakePublisher struct {
	events []published
}

func (f *fakePublisher) Publish(topic, event string, _ any) {
	f.events = append(f.events, published{topic: topic, event: event})
}

type fakeDeduper struct {
	seen bool
	err  error
}

func (f *fakeDeduper) Seen(context.Context, string) (bool, error) {
	return f.seen, f.err
}

func lineEvent() channel.InboundEvent {
	return channel.InboundEvent{
		Platform:    channel.PlatformLINE,
		ChannelID:   "room-1",
		UserID:      "user-1",
		Text:        "hello",
		ContentType: channel.ContentText,
		ExternalID:  "ext-1",
		Timestamp:   time.Now(),
	}
}

func TestIngestPersistsAndPublishes(t *testing.T) {
	conversations := &fakeConversations{conv: conversation.Conversation{ID: "c1", Platform: channel.PlatformLINE, UserID: "user-1"}}
	messages := &fakeMessages{msg: message.Message{ID: "m1", ConversationID: "c1"}, created: true}
	publisher := &fakePublisher{}
	pipeline := NewPipeline("t1", conversations, messages, publisher, nil, slog.Default())

	result, err := pipeline.Ingest(context.Background(), lineEvent())
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "m1", result.Message.ID)

	assert.Equal(t, "t1", conversations.got.TenantID)
	assert.Equal(t, "room-1", conversations.got.ChannelID)
	assert.Equal(t, message.SenderUser, messages.got.Sender)
	assert.Equal(t, "ext-1", messages.got.ExternalID)

	require.Len(t, publisher.events, 3)
	assert.Equal(t, realtime.ConversationTopic("c1"), publisher.events[0].topic)
	assert.Equal(t, realtime.EventMessageReceived, publisher.events[0].event)
	assert.Equal(t, realtime.TopicAdminFeed, publisher.events[1].topic)
	assert.Equal(t, realtime.EventMessageReceived, publisher.events[1].event)
	assert.Equal(t, realtime.TopicAdminFeed, publisher.events[2].topic)
	assert.Equal(t, realtime.EventConversationUpdated, publisher.events[2].event)
}

// The console holds one socket on the admin feed; every stored inbound
// message has to arrive there, not only on the per-conversation topic.
func TestIngestAdminFeedCarriesMessageReceived(t *testing.T) {
	conversations := &fakeConversations{conv: conversation.Conversation{ID: "c1", Platform: channel.PlatformLINE}}
	messages := &fakeMessages{msg: message.Message{ID: "m1", ConversationID: "c1"}, created: true}
	publisher := &fakePublisher{}
	pipeline := NewPipeline("t1", conversations, messages, publisher, nil, slog.Default())

	_, err := pipeline.Ingest(context.Background(), lineEvent())
	require.NoError(t, err)

	feedEvents := make(map[string]bool)
	for _, p := range publisher.events {
		if p.topic == realtime.TopicAdminFeed {
			feedEvents[p.event] = true
		}
	}
	assert.True(t, feedEvents[realtime.EventMessageReceived])
	assert.True(t, feedEvents[realtime.EventConversationUpdated])
}

func TestIngestWidgetEventAlsoReachesVisitorTopic(t *testing.T) {
	conversations := &fakeConversations{conv: conversation.Conversation{ID: "c1", Platform: channel.PlatformWebsite, UserID: "web-abc"}}
	messages := &fakeMessages{msg: message.Message{ID: "m1"}, created: true}
	publisher := &fakePublisher{}
	pipeline := NewPipeline("t1", conversations, messages, publisher, nil, slog.Default())

	event := lineEvent()
	event.Platform = channel.PlatformWebsite
	event.ChannelID = "web-abc"
	event.UserID = "web-abc"

	_, err := pipeline.Ingest(context.Background(), event)
	require.NoError(t, err)

	topics := make([]string, 0, len(publisher.events))
	for _, p := range publisher.events {
		topics = append(topics, p.topic)
	}
	assert.Contains(t, topics, realtime.WidgetTopic("web-abc"))
}

func TestIngestRejectsInvalidPayload(t *testing.T) {
	pipeline := NewPipeline("t1", &fakeConversations{}, &fakeMessages{}, &fakePublisher{}, nil, slog.Default())

	for name, mutate := range map[string]func(*channel.InboundEvent){
		"missing platform":   func(e *channel.InboundEvent) { e.Platform = "" },
		"missing channel id": func(e *channel.InboundEvent) { e.ChannelID = " " },
		"missing user id":    func(e *channel.InboundEvent) { e.UserID = "" },
		"empty content":      func(e *channel.InboundEvent) { e.Text = ""; e.ContentType = channel.ContentText },
	} {
		event := lineEvent()
		mutate(&event)
		_, err := pipeline.Ingest(context.Background(), event)
		assert.ErrorIs(t, err, ErrInvalidPayload, name)
	}
}

func TestIngestDedupSkipsProcessing(t *testing.T) {
	publisher := &fakePublisher{}
	pipeline := NewPipeline("t1", &fakeConversations{}, &fakeMessages{}, publisher, &fakeDeduper{seen: true}, slog.Default())

	result, err := pipeline.Ingest(context.Background(), lineEvent())
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Empty(t, publisher.events)
}

func TestIngestDedupFailureIsNotFatal(t *testing.T) {
	conversations := &fakeConversations{conv: conversation.Conversation{ID: "c1"}}
	messages := &fakeMessages{msg: message.Message{ID: "m1"}, created: true}
	pipeline := NewPipeline("t1", conversations, messages, &fakePublisher{}, &fakeDeduper{err: errors.New("redis down")}, slog.Default())

	result, err := pipeline.Ingest(context.Background(), lineEvent())
	require.NoError(t, err)
	assert.Equal(t, "m1", result.Message.ID)
}

func TestIngestStorageFailure(t *testing.T) {
	pipeline := NewPipeline("t1", &fakeConversations{err: fmt.Errorf("pg down")}, &fakeMessages{}, &fakePublisher{}, nil, slog.Default())

	_, err := pipeline.Ingest(context.Background(), lineEvent())
	assert.ErrorIs(t, err, ErrStorage)
}

func TestIngestDatabaseDuplicateDoesNotPublish(t *testing.T) {
	conversations := &fakeConversations{conv: conversation.Conversation{ID: "c1"}}
	messages := &fakeMessages{msg: message.Message{ID: "m1"}, created: false}
	publisher := &fakePublisher{}
	pipeline := NewPipeline("t1", conversations, messages, publisher, nil, slog.Default())

	result, err := pipeline.Ingest(context.Background(), lineEvent())
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Empty(t, publisher.events)
}
