package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
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
	conv      conversation.Conversation
	getErr    error
	touched   []string
	touchedAt time.Time
}

func (f *fakeConversations) Get(_ context.Context, id string) (conversation.Conversation, error) {
	if f.getErr != nil {
		return conversation.Conversation{}, f.getErr
	}
	return f.conv, nil
}

func (f *fakeConversations) Touch(_ context.Context, id string) (time.Time, error) {
	f.touched = append(f.touched, id)
	if f.touchedAt.IsZero() {
		return time.Now(), nil
	}
	return f.touchedAt, nil
}

type fakeMessages struct {
	next    message.Message
	deleted []string
}

func (f *fakeMessages) Create(_ context.Context, input message.CreateInput) (message.Message, bool, error) {
	msg := f.next
	msg.Content = input.Content
	msg.Sender = input.Sender
	msg.Platform = input.Platform
	return msg, true, nil
}

func (f *fakeMessages) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeAccounts struct {
	ref channel.AccountRef
	err error
}

func (f *fakeAccounts) Credentials(context.Context, string) (channel.AccountRef, error) {
	return f.ref, f.err
}

type published struct {
	topic   string
	event   string
	payload any
}

type fakePublisher struct {
	events []published
}

func (f *fakePublisher) Publish(topic, event string, payload any) {
	f.events = append(f.events, published{topic: topic, event: event, payload: payload})
}

func (f *fakePublisher) topics() []string {
	topics := make([]string, 0, len(f.events))
	for _, p := range f.events {
		topics = append(topics, p.topic)
	}
	return topics
}

type fakeSender struct {
	descriptor channel.Descriptor
	sendErr    error
	sent       []string
}

func (f *fakeSender) Platform() channel.Platform     { return f.descriptor.Platform }
func (f *fakeSender) Descriptor() channel.Descriptor { return f.descriptor }

func (f *fakeSender) Send(_ context.Context, _ channel.AccountRef, _, content string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, content)
	return nil
}

func newService(t *testing.T, conv conversation.Conversation, sender *fakeSender) (*Service, *fakeMessages, *fakePublisher) {
	t.Helper()
	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(sender))
	messages := &fakeMessages{next: message.Message{ID: "m1", ConversationID: conv.ID}}
	publisher := &fakePublisher{}
	service := NewService(
		&fakeConversations{conv: conv},
		messages,
		&fakeAccounts{ref: channel.AccountRef{ID: "acct-1", AccessToken: "token"}},
		registry,
		publisher,
		time.Second,
		slog.Default(),
	)
	return service, messages, publisher
}

func lineConversation() conversation.Conversation {
	return conversation.Conversation{
		ID:                "c1",
		Platform:          channel.PlatformLINE,
		ChannelID:         "room-1",
		UserID:            "user-1",
		PlatformAccountID: "acct-1",
	}
}

func TestDispatchSendsAndPublishes(t *testing.T) {
	sender := &fakeSender{descriptor: channel.Descriptor{Platform: channel.PlatformLINE, TextChunkLimit: 5000}}
	service, messages, publisher := newService(t, lineConversation(), sender)

	stored, err := service.Dispatch(context.Background(), Input{
		ConversationID: "c1",
		Content:        "on our way",
		Sender:         message.SenderAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", stored.ID)
	assert.Equal(t, message.SenderAdmin, stored.Sender)
	assert.Equal(t, []string{"on our way"}, sender.sent)
	assert.Empty(t, messages.deleted)
	assert.Contains(t, publisher.topics(), realtime.ConversationTopic("c1"))
	feedEvents := make(map[string]bool)
	for _, p := range publisher.events {
		if p.topic == realtime.TopicAdminFeed {
			feedEvents[p.event] = true
		}
	}
	assert.True(t, feedEvents[realtime.EventMessageReceived])
	assert.True(t, feedEvents[realtime.EventConversationUpdated])
}

func TestDispatchChunksLongContent(t *testing.T) {
	sender := &fakeSender{descriptor: channel.Descriptor{Platform: channel.PlatformLINE, TextChunkLimit: 10}}
	service, _, _ := newService(t, lineConversation(), sender)

	_, err := service.Dispatch(context.Background(), Input{
		ConversationID: "c1",
		Content:        strings.Repeat("a", 25),
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 3)
	for _, chunk := range sender.sent {
		assert.LessOrEqual(t, len(chunk), 10)
	}
}

func TestDispatchRollsBackOnSendFailure(t *testing.T) {
	sender := &fakeSender{
		descriptor: channel.Descriptor{Platform: channel.PlatformLINE},
		sendErr:    channel.ErrSendFailed,
	}
	service, messages, publisher := newService(t, lineConversation(), sender)

	_, err := service.Dispatch(context.Background(), Input{ConversationID: "c1", Content: "hi"})
	assert.ErrorIs(t, err, ErrDeliveryFailure)
	assert.Equal(t, []string{"m1"}, messages.deleted)
	assert.Empty(t, publisher.events)
}

func TestDispatchWidgetSkipsExternalSend(t *testing.T) {
	sender := &fakeSender{descriptor: channel.Descriptor{Platform: channel.PlatformWebsite, Local: true}}
	conv := conversation.Conversation{
		ID:        "c1",
		Platform:  channel.PlatformWebsite,
		ChannelID: "web-abc",
		UserID:    "web-abc",
	}
	service, messages, publisher := newService(t, conv, sender)

	_, err := service.Dispatch(context.Background(), Input{ConversationID: "c1", Content: "hello"})
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
	assert.Empty(t, messages.deleted)
	assert.Contains(t, publisher.topics(), realtime.WidgetTopic("web-abc"))
}

// Subscribers reorder conversation lists on updated_at; the fan-out has to
// carry the value Touch just wrote, not the snapshot read before the send.
func TestDispatchPublishesFreshActivityTimestamp(t *testing.T) {
	stale := time.Now().Add(-time.Hour)
	bumped := time.Now()
	conv := lineConversation()
	conv.UpdatedAt = stale

	registry := channel.NewRegistry()
	sender := &fakeSender{descriptor: channel.Descriptor{Platform: channel.PlatformLINE, TextChunkLimit: 5000}}
	require.NoError(t, registry.Register(sender))
	publisher := &fakePublisher{}
	service := NewService(
		&fakeConversations{conv: conv, touchedAt: bumped},
		&fakeMessages{next: message.Message{ID: "m1", ConversationID: "c1"}},
		&fakeAccounts{ref: channel.AccountRef{ID: "acct-1", AccessToken: "token"}},
		registry,
		publisher,
		time.Second,
		slog.Default(),
	)

	_, err := service.Dispatch(context.Background(), Input{ConversationID: "c1", Content: "hi"})
	require.NoError(t, err)

	require.NotEmpty(t, publisher.events)
	for _, p := range publisher.events {
		payload, ok := p.payload.(map[string]any)
		require.True(t, ok)
		got, ok := payload["conversation"].(conversation.Conversation)
		require.True(t, ok)
		assert.Equal(t, bumped, got.UpdatedAt)
	}
}

func TestDispatchUnknownConversation(t *testing.T) {
	registry := channel.NewRegistry()
	service := NewService(
		&fakeConversations{getErr: conversation.ErrNotFound},
		&fakeMessages{},
		&fakeAccounts{},
		registry,
		&fakePublisher{},
		time.Second,
		slog.Default(),
	)
	_, err := service.Dispatch(context.Background(), Input{ConversationID: "missing", Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatchRejectsUserSender(t *testing.T) {
	sender := &fakeSender{descriptor: channel.Descriptor{Platform: channel.PlatformLINE}}
	service, _, _ := newService(t, lineConversation(), sender)

	_, err := service.Dispatch(context.Background(), Input{
		ConversationID: "c1",
		Content:        "hi",
		Sender:         message.SenderUser,
	})
	assert.Error(t, err)
}

func TestDispatchCredentialFailureRollsBack(t *testing.T) {
	registry := channel.NewRegistry()
	sender := &fakeSender{descriptor: channel.Descriptor{Platform: channel.PlatformLINE}}
	require.NoError(t, registry.Register(sender))
	messages := &fakeMessages{next: message.Message{ID: "m1"}}
	service := NewService(
		&fakeConversations{conv: lineConversation()},
		messages,
		&fakeAccounts{err: errors.New("account deactivated")},
		registry,
		&fakePublisher{},
		time.Second,
		slog.Default(),
	)
	_, err := service.Dispatch(context.Background(), Input{ConversationID: "c1", Content: "hi"})
	assert.ErrorIs(t, err, ErrDeliveryFailure)
	assert.Equal(t, []string{"m1"}, messages.deleted)
}
