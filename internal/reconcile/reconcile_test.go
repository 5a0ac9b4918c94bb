package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/message"
)

func serverMessage(id, content string, sender message.Sender, ts time.Time) message.Message {
	return message.Message{ID: id, Content: content, Sender: sender, Timestamp: ts}
}

func TestApplyPromotesMatchingProvisional(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	thread := &Thread{}
	thread.AddProvisional("local-1", message.Message{
		Content:   "hello",
		Sender:    message.SenderUser,
		Timestamp: base,
	})

	thread.Apply(serverMessage("srv-1", "hello", message.SenderUser, base.Add(time.Second)))

	require.Len(t, thread.Entries, 1)
	entry := thread.Entries[0]
	assert.False(t, entry.Ref.IsProvisional())
	assert.Equal(t, "srv-1", entry.Ref.ID())
	assert.Equal(t, StateConfirmed, entry.State)
}

func TestApplyIsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	thread := &Thread{}
	msg := serverMessage("srv-1", "hello", message.SenderUser, base)

	thread.Apply(msg)
	thread.Apply(msg)
	thread.Apply(msg)

	require.Len(t, thread.Entries, 1)
}

func TestApplyDoesNotMatchDifferentContentOrSender(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	thread := &Thread{}
	thread.AddProvisional("local-1", message.Message{
		Content:   "hello",
		Sender:    message.SenderUser,
		Timestamp: base,
	})

	thread.Apply(serverMessage("srv-1", "different", message.SenderUser, base))
	thread.Apply(serverMessage("srv-2", "hello", message.SenderBot, base))

	require.Len(t, thread.Entries, 3)
	assert.Equal(t, StatePending, thread.Entries[0].State)
}

func TestApplyKeepsSendOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	thread := &Thread{}
	thread.Apply(serverMessage("srv-2", "second", message.SenderUser, base.Add(time.Minute)))
	thread.Apply(serverMessage("srv-1", "first", message.SenderUser, base))
	thread.Apply(serverMessage("srv-3", "third", message.SenderBot, base.Add(2*time.Minute)))

	messages := thread.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "third", messages[2].Content)
}

func TestApplyTiesBreakOnID(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	thread := &Thread{}
	thread.Apply(serverMessage("b", "two", message.SenderUser, base))
	thread.Apply(serverMessage("a", "one", message.SenderUser, base))

	messages := thread.Messages()
	assert.Equal(t, "one", messages[0].Content)
	assert.Equal(t, "two", messages[1].Content)
}

func TestMarkFailedAndRemove(t *testing.T) {
	thread := &Thread{}
	thread.AddProvisional("local-1", message.Message{Content: "x", Sender: message.SenderUser})

	thread.MarkFailed("local-1")
	require.Len(t, thread.Entries, 1)
	assert.Equal(t, StateFailed, thread.Entries[0].State)

	// A failed entry no longer matches an incoming confirmation.
	thread.Apply(serverMessage("srv-1", "x", message.SenderUser, time.Now()))
	assert.Len(t, thread.Entries, 2)

	thread.Remove(Provisional("local-1"))
	require.Len(t, thread.Entries, 1)
	assert.Equal(t, "srv-1", thread.Entries[0].Ref.ID())
}

func TestSortConversationsByLatestActivity(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newest := serverMessage("m3", "c", message.SenderUser, base.Add(2*time.Hour))
	older := serverMessage("m1", "a", message.SenderUser, base)

	views := []ConversationView{
		{ID: "c-old", UpdatedAt: base, LastMessage: &older},
		{ID: "c-empty", UpdatedAt: base.Add(time.Hour)},
		{ID: "c-new", UpdatedAt: base, LastMessage: &newest},
	}
	SortConversations(views)

	assert.Equal(t, "c-new", views[0].ID)
	assert.Equal(t, "c-empty", views[1].ID)
	assert.Equal(t, "c-old", views[2].ID)
}
