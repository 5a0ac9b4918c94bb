// Package reconcile merges live feed events into client-side views of a
// conversation. It is the shared logic behind the widget and console UIs:
// optimistic local sends are tracked as provisional entries and replaced in
// place when the server-confirmed copy arrives, so applying the same event
// twice never duplicates a message.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/message"
)

// DeliveryState tracks a provisional entry's lifecycle.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// Ref identifies an entry either by a client-local id (provisional, not yet
// acknowledged by the server) or a server id (confirmed). Exactly one kind
// is set; the zero Ref is invalid.
type Ref struct {
	kind string
	id   string
}

// Provisional makes a Ref for a locally created, unacknowledged entry.
func Provisional(localID string) Ref {
	return Ref{kind: "provisional", id: localID}
}

// Confirmed makes a Ref for a server-acknowledged entry.
func Confirmed(serverID string) Ref {
	return Ref{kind: "confirmed", id: serverID}
}

// IsProvisional reports whether the ref is a client-local id.
func (r Ref) IsProvisional() bool { return r.kind == "provisional" }

// ID returns the underlying id value.
func (r Ref) ID() string { return r.id }

// Entry is one message in a client view.
type Entry struct {
	Ref     Ref
	Message message.Message
	State   DeliveryState
}

// Thread is the ordered message list for one conversation.
type Thread struct {
	Entries []Entry
}

// AddProvisional appends an optimistic local entry in pending state.
func (t *Thread) AddProvisional(localID string, msg message.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	t.Entries = append(t.Entries, Entry{
		Ref:     Provisional(localID),
		Message: msg,
		State:   StatePending,
	})
	t.sort()
}

// Apply merges one server-confirmed message into the thread. Resolution
// order:
//  1. An entry already confirmed with the same server id is updated in
//     place, so re-applying a redelivered event is a no-op.
//  2. Otherwise the oldest pending provisional entry from the same sender
//     with identical content is promoted to confirmed.
//  3. Otherwise the message is appended as a new confirmed entry.
func (t *Thread) Apply(msg message.Message) {
	defer t.sort()

	for i := range t.Entries {
		if !t.Entries[i].Ref.IsProvisional() && t.Entries[i].Ref.ID() == msg.ID {
			t.Entries[i].Message = msg
			t.Entries[i].State = StateConfirmed
			return
		}
	}
	for i := range t.Entries {
		entry := &t.Entries[i]
		if entry.Ref.IsProvisional() && entry.State == StatePending &&
			entry.Message.Sender == msg.Sender &&
			strings.TrimSpace(entry.Message.Content) == strings.TrimSpace(msg.Content) {
			entry.Ref = Confirmed(msg.ID)
			entry.Message = msg
			entry.State = StateConfirmed
			return
		}
	}
	t.Entries = append(t.Entries, Entry{
		Ref:     Confirmed(msg.ID),
		Message: msg,
		State:   StateConfirmed,
	})
}

// MarkFailed flips a provisional entry to failed so the UI can offer retry.
// Unknown ids are ignored.
func (t *Thread) MarkFailed(localID string) {
	for i := range t.Entries {
		if t.Entries[i].Ref.IsProvisional() && t.Entries[i].Ref.ID() == localID {
			t.Entries[i].State = StateFailed
			return
		}
	}
}

// Remove drops an entry by ref, e.g. a failed provisional the user discarded.
func (t *Thread) Remove(ref Ref) {
	for i := range t.Entries {
		if t.Entries[i].Ref == ref {
			t.Entries = append(t.Entries[:i], t.Entries[i+1:]...)
			return
		}
	}
}

// Messages returns the thread's messages in display order.
func (t *Thread) Messages() []message.Message {
	out := make([]message.Message, len(t.Entries))
	for i, entry := range t.Entries {
		out[i] = entry.Message
	}
	return out
}

// sort keeps entries in send order: timestamp ascending, server id as the
// tiebreaker so the ordering matches the persistence layer's.
func (t *Thread) sort() {
	sort.SliceStable(t.Entries, func(i, j int) bool {
		a, b := t.Entries[i].Message, t.Entries[j].Message
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
}

// ConversationView pairs a conversation's list metadata with its latest
// message for the sidebar ordering.
type ConversationView struct {
	ID          string
	UpdatedAt   time.Time
	LastMessage *message.Message
}

// SortConversations orders a sidebar list by latest activity, newest first.
// A conversation without messages falls back to its updated timestamp.
func SortConversations(views []ConversationView) {
	sort.SliceStable(views, func(i, j int) bool {
		return activityTime(views[i]).After(activityTime(views[j]))
	})
}

func activityTime(view ConversationView) time.Time {
	if view.LastMessage != nil && !view.LastMessage.Timestamp.IsZero() {
		return view.LastMessage.Timestamp
	}
	return view.UpdatedAt
}
