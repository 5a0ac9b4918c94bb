package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaydesk/relaydesk/internal/admin"
	"github.com/relaydesk/relaydesk/internal/auth"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

type fakeFeedScope struct {
	assigned map[string]bool
	err      error
}

func (f *fakeFeedScope) CanSee(_ context.Context, _, conversationID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.assigned[conversationID], nil
}

func (f *fakeFeedScope) IsAssigned(_ context.Context, conversationID, _ string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.assigned[conversationID], nil
}

func feedHandler(scope *fakeFeedScope) *RealtimeHandler {
	return NewRealtimeHandler(realtime.NewHub(8, slog.Default()), scope, slog.Default())
}

func conversationEnvelope(event, conversationID string) realtime.Envelope {
	payload, _ := json.Marshal(map[string]any{
		"conversation": map[string]string{"id": conversationID},
	})
	return realtime.Envelope{Topic: realtime.TopicAdminFeed, Event: event, Payload: payload}
}

func TestAdminFeedScope(t *testing.T) {
	superAdmin := auth.Identity{AdminID: "a0", Role: string(admin.RoleSuperAdmin)}
	operator := auth.Identity{AdminID: "a1", Role: string(admin.RoleUser)}

	tests := []struct {
		name     string
		scope    *fakeFeedScope
		identity auth.Identity
		envelope realtime.Envelope
		want     bool
	}{
		{
			name:     "super admin sees unassigned conversations",
			scope:    &fakeFeedScope{},
			identity: superAdmin,
			envelope: conversationEnvelope(realtime.EventMessageReceived, "c1"),
			want:     true,
		},
		{
			name:     "assigned admin receives the event",
			scope:    &fakeFeedScope{assigned: map[string]bool{"c1": true}},
			identity: operator,
			envelope: conversationEnvelope(realtime.EventMessageReceived, "c1"),
			want:     true,
		},
		{
			name:     "unassigned admin is dropped",
			scope:    &fakeFeedScope{assigned: map[string]bool{"c2": true}},
			identity: operator,
			envelope: conversationEnvelope(realtime.EventMessageReceived, "c1"),
			want:     false,
		},
		{
			name:     "event without a conversation id is dropped",
			scope:    &fakeFeedScope{assigned: map[string]bool{"c1": true}},
			identity: operator,
			envelope: realtime.Envelope{Event: realtime.EventConversationUpdated, Payload: json.RawMessage(`{}`)},
			want:     false,
		},
		{
			name:     "lookup failure fails closed",
			scope:    &fakeFeedScope{err: errors.New("pg down")},
			identity: operator,
			envelope: conversationEnvelope(realtime.EventMessageReceived, "c1"),
			want:     false,
		},
		{
			name:     "metrics snapshots reach every admin",
			scope:    &fakeFeedScope{},
			identity: operator,
			envelope: realtime.Envelope{Event: realtime.EventMetricsUpdated, Payload: json.RawMessage(`{"total_conversations":3}`)},
			want:     true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := feedHandler(tc.scope)
			assert.Equal(t, tc.want, h.allowed(context.Background(), tc.identity, tc.envelope))
		})
	}
}

func TestConversationIDFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"nested conversation id", `{"conversation":{"id":"c1"},"message":{"id":"m1"}}`, "c1"},
		{"missing conversation", `{"message":{"id":"m1"}}`, ""},
		{"empty id", `{"conversation":{"id":""}}`, ""},
		{"malformed json", `{"conversation":`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, conversationIDFromPayload(json.RawMessage(tc.payload)))
		})
	}
}
