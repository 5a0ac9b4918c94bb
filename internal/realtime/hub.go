// Package realtime is the in-process fan-out bus between the ingest/dispatch
// pipelines and the live admin console and widget feeds.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Well-known topics. Per-conversation and per-visitor topics are derived
// with the helper functions below.
const (
	// TopicAdminFeed carries every conversation-level event for the console.
	// Subscribers attach a scope filter so operators only see what they are
	// allowed to.
	TopicAdminFeed = "admin-feed"
	// TopicMetrics carries dashboard counter snapshots.
	TopicMetrics = "metrics"
)

// Event names mirrored to connected clients.
const (
	EventMessageReceived      = "message-received"
	EventConversationUpdated  = "conversation-updated"
	EventConversationsUpdated = "conversations-updated"
	EventMetricsUpdated       = "metrics-updated"
)

// ConversationTopic returns the topic for one conversation's message feed.
func ConversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

// WidgetTopic returns the topic a widget visitor listens on for replies.
func WidgetTopic(visitorID string) string {
	return "widget:" + visitorID
}

// Envelope is one published event as delivered to subscribers.
type Envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// FilterFunc decides per-subscriber whether an envelope is delivered.
// Returning false drops the event for that subscriber only.
type FilterFunc func(Envelope) bool

type subscriber struct {
	id     uint64
	ch     chan Envelope
	filter FilterFunc
}

// Hub is the fan-out bus. Publish never blocks: a subscriber that cannot
// keep up has events dropped rather than stalling the pipeline.
type Hub struct {
	mu          sync.RWMutex
	topics      map[string]map[uint64]*subscriber
	nextID      atomic.Uint64
	bufferSize  int
	logger      *slog.Logger
	dropCounter atomic.Uint64
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(bufferSize int, log *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		topics:     make(map[string]map[uint64]*subscriber),
		bufferSize: bufferSize,
		logger:     log.With(slog.String("service", "realtime")),
	}
}

// Subscribe registers a listener on a topic. filter may be nil to receive
// everything. The returned cancel func must be called to release the
// subscription; the channel is closed on cancel.
func (h *Hub) Subscribe(topic string, filter FilterFunc) (<-chan Envelope, func()) {
	sub := &subscriber{
		id:     h.nextID.Add(1),
		ch:     make(chan Envelope, h.bufferSize),
		filter: filter,
	}
	h.mu.Lock()
	listeners, ok := h.topics[topic]
	if !ok {
		listeners = make(map[uint64]*subscriber)
		h.topics[topic] = listeners
	}
	listeners[sub.id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if listeners, ok := h.topics[topic]; ok {
				delete(listeners, sub.id)
				if len(listeners) == 0 {
					delete(h.topics, topic)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish marshals payload and fans it out to the topic's subscribers.
// Marshal errors are logged and swallowed: a fan-out failure must never fail
// the persistence path that triggered it.
func (h *Hub) Publish(topic, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("drop unmarshalable event",
			slog.String("topic", topic),
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}
	envelope := Envelope{Topic: topic, Event: event, Payload: raw}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.topics[topic] {
		if sub.filter != nil && !sub.filter(envelope) {
			continue
		}
		select {
		case sub.ch <- envelope:
		default:
			h.dropCounter.Add(1)
			h.logger.Warn("slow subscriber, event dropped",
				slog.String("topic", topic),
				slog.String("event", event),
				slog.Uint64("subscriber", sub.id))
		}
	}
}

// SubscriberCount returns the number of listeners on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped returns the total number of events dropped on full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropCounter.Load()
}
