// Package metrics computes dashboard counters and broadcasts snapshots to
// the console on a cron schedule.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/relaydesk/relaydesk/internal/db"
	"github.com/relaydesk/relaydesk/internal/realtime"
)

// Snapshot is one point-in-time view of the dashboard counters.
type Snapshot struct {
	TotalConversations  int64            `json:"total_conversations"`
	ActiveConversations int64            `json:"active_conversations"`
	MessagesToday       int64            `json:"messages_today"`
	ByPlatform          map[string]int64 `json:"by_platform"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

// Publisher is the fan-out side of the realtime hub.
type Publisher interface {
	Publish(topic, event string, payload any)
}

// Service computes and broadcasts metrics.
type Service struct {
	pool      *pgxpool.Pool
	tenantID  string
	publisher Publisher
	cron      *cron.Cron
	schedule  string
	logger    *slog.Logger
}

// NewService creates a metrics service. schedule is a cron expression, e.g.
// "@every 30s".
func NewService(pool *pgxpool.Pool, tenantID, schedule string, publisher Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:      pool,
		tenantID:  tenantID,
		publisher: publisher,
		cron:      cron.New(),
		schedule:  schedule,
		logger:    log.With(slog.String("service", "metrics")),
	}
}

// Snapshot computes the current counters. Active means a conversation with
// activity in the last 24 hours; messages today counts from local midnight.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	tid, err := db.ParseUUID(s.tenantID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	now := time.Now()
	snapshot := Snapshot{
		ByPlatform:  make(map[string]int64),
		GeneratedAt: now,
	}

	err = s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE updated_at >= $2)
		FROM conversations
		WHERE tenant_id = $1
	`, tid, db.ToPgTimestamptz(now.Add(-24*time.Hour))).
		Scan(&snapshot.TotalConversations, &snapshot.ActiveConversations)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count conversations: %w", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.tenant_id = $1 AND m.ts >= $2
	`, tid, db.ToPgTimestamptz(midnight)).Scan(&snapshot.MessagesToday)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT platform, count(*)
		FROM conversations
		WHERE tenant_id = $1
		GROUP BY platform
	`, tid)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count by platform: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			platform string
			count    int64
		)
		if err := rows.Scan(&platform, &count); err != nil {
			return Snapshot{}, fmt.Errorf("count by platform: %w", err)
		}
		snapshot.ByPlatform[platform] = count
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("count by platform: %w", err)
	}
	return snapshot, nil
}

// Start begins the periodic broadcast. A failed computation is logged and
// the next tick tries again.
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		s.broadcast(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule metrics broadcast: %w", err)
	}
	s.cron.Start()
	s.logger.Info("metrics broadcaster started", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the broadcaster and waits for a running tick to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Service) broadcast(ctx context.Context) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("metrics snapshot failed", slog.String("error", err.Error()))
		return
	}
	// The console dashboard listens on the dedicated stream; the admin feed
	// gets a mirror so a connected console needs only one socket.
	s.publisher.Publish(realtime.TopicMetrics, realtime.EventMetricsUpdated, snapshot)
	s.publisher.Publish(realtime.TopicAdminFeed, realtime.EventMetricsUpdated, snapshot)
}
