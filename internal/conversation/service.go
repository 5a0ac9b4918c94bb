package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/db"
)

// Service persists and queries conversations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a conversation service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

const conversationColumns = `
	id, tenant_id, platform, channel_id, user_id, platform_account_id,
	created_at, updated_at`

// FindOrCreate resolves a conversation identity to exactly one row, creating
// it when missing. A single upsert keeps concurrent ingests for the same
// identity from creating duplicates: both land on the identity index and one
// row wins.
func (s *Service) FindOrCreate(ctx context.Context, identity Identity) (Conversation, error) {
	tenantID, err := db.ParseUUID(identity.TenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	accountID, err := db.ParseOptionalUUID(identity.PlatformAccountID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid platform account id: %w", err)
	}
	channelID := strings.TrimSpace(identity.ChannelID)
	userID := strings.TrimSpace(identity.UserID)
	if identity.Platform == "" || channelID == "" || userID == "" {
		return Conversation{}, fmt.Errorf("platform, channel id and user id are required")
	}
	rows, err := s.pool.Query(ctx, `
		INSERT INTO conversations (tenant_id, platform, channel_id, user_id, platform_account_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform, channel_id, user_id,
			COALESCE(platform_account_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET updated_at = now()
		RETURNING`+conversationColumns,
		tenantID, identity.Platform.String(), channelID, userID, accountID)
	if err != nil {
		return Conversation{}, fmt.Errorf("find or create conversation: %w", err)
	}
	conv, err := pgx.CollectOneRow(rows, scanConversation)
	if err != nil {
		return Conversation{}, fmt.Errorf("find or create conversation: %w", err)
	}
	return conv, nil
}

// Get returns one conversation by id.
func (s *Service) Get(ctx context.Context, conversationID string) (Conversation, error) {
	id, err := db.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: invalid id", ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations WHERE id = $1
	`, id)
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	conv, err := pgx.CollectOneRow(rows, scanConversation)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// List returns all of a tenant's conversations, most recently active first.
func (s *Service) List(ctx context.Context, tenantID string) ([]Conversation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE tenant_id = $1
		ORDER BY updated_at DESC
	`, tid)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	conversations, err := pgx.CollectRows(rows, scanConversation)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// ListAssigned returns the conversations assigned to one admin, most recently
// active first.
func (s *Service) ListAssigned(ctx context.Context, adminID string) ([]Conversation, error) {
	aid, err := db.ParseUUID(adminID)
	if err != nil {
		return nil, fmt.Errorf("invalid admin id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations c
		JOIN assignments a ON a.conversation_id = c.id
		WHERE a.admin_id = $1
		ORDER BY c.updated_at DESC
	`, aid)
	if err != nil {
		return nil, fmt.Errorf("list assigned conversations: %w", err)
	}
	conversations, err := pgx.CollectRows(rows, scanConversation)
	if err != nil {
		return nil, fmt.Errorf("list assigned conversations: %w", err)
	}
	return conversations, nil
}

// FindByChannel returns an existing conversation for a platform routing key
// without creating one.
func (s *Service) FindByChannel(ctx context.Context, platform channel.Platform, channelID, userID string) (Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+conversationColumns+`
		FROM conversations
		WHERE platform = $1 AND channel_id = $2 AND user_id = $3
		ORDER BY created_at
		LIMIT 1
	`, platform.String(), strings.TrimSpace(channelID), strings.TrimSpace(userID))
	if err != nil {
		return Conversation{}, fmt.Errorf("find conversation: %w", err)
	}
	conv, err := pgx.CollectOneRow(rows, scanConversation)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("find conversation: %w", err)
	}
	return conv, nil
}

// Touch bumps a conversation's activity timestamp and returns the new value,
// so callers can fan out the fresh snapshot instead of a stale read.
func (s *Service) Touch(ctx context.Context, conversationID string) (time.Time, error) {
	id, err := db.ParseUUID(conversationID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid id", ErrNotFound)
	}
	var updatedAt pgtype.Timestamptz
	err = s.pool.QueryRow(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1
		RETURNING updated_at
	`, id).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("touch conversation: %w", err)
	}
	return updatedAt.Time, nil
}

func scanConversation(row pgx.CollectableRow) (Conversation, error) {
	var (
		id        pgtype.UUID
		tenantID  pgtype.UUID
		platform  string
		accountID pgtype.UUID
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		conv      Conversation
	)
	err := row.Scan(&id, &tenantID, &platform, &conv.ChannelID, &conv.UserID,
		&accountID, &createdAt, &updatedAt)
	if err != nil {
		return Conversation{}, err
	}
	conv.ID = db.UUIDToString(id)
	conv.TenantID = db.UUIDToString(tenantID)
	conv.Platform = channel.Platform(platform)
	conv.PlatformAccountID = db.UUIDToString(accountID)
	conv.CreatedAt = createdAt.Time
	conv.UpdatedAt = updatedAt.Time
	return conv, nil
}
