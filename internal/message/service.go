package message

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

// Service persists and queries messages.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "message")),
	}
}

const messageColumns = `
	id, conversation_id, content, content_type, sender, platform, ts,
	external_id, chat_type, chat_id, image_url, created_at`

// Create persists one message. The second return value reports whether a new
// row was written: when the platform external id already exists for the
// conversation (a webhook redelivery), the stored message is returned with
// created=false and nothing is inserted.
func (s *Service) Create(ctx context.Context, input CreateInput) (Message, bool, error) {
	conversationID, err := db.ParseUUID(input.ConversationID)
	if err != nil {
		return Message{}, false, fmt.Errorf("invalid conversation id: %w", err)
	}
	if input.Sender == "" || input.Platform == "" {
		return Message{}, false, fmt.Errorf("sender and platform are required")
	}
	contentType := input.ContentType
	if contentType == "" {
		contentType = channel.ContentText
	}
	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	rows, err := s.pool.Query(ctx, `
		INSERT INTO messages
			(conversation_id, content, content_type, sender, platform, ts,
			 external_id, chat_type, chat_id, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (conversation_id, external_id) WHERE external_id IS NOT NULL
		DO NOTHING
		RETURNING`+messageColumns,
		conversationID, input.Content, string(contentType), string(input.Sender),
		input.Platform.String(), db.ToPgTimestamptz(timestamp),
		db.ToPgText(input.ExternalID), input.ChatType, input.ChatID, input.ImageURL)
	if err != nil {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	created, err := pgx.CollectOneRow(rows, scanMessage)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	// Conflict path: fetch the earlier delivery.
	existing, err := s.getByExternalID(ctx, conversationID, input.ExternalID)
	if err != nil {
		return Message{}, false, fmt.Errorf("resolve duplicate message: %w", err)
	}
	s.logger.Debug("duplicate message ignored",
		slog.String("conversation_id", input.ConversationID),
		slog.String("external_id", input.ExternalID))
	return existing, false, nil
}

// Get returns one message by id.
func (s *Service) Get(ctx context.Context, messageID string) (Message, error) {
	id, err := db.ParseUUID(messageID)
	if err != nil {
		return Message{}, fmt.Errorf("%w: invalid id", ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+messageColumns+`
		FROM messages WHERE id = $1
	`, id)
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	msg, err := pgx.CollectOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// Delete removes a message. Used to roll back a persisted outbound message
// whose platform delivery failed, so the console never shows a reply the
// customer did not receive.
func (s *Service) Delete(ctx context.Context, messageID string) error {
	id, err := db.ParseUUID(messageID)
	if err != nil {
		return fmt.Errorf("%w: invalid id", ErrNotFound)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByConversation returns a conversation's messages in stable send order:
// platform timestamp ascending, id as the tiebreaker.
func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	id, err := db.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY ts, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// LatestForConversations returns the newest message per conversation id.
func (s *Service) LatestForConversations(ctx context.Context, conversationIDs []string) (map[string]Message, error) {
	if len(conversationIDs) == 0 {
		return map[string]Message{}, nil
	}
	ids := make([]pgtype.UUID, 0, len(conversationIDs))
	for _, raw := range conversationIDs {
		id, err := db.ParseUUID(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (conversation_id)`+messageColumns+`
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY conversation_id, ts DESC, id DESC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	latest := make(map[string]Message, len(messages))
	for _, msg := range messages {
		latest[msg.ConversationID] = msg
	}
	return latest, nil
}

func (s *Service) getByExternalID(ctx context.Context, conversationID pgtype.UUID, externalID string) (Message, error) {
	if strings.TrimSpace(externalID) == "" {
		return Message{}, ErrNotFound
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND external_id = $2
	`, conversationID, externalID)
	if err != nil {
		return Message{}, err
	}
	msg, err := pgx.CollectOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return msg, err
}

func scanMessage(row pgx.CollectableRow) (Message, error) {
	var (
		id             pgtype.UUID
		conversationID pgtype.UUID
		contentType    string
		sender         string
		platform       string
		ts             pgtype.Timestamptz
		externalID     pgtype.Text
		createdAt      pgtype.Timestamptz
		msg            Message
	)
	err := row.Scan(&id, &conversationID, &msg.Content, &contentType, &sender,
		&platform, &ts, &externalID, &msg.ChatType, &msg.ChatID, &msg.ImageURL, &createdAt)
	if err != nil {
		return Message{}, err
	}
	msg.ID = db.UUIDToString(id)
	msg.ConversationID = db.UUIDToString(conversationID)
	msg.ContentType = channel.ContentType(contentType)
	msg.Sender = Sender(sender)
	msg.Platform = channel.Platform(platform)
	msg.Timestamp = ts.Time
	msg.ExternalID = db.TextToString(externalID)
	msg.CreatedAt = createdAt.Time
	return msg, nil
}
