package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaydesk/relaydesk/internal/db"
)

// Service manages admin accounts and assignments.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates an admin service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "admin")),
	}
}

const adminColumns = `id, tenant_id, username, password_hash, role, created_at`

// Create adds an admin account with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (Admin, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Admin{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return Admin{}, fmt.Errorf("username and password are required")
	}
	if !input.Role.Valid() {
		return Admin{}, fmt.Errorf("unknown role: %s", input.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Admin{}, fmt.Errorf("hash password: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		INSERT INTO admins (tenant_id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+adminColumns,
		tid, username, string(hash), string(input.Role))
	if err != nil {
		return Admin{}, fmt.Errorf("create admin: %w", err)
	}
	created, err := pgx.CollectOneRow(rows, scanAdmin)
	if err != nil {
		return Admin{}, fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin created",
		slog.String("admin_id", created.ID),
		slog.String("username", created.Username),
		slog.String("role", string(created.Role)))
	return created, nil
}

// Get returns one admin by id.
func (s *Service) Get(ctx context.Context, adminID string) (Admin, error) {
	id, err := db.ParseUUID(adminID)
	if err != nil {
		return Admin{}, fmt.Errorf("%w: invalid id", ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+adminColumns+` FROM admins WHERE id = $1
	`, id)
	if err != nil {
		return Admin{}, fmt.Errorf("get admin: %w", err)
	}
	found, err := pgx.CollectOneRow(rows, scanAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return Admin{}, ErrNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("get admin: %w", err)
	}
	return found, nil
}

// GetByUsername returns one admin by tenant and username.
func (s *Service) GetByUsername(ctx context.Context, tenantID, username string) (Admin, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Admin{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+adminColumns+` FROM admins
		WHERE tenant_id = $1 AND username = $2
	`, tid, strings.TrimSpace(username))
	if err != nil {
		return Admin{}, fmt.Errorf("get admin by username: %w", err)
	}
	found, err := pgx.CollectOneRow(rows, scanAdmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return Admin{}, ErrNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("get admin by username: %w", err)
	}
	return found, nil
}

// List returns all admins in a tenant.
func (s *Service) List(ctx context.Context, tenantID string) ([]Admin, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+adminColumns+` FROM admins
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tid)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	admins, err := pgx.CollectRows(rows, scanAdmin)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// Authenticate verifies a username and password. Unknown user and wrong
// password both return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, tenantID, username, password string) (Admin, error) {
	found, err := s.GetByUsername(ctx, tenantID, username)
	if errors.Is(err, ErrNotFound) {
		return Admin{}, ErrInvalidCredentials
	}
	if err != nil {
		return Admin{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		return Admin{}, ErrInvalidCredentials
	}
	return found, nil
}

// EnsureBootstrap creates the initial super admin when the tenant has no
// admins yet. A failed bootstrap is fatal only when the table is empty.
func (s *Service) EnsureBootstrap(ctx context.Context, tenantID, username, password string) error {
	admins, err := s.List(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		return nil
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return fmt.Errorf("bootstrap admin credentials are not configured")
	}
	_, err = s.Create(ctx, tenantID, CreateInput{
		Username: username,
		Password: password,
		Role:     RoleSuperAdmin,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.Info("bootstrap super admin created", slog.String("username", username))
	return nil
}

// Assign links an admin to a conversation. Assigning twice is a no-op.
func (s *Service) Assign(ctx context.Context, conversationID, adminID, assignedBy string) (Assignment, error) {
	cid, err := db.ParseUUID(conversationID)
	if err != nil {
		return Assignment{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	aid, err := db.ParseUUID(adminID)
	if err != nil {
		return Assignment{}, fmt.Errorf("invalid admin id: %w", err)
	}
	by, err := db.ParseUUID(assignedBy)
	if err != nil {
		return Assignment{}, fmt.Errorf("invalid assigning admin id: %w", err)
	}
	var (
		id         pgtype.UUID
		assignedAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx, `
		INSERT INTO assignments (conversation_id, admin_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, admin_id)
		DO UPDATE SET assigned_by = EXCLUDED.assigned_by
		RETURNING id, assigned_at
	`, cid, aid, by).Scan(&id, &assignedAt)
	if err != nil {
		return Assignment{}, fmt.Errorf("assign conversation: %w", err)
	}
	assignment := Assignment{
		ID:             db.UUIDToString(id),
		ConversationID: conversationID,
		AdminID:        adminID,
		AssignedBy:     assignedBy,
		AssignedAt:     assignedAt.Time,
	}
	s.logger.Info("conversation assigned",
		slog.String("conversation_id", conversationID),
		slog.String("admin_id", adminID))
	return assignment, nil
}

// IsAssigned reports whether an admin is assigned to a conversation.
func (s *Service) IsAssigned(ctx context.Context, conversationID, adminID string) (bool, error) {
	cid, err := db.ParseUUID(conversationID)
	if err != nil {
		return false, fmt.Errorf("invalid conversation id: %w", err)
	}
	aid, err := db.ParseUUID(adminID)
	if err != nil {
		return false, fmt.Errorf("invalid admin id: %w", err)
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE conversation_id = $1 AND admin_id = $2
		)
	`, cid, aid).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return exists, nil
}

// CanSee reports whether an admin may access a conversation: super admins
// see everything, others only what is assigned to them.
func (s *Service) CanSee(ctx context.Context, adminID, conversationID string) (bool, error) {
	found, err := s.Get(ctx, adminID)
	if err != nil {
		return false, err
	}
	if found.Role == RoleSuperAdmin {
		return true, nil
	}
	return s.IsAssigned(ctx, conversationID, adminID)
}

// Assignees returns the admin ids assigned to a conversation.
func (s *Service) Assignees(ctx context.Context, conversationID string) ([]string, error) {
	cid, err := db.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT admin_id FROM assignments WHERE conversation_id = $1
	`, cid)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list assignees: %w", err)
		}
		ids = append(ids, db.UUIDToString(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	return ids, nil
}

func scanAdmin(row pgx.CollectableRow) (Admin, error) {
	var (
		id        pgtype.UUID
		tenantID  pgtype.UUID
		role      string
		createdAt pgtype.Timestamptz
		found     Admin
	)
	err := row.Scan(&id, &tenantID, &found.Username, &found.PasswordHash, &role, &createdAt)
	if err != nil {
		return Admin{}, err
	}
	found.ID = db.UUIDToString(id)
	found.TenantID = db.UUIDToString(tenantID)
	found.Role = Role(role)
	found.CreatedAt = createdAt.Time
	return found, nil
}
