package platformaccount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/db"
)

// Service manages platform accounts.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a platform account service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "platformaccount")),
	}
}

const accountColumns = `
	id, tenant_id, platform, name, external_id, access_token, secret,
	active, created_at, updated_at`

// Create registers credentials for a platform.
func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (Account, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Account{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.AccessToken) == "" {
		return Account{}, fmt.Errorf("name and access token are required")
	}
	rows, err := s.pool.Query(ctx, `
		INSERT INTO platform_accounts (tenant_id, platform, name, external_id, access_token, secret)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING`+accountColumns,
		tid, input.Platform.String(), strings.TrimSpace(input.Name),
		strings.TrimSpace(input.ExternalID), strings.TrimSpace(input.AccessToken),
		strings.TrimSpace(input.Secret))
	if err != nil {
		return Account{}, fmt.Errorf("create platform account: %w", err)
	}
	account, err := pgx.CollectOneRow(rows, scanAccount)
	if err != nil {
		return Account{}, fmt.Errorf("create platform account: %w", err)
	}
	s.logger.Info("platform account created",
		slog.String("account_id", account.ID),
		slog.String("platform", account.Platform.String()))
	return account, nil
}

// Get returns one account by id.
func (s *Service) Get(ctx context.Context, accountID string) (Account, error) {
	id, err := db.ParseUUID(accountID)
	if err != nil {
		return Account{}, fmt.Errorf("%w: invalid id", ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+accountColumns+`
		FROM platform_accounts WHERE id = $1
	`, id)
	if err != nil {
		return Account{}, fmt.Errorf("get platform account: %w", err)
	}
	account, err := pgx.CollectOneRow(rows, scanAccount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get platform account: %w", err)
	}
	return account, nil
}

// GetActive returns one account by id only when it is still active.
// Webhooks for deactivated accounts must be dropped, not processed.
func (s *Service) GetActive(ctx context.Context, accountID string) (Account, error) {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if !account.Active {
		return Account{}, fmt.Errorf("%w: account is deactivated", ErrNotFound)
	}
	return account, nil
}

// GetByExternalID returns the active account matching a platform-side id,
// e.g. a Facebook page id from a webhook entry.
func (s *Service) GetByExternalID(ctx context.Context, platform channel.Platform, externalID string) (Account, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Account{}, fmt.Errorf("%w: external id is required", ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+accountColumns+`
		FROM platform_accounts
		WHERE platform = $1 AND external_id = $2 AND active
		ORDER BY created_at
		LIMIT 1
	`, platform.String(), externalID)
	if err != nil {
		return Account{}, fmt.Errorf("get platform account by external id: %w", err)
	}
	account, err := pgx.CollectOneRow(rows, scanAccount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get platform account by external id: %w", err)
	}
	return account, nil
}

// List returns a tenant's accounts, optionally filtered by platform.
func (s *Service) List(ctx context.Context, tenantID string, platform channel.Platform) ([]Account, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	query := `
		SELECT` + accountColumns + `
		FROM platform_accounts
		WHERE tenant_id = $1`
	args := []any{tid}
	if platform != "" {
		query += ` AND platform = $2`
		args = append(args, platform.String())
	}
	query += ` ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list platform accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, scanAccount)
	if err != nil {
		return nil, fmt.Errorf("list platform accounts: %w", err)
	}
	return accounts, nil
}

// Deactivate marks an account inactive. Accounts are never deleted so that
// existing conversations keep a valid reference.
func (s *Service) Deactivate(ctx context.Context, accountID string) error {
	id, err := db.ParseUUID(accountID)
	if err != nil {
		return fmt.Errorf("%w: invalid id", ErrNotFound)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE platform_accounts SET active = false, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate platform account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("platform account deactivated", slog.String("account_id", accountID))
	return nil
}

func scanAccount(row pgx.CollectableRow) (Account, error) {
	var (
		id        pgtype.UUID
		tenantID  pgtype.UUID
		platform  string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		account   Account
	)
	err := row.Scan(&id, &tenantID, &platform, &account.Name, &account.ExternalID,
		&account.AccessToken, &account.Secret, &account.Active, &createdAt, &updatedAt)
	if err != nil {
		return Account{}, err
	}
	account.ID = db.UUIDToString(id)
	account.TenantID = db.UUIDToString(tenantID)
	account.Platform = channel.Platform(platform)
	account.CreatedAt = createdAt.Time
	account.UpdatedAt = updatedAt.Time
	return account, nil
}
