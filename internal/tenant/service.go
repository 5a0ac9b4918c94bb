// Package tenant manages the workspace record every other entity hangs off.
// Deployments are single-tenant today; the column keeps the data model ready
// for more.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/db"
)

// Tenant is one workspace.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Service manages tenants.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a tenant service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "tenant")),
	}
}

// EnsureDefault returns the tenant with the given name, creating it on first
// boot. Safe to call concurrently: the unique name constraint resolves races.
func (s *Service) EnsureDefault(ctx context.Context, name string) (Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, fmt.Errorf("tenant name is required")
	}
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, created_at
	`, name).Scan(&id, &createdAt)
	if err != nil {
		return Tenant{}, fmt.Errorf("ensure tenant: %w", err)
	}
	tenant := Tenant{
		ID:        db.UUIDToString(id),
		Name:      name,
		CreatedAt: createdAt.Time,
	}
	s.logger.Info("tenant ready", slog.String("tenant_id", tenant.ID), slog.String("name", name))
	return tenant, nil
}

// Get returns one tenant by id.
func (s *Service) Get(ctx context.Context, tenantID string) (Tenant, error) {
	id, err := db.ParseUUID(tenantID)
	if err != nil {
		return Tenant{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	var (
		name      string
		createdAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx, `
		SELECT name, created_at FROM tenants WHERE id = $1
	`, id).Scan(&name, &createdAt)
	if err != nil {
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return Tenant{ID: tenantID, Name: name, CreatedAt: createdAt.Time}, nil
}
