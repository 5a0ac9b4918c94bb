// Package admin manages console operator accounts, their roles, and the
// conversation assignments that scope what each operator can see.
package admin

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no matching admin exists.
	ErrNotFound = errors.New("admin not found")
	// ErrInvalidCredentials is returned on a failed login. It carries no
	// detail about which part failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden is returned when an operator lacks access to a resource.
	ErrForbidden = errors.New("forbidden")
)

// Role determines an admin's visibility scope.
type Role string

const (
	// RoleSuperAdmin sees every conversation and manages other admins.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleUser sees only conversations assigned to them.
	RoleUser Role = "USER"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleUser
}

// Admin is one console operator account.
type Admin struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	// PasswordHash never leaves the server.
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Assignment links an admin to a conversation they may work.
type Assignment struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	AdminID        string    `json:"admin_id"`
	AssignedBy     string    `json:"assigned_by"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// CreateInput is the payload for creating an admin account.
type CreateInput struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=8"`
	Role     Role   `json:"role" validate:"required"`
}
