package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateUserRequest struct {
	FirstName string
	LastName  string
	ITSLID    *string
	RoleName  string
}

type UpdateUserRequest struct {
	ID        snowflake.ID
	FirstName *string
	LastName  *string
	ITSLID    *string
	RoleName  *string
	Active    *bool
}

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) (*User, error)
	// DeleteUser archives the user's PIN before removing the row, so a
	// later re-creation under the same identity restores it.
	DeleteUser(ctx context.Context, id snowflake.ID) error
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]User, error)

	// SetPin hashes and stores the PIN and mirrors it into the backup
	// table. An empty pin clears it.
	SetPin(ctx context.Context, id snowflake.ID, pin string) error
	// VerifyPin reports whether the PIN matches. A user without a PIN
	// never verifies.
	VerifyPin(ctx context.Context, id snowflake.ID, pin string) (bool, error)

	CreateRole(ctx context.Context, name string) (*Role, error)
	DeleteRole(ctx context.Context, id snowflake.ID) error
	ListRoles(ctx context.Context) ([]Role, error)

	// EnsureGuestRole seeds the reserved guest role and returns it.
	EnsureGuestRole(ctx context.Context) (*Role, error)
}

var (
	ErrUserNotFound     = errors.New("user_not_found")
	ErrRoleNotFound     = errors.New("role_not_found")
	ErrUserExists       = errors.New("user_exists")
	ErrRoleExists       = errors.New("role_exists")
	ErrRoleInUse        = errors.New("role_in_use")
	ErrGuestRoleDelete  = errors.New("guest_role_protected")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidPin       = errors.New("invalid_pin")
	ErrRoleNameReserved = errors.New("role_name_reserved")
)
