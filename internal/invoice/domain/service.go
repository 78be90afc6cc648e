package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// EnsureForUserPeriod returns the invoice for the user and period,
	// creating it if needed. displayName seeds the invoice name on first
	// creation ("<period> <display name>"). A nil tx uses the service's
	// own connection.
	EnsureForUserPeriod(ctx context.Context, tx *gorm.DB, userID snowflake.ID, period, displayName string) (*Invoice, error)

	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListByPeriod(ctx context.Context, period string) ([]Invoice, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]Invoice, error)

	// MarkPaid sets the status to paid. Marking an already paid invoice
	// is a no-op. A nil tx uses the service's own connection.
	MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Invoice, error)
	Reopen(ctx context.Context, id snowflake.ID) (*Invoice, error)
}

var (
	ErrNotFound      = errors.New("invoice_not_found")
	ErrInvalidPeriod = errors.New("invalid_period")
)
