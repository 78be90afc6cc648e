package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateEntryRequest struct {
	Company string
	// ReceiptNumber 0 means auto-assign the next sequential number.
	// An explicit number is validated for per-company uniqueness.
	ReceiptNumber int
	EntryDate     time.Time
	Memo          string
	Description   string
	IncomeCents   int64
	ExpenseCents  int64
	CreatedBy     string
}

type UpdateEntryRequest struct {
	Company string
	ID      snowflake.ID
	// Zero EntryDate leaves the date unchanged; nil pointers leave the
	// corresponding field unchanged.
	EntryDate    time.Time
	Memo         *string
	Description  *string
	IncomeCents  *int64
	ExpenseCents *int64
}

// Service is the balance recalculation engine plus the payment poster.
//
// RecalcAll and RecalcFromEntry accept the enclosing transaction so several
// recalculations can be batched into one commit; passing a nil tx runs the
// operation in its own transaction. The CRUD operations manage their own
// transaction and always leave the balance chain consistent.
type Service interface {
	// NextReceiptNumber returns 1 for an empty company, otherwise the
	// highest receipt number plus one.
	NextReceiptNumber(ctx context.Context, company string) (int, error)

	// CurrentBalance returns the balance of the chronologically last entry,
	// or 0 when the company has no entries. It trusts the recalculated
	// field and performs a single lookup.
	CurrentBalance(ctx context.Context, company string) (int64, error)

	// ListEntries returns all entries in chronological order.
	ListEntries(ctx context.Context, company string) ([]Entry, error)

	CreateEntry(ctx context.Context, req CreateEntryRequest) (Entry, error)
	UpdateEntry(ctx context.Context, req UpdateEntryRequest) (Entry, error)
	DeleteEntry(ctx context.Context, company string, id snowflake.ID) error

	// RecalcAll rebuilds every balance of the company from zero. Idempotent
	// and independent of prior balance values.
	RecalcAll(ctx context.Context, tx *gorm.DB, company string) error

	// RecalcFromEntry recomputes balances from the given entry to the end of
	// the chronological order. An id that no longer exists is not an error:
	// the recalculation conservatively restarts from the first entry.
	RecalcFromEntry(ctx context.Context, tx *gorm.DB, company string, id snowflake.ID) error

	// PostPayment converts a paid payment into exactly one entry, keyed by a
	// payment_id marker in the memo field. Unpaid or non-positive payments
	// return (nil, nil); an already posted payment returns the existing
	// entry unchanged.
	PostPayment(ctx context.Context, tx *gorm.DB, posting PaymentPosting) (*Entry, error)
}

var (
	ErrUnknownCompany     = errors.New("unknown_company")
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidEntryDate   = errors.New("invalid_entry_date")
	ErrReceiptNumberTaken = errors.New("receipt_number_taken")
	ErrNotFound           = errors.New("entry_not_found")
)
