package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
)

type Service interface {
	// Add books one consumption. For a registered user it looks up the
	// role price and attaches the consumption to the user's invoice for
	// the current month, creating it on first use. Guests are priced via
	// the guest role and carry no invoice.
	Add(ctx context.Context, who userdomain.Ref, beverageID snowflake.ID) (*Consumption, error)

	// Undo removes a consumption booked within the grace window, for
	// mistaps at the kiosk.
	Undo(ctx context.Context, id snowflake.ID) error

	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]Consumption, error)
	ListByUserPeriod(ctx context.Context, userID snowflake.ID, period string) ([]Consumption, error)

	// Report aggregates a month across users and beverages.
	Report(ctx context.Context, period string) (*MonthlyReport, error)

	// InvoiceTotal sums the consumptions attached to an invoice.
	InvoiceTotal(ctx context.Context, invoiceID snowflake.ID) (int64, error)
}

// UndoGraceWindow is how long a booking can be taken back.
const UndoGraceWindow = 5 * time.Minute

var (
	ErrNotFound       = errors.New("consumption_not_found")
	ErrUndoExpired    = errors.New("undo_window_expired")
	ErrInvalidPeriod  = errors.New("invalid_period")
	ErrUserInactive   = errors.New("user_inactive")
	ErrGuestsDisabled = errors.New("guest_role_missing")
)
