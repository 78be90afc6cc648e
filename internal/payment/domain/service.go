package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreatePendingRequest struct {
	InvoiceID   *snowflake.ID
	UserID      *snowflake.ID
	PayerName   string
	AmountCents int64
	Method      string
}

// CashPaymentRequest records an over-the-counter payment, which is paid the
// moment it is created.
type CashPaymentRequest struct {
	InvoiceID   *snowflake.ID
	UserID      *snowflake.ID
	PayerName   string
	AmountCents int64
	// Method defaults to cash; card and revolut payments taken at the
	// counter go through here too.
	Method    string
	CreatedBy string
}

type MarkPaidRequest struct {
	PaymentID  snowflake.ID
	PaidAt     *time.Time
	RawPayload []byte
}

type Service interface {
	// CreatePending opens a payment awaiting provider confirmation.
	CreatePending(ctx context.Context, req CreatePendingRequest) (*Payment, error)

	// RecordCashPayment creates an immediately paid payment and posts it
	// to the cashbook in the same transaction.
	RecordCashPayment(ctx context.Context, req CashPaymentRequest) (*Payment, error)

	// MarkPaid transitions a pending payment to paid, posts it to the
	// cashbook and settles the linked invoice, all in one transaction.
	// Marking an already paid payment is a no-op returning the payment.
	MarkPaid(ctx context.Context, req MarkPaidRequest) (*Payment, error)

	// CancelPending cancels a pending payment. Paid payments cannot be
	// cancelled.
	CancelPending(ctx context.Context, id snowflake.ID) (*Payment, error)

	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	ListPending(ctx context.Context) ([]Payment, error)
	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)

	// ExpireStalePending expires pending payments older than maxAge and
	// returns how many were expired.
	ExpireStalePending(ctx context.Context, maxAge time.Duration) (int64, error)

	// PurgeCancelled deletes cancelled and expired payments older than
	// the retention window.
	PurgeCancelled(ctx context.Context, retention time.Duration) (int64, error)
}

var (
	ErrNotFound        = errors.New("payment_not_found")
	ErrInvalidAmount   = errors.New("invalid_payment_amount")
	ErrInvalidMethod   = errors.New("invalid_payment_method")
	ErrInvalidPayer    = errors.New("invalid_payer_name")
	ErrNotPending      = errors.New("payment_not_pending")
	ErrAlreadyResolved = errors.New("payment_already_resolved")
)
