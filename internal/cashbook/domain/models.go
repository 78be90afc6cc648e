package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Entry is one cashbook posting (Kassenbuch row) for a company account.
// BalanceCents is a derived field: the cash on hand immediately after this
// entry when all entries of the company are applied in chronological order
// (entry_date asc, id asc). It is never authoritative input.
type Entry struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Company       string       `gorm:"type:text;not null;index:ix_cashbook_company_date,priority:1;uniqueIndex:ux_cashbook_company_receipt,priority:1" json:"company"`
	ReceiptNumber int          `gorm:"not null;uniqueIndex:ux_cashbook_company_receipt,priority:2" json:"receipt_number"`
	EntryDate     time.Time    `gorm:"type:date;not null;index:ix_cashbook_company_date,priority:2" json:"entry_date"`
	Memo          string       `gorm:"type:text" json:"memo,omitempty"`
	Description   string       `gorm:"type:text;not null" json:"description"`
	IncomeCents   int64        `gorm:"not null;default:0" json:"income_cents"`
	ExpenseCents  int64        `gorm:"not null;default:0" json:"expense_cents"`
	BalanceCents  int64        `gorm:"not null" json:"balance_cents"`
	CreatedBy     string       `gorm:"type:text" json:"created_by,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "cashbook_entries" }

// PaymentPosting is the payment-shaped input the poster consumes. It is a
// snapshot, not a live row, so the cashbook package has no dependency on the
// payment module.
type PaymentPosting struct {
	PaymentID   snowflake.ID
	AmountCents int64
	Status      string
	Method      string
	PaidAt      *time.Time
	PayerName   string
	// Company overrides the configured auto-posting account when set.
	Company string
}

// PaymentStatusPaid is the only payment status that produces a posting.
const PaymentStatusPaid = "paid"

// DateOnly truncates a timestamp to calendar-date precision in UTC.
// Every EntryDate stored by this package goes through it.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
