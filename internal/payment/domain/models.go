package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

const (
	MethodPayPal  = "paypal"
	MethodCash    = "cash"
	MethodCard    = "mypos_card"
	MethodRevolut = "revolut"
)

// Payment tracks one attempt to settle an invoice. PayPal payments start
// pending and are confirmed by the poller; cash payments are created paid by
// an admin. RawPayload keeps the provider's transaction record for audits.
type Payment struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	InvoiceID   *snowflake.ID  `gorm:"index" json:"invoice_id,omitempty"`
	UserID      *snowflake.ID  `gorm:"index" json:"user_id,omitempty"`
	PayerName   string         `gorm:"type:text;not null" json:"payer_name"`
	AmountCents int64          `gorm:"not null" json:"amount_cents"`
	Method      string         `gorm:"type:text;not null" json:"method"`
	Status      string         `gorm:"type:text;not null;index" json:"status"`
	RawPayload  datatypes.JSON `gorm:"type:jsonb" json:"raw_payload,omitempty"`
	PaidAt      *time.Time     `json:"paid_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// ReferenceCode is what a payer puts into the PayPal note (or what the
// invoice id field carries) so the poller can match the transaction.
func (p *Payment) ReferenceCode() string {
	return "payment_" + p.ID.String()
}
