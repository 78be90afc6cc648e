package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusOpen = "open"
	StatusPaid = "paid"
)

// Invoice collects one user's consumptions for one calendar month. Period is
// "YYYY-MM"; Name is the human-readable label shown in the admin list.
type Invoice struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_invoices_user_period,priority:1" json:"user_id"`
	Period    string       `gorm:"type:text;not null;uniqueIndex:ux_invoices_user_period,priority:2;index" json:"period"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Status    string       `gorm:"type:text;not null;default:'open'" json:"status"`
	PaidAt    *time.Time   `json:"paid_at,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// PeriodOf formats the month of t as an invoice period.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
