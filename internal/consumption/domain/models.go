package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Consumption records one tap on the kiosk. Beverage name and price are
// copied at booking time so later price changes or beverage deletions never
// rewrite history. UserID and InvoiceID are nil for guest consumptions.
type Consumption struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID       *snowflake.ID `gorm:"index" json:"user_id,omitempty"`
	InvoiceID    *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	BeverageID   snowflake.ID  `gorm:"not null;index" json:"beverage_id"`
	BeverageName string        `gorm:"type:text;not null" json:"beverage_name"`
	PriceCents   int64         `gorm:"not null" json:"price_cents"`
	ConsumedAt   time.Time     `gorm:"not null;index" json:"consumed_at"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Consumption) TableName() string { return "consumptions" }

// UserReportRow is one user's line in the monthly report.
type UserReportRow struct {
	UserID     snowflake.ID `json:"user_id"`
	UserName   string       `json:"user_name"`
	Count      int64        `json:"count"`
	TotalCents int64        `json:"total_cents"`
}

// BeverageReportRow aggregates one beverage across the month, guests
// included.
type BeverageReportRow struct {
	BeverageName string `json:"beverage_name"`
	Count        int64  `json:"count"`
	TotalCents   int64  `json:"total_cents"`
}

// MonthlyReport is the admin overview for one period.
type MonthlyReport struct {
	Period     string              `json:"period"`
	Users      []UserReportRow     `json:"users"`
	Beverages  []BeverageReportRow `json:"beverages"`
	GuestCents int64               `json:"guest_cents"`
	GuestCount int64               `json:"guest_count"`
	TotalCents int64               `json:"total_cents"`
}
