package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Beverage categories. The kiosk groups tiles by category.
const (
	CategoryDrink = "drink"
	CategoryFood  = "food"
)

type Beverage struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Name     string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Category string       `gorm:"type:text;not null;default:drink" json:"category"`
	Active   bool         `gorm:"not null;default:true" json:"active"`
	// SortOrder controls the kiosk tile order; lower comes first.
	SortOrder int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Beverage) TableName() string { return "beverages" }

// RolePrice is the price of one beverage for one role. A beverage without a
// price for a role is not offered to that role.
type RolePrice struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	RoleID     snowflake.ID `gorm:"not null;uniqueIndex:ux_role_prices,priority:1" json:"role_id"`
	BeverageID snowflake.ID `gorm:"not null;uniqueIndex:ux_role_prices,priority:2;index" json:"beverage_id"`
	PriceCents int64        `gorm:"not null" json:"price_cents"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RolePrice) TableName() string { return "role_prices" }

// DisplayItem is what the kiosk screen renders for one user: an active
// beverage plus the price of that user's role.
type DisplayItem struct {
	BeverageID snowflake.ID `json:"beverage_id"`
	Name       string       `json:"name"`
	Category   string       `json:"category"`
	PriceCents int64        `json:"price_cents"`
}
