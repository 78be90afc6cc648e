package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateBeverageRequest struct {
	Name string
	// Category defaults to drink when empty.
	Category  string
	SortOrder int
}

type UpdateBeverageRequest struct {
	ID        snowflake.ID
	Name      *string
	Category  *string
	Active    *bool
	SortOrder *int
}

type Service interface {
	CreateBeverage(ctx context.Context, req CreateBeverageRequest) (*Beverage, error)
	UpdateBeverage(ctx context.Context, req UpdateBeverageRequest) (*Beverage, error)
	// DeleteBeverage removes the beverage and its role prices. Recorded
	// consumptions keep their copied name and price.
	DeleteBeverage(ctx context.Context, id snowflake.ID) error
	GetBeverage(ctx context.Context, id snowflake.ID) (*Beverage, error)
	ListBeverages(ctx context.Context, activeOnly bool) ([]Beverage, error)

	// SetPrice upserts the price of a beverage for a role.
	SetPrice(ctx context.Context, roleID, beverageID snowflake.ID, priceCents int64) (*RolePrice, error)
	RemovePrice(ctx context.Context, roleID, beverageID snowflake.ID) error
	ListPrices(ctx context.Context, beverageID snowflake.ID) ([]RolePrice, error)

	// PriceFor returns the price of a beverage for a role, or
	// ErrNoPriceForRole when the role is not offered the beverage.
	PriceFor(ctx context.Context, roleID, beverageID snowflake.ID) (int64, error)

	// DisplayItems lists the active beverages priced for the role, in tile
	// order. Unpriced beverages are omitted.
	DisplayItems(ctx context.Context, roleID snowflake.ID) ([]DisplayItem, error)
}

var (
	ErrBeverageNotFound = errors.New("beverage_not_found")
	ErrBeverageExists   = errors.New("beverage_exists")
	ErrInvalidBeverage  = errors.New("invalid_beverage")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrNoPriceForRole   = errors.New("no_price_for_role")
)
