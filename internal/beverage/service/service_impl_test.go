package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/schuelerfirma/kiosk/internal/beverage/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:beverage_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Beverage{}, &domain.RolePrice{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &Service{
		db:    db,
		log:   zaptest.NewLogger(t),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
	}
}

func TestBeverageCRUD(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cola, err := svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Cola", SortOrder: 2})
	require.NoError(t, err)
	assert.True(t, cola.Active)
	assert.Equal(t, domain.CategoryDrink, cola.Category)

	_, err = svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Cola"})
	assert.ErrorIs(t, err, domain.ErrBeverageExists)

	_, err = svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidBeverage)

	brezel, err := svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Brezel", Category: "food", SortOrder: 9})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryFood, brezel.Category)

	_, err = svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Luft", Category: "gas"})
	assert.ErrorIs(t, err, domain.ErrInvalidBeverage)

	_, err = svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Apfelschorle", SortOrder: 1})
	require.NoError(t, err)

	all, err := svc.ListBeverages(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Apfelschorle", all[0].Name)

	inactive := false
	_, err = svc.UpdateBeverage(ctx, domain.UpdateBeverageRequest{ID: cola.ID, Active: &inactive})
	require.NoError(t, err)

	active, err := svc.ListBeverages(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Apfelschorle", active[0].Name)
}

func TestRolePrices(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cola, err := svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Cola"})
	require.NoError(t, err)

	roleStudent := svc.genID.Generate()
	roleTeacher := svc.genID.Generate()

	_, err = svc.SetPrice(ctx, roleStudent, cola.ID, 100)
	require.NoError(t, err)
	_, err = svc.SetPrice(ctx, roleTeacher, cola.ID, 150)
	require.NoError(t, err)

	p, err := svc.PriceFor(ctx, roleStudent, cola.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), p)

	// Upsert, not duplicate.
	_, err = svc.SetPrice(ctx, roleStudent, cola.ID, 120)
	require.NoError(t, err)

	prices, err := svc.ListPrices(ctx, cola.ID)
	require.NoError(t, err)
	assert.Len(t, prices, 2)

	p, err = svc.PriceFor(ctx, roleStudent, cola.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), p)

	_, err = svc.SetPrice(ctx, roleStudent, cola.ID, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = svc.SetPrice(ctx, roleStudent, svc.genID.Generate(), 100)
	assert.ErrorIs(t, err, domain.ErrBeverageNotFound)

	_, err = svc.PriceFor(ctx, svc.genID.Generate(), cola.ID)
	assert.ErrorIs(t, err, domain.ErrNoPriceForRole)
}

func TestDisplayItems(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cola, err := svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Cola", SortOrder: 2})
	require.NoError(t, err)
	schorle, err := svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Apfelschorle", SortOrder: 1})
	require.NoError(t, err)
	// Kaffee stays unpriced for this role.
	_, err = svc.CreateBeverage(ctx, domain.CreateBeverageRequest{Name: "Kaffee", SortOrder: 3})
	require.NoError(t, err)

	role := svc.genID.Generate()
	_, err = svc.SetPrice(ctx, role, cola.ID, 100)
	require.NoError(t, err)
	_, err = svc.SetPrice(ctx, role, schorle.ID, 80)
	require.NoError(t, err)

	items, err := svc.DisplayItems(ctx, role)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Apfelschorle", items[0].Name)
	assert.Equal(t, int64(80), items[0].PriceCents)
	assert.Equal(t, "Cola", items[1].Name)

	// Deactivated beverages disappear from the display.
	inactive := false
	_, err = svc.UpdateBeverage(ctx, domain.UpdateBeverageRequest{ID: cola.ID, Active: &inactive})
	require.NoError(t, err)

	items, err = svc.DisplayItems(ctx, role)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Apfelschorle", items[0].Name)

	// Deleting a beverage removes its prices too.
	require.NoError(t, svc.DeleteBeverage(ctx, schorle.ID))
	items, err = svc.DisplayItems(ctx, role)
	require.NoError(t, err)
	assert.Empty(t, items)
}
