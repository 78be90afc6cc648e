package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:invoice_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Invoice{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &Service{
		db:    db,
		log:   zaptest.NewLogger(t),
		genID: node,
		clock: clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
	}
}

func TestEnsureForUserPeriod(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	userID := svc.genID.Generate()

	invoice, err := svc.EnsureForUserPeriod(ctx, nil, userID, "2026-03", "Max Mustermann")
	require.NoError(t, err)
	assert.Equal(t, "2026-03 Max Mustermann", invoice.Name)
	assert.Equal(t, domain.StatusOpen, invoice.Status)

	// Same user and month returns the existing invoice.
	again, err := svc.EnsureForUserPeriod(ctx, nil, userID, "2026-03", "Max Mustermann")
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, again.ID)

	// A new month gets its own invoice.
	next, err := svc.EnsureForUserPeriod(ctx, nil, userID, "2026-04", "Max Mustermann")
	require.NoError(t, err)
	assert.NotEqual(t, invoice.ID, next.ID)

	_, err = svc.EnsureForUserPeriod(ctx, nil, userID, "2026-13", "Max Mustermann")
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
	_, err = svc.EnsureForUserPeriod(ctx, nil, userID, "march", "Max Mustermann")
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestGetAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	anna := svc.genID.Generate()
	ben := svc.genID.Generate()

	_, err := svc.EnsureForUserPeriod(ctx, nil, anna, "2026-03", "Anna Arm")
	require.NoError(t, err)
	_, err = svc.EnsureForUserPeriod(ctx, nil, ben, "2026-03", "Ben Berg")
	require.NoError(t, err)
	_, err = svc.EnsureForUserPeriod(ctx, nil, anna, "2026-04", "Anna Arm")
	require.NoError(t, err)

	_, err = svc.Get(ctx, svc.genID.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	march, err := svc.ListByPeriod(ctx, "2026-03")
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "2026-03 Anna Arm", march[0].Name)
	assert.Equal(t, "2026-03 Ben Berg", march[1].Name)

	_, err = svc.ListByPeriod(ctx, "not-a-month")
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)

	annas, err := svc.ListByUser(ctx, anna)
	require.NoError(t, err)
	require.Len(t, annas, 2)
	// Newest period first.
	assert.Equal(t, "2026-04", annas[0].Period)
	assert.Equal(t, "2026-03", annas[1].Period)
}

func TestMarkPaidAndReopen(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	invoice, err := svc.EnsureForUserPeriod(ctx, nil, svc.genID.Generate(), "2026-03", "Max Mustermann")
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, nil, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// Marking an already paid invoice keeps the original paid_at.
	again, err := svc.MarkPaid(ctx, nil, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, paid.PaidAt, again.PaidAt)

	reopened, err := svc.Reopen(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, reopened.Status)
	assert.Nil(t, reopened.PaidAt)

	_, err = svc.MarkPaid(ctx, nil, svc.genID.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkPaidJoinsCallerTransaction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	invoice, err := svc.EnsureForUserPeriod(ctx, nil, svc.genID.Generate(), "2026-03", "Max Mustermann")
	require.NoError(t, err)

	// A tx-scoped mark-paid must not open its own transaction: that would
	// deadlock sqlite and break atomicity elsewhere.
	boom := errors.New("boom")
	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paid, err := svc.MarkPaid(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		require.Equal(t, domain.StatusPaid, paid.Status)
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The rollback unwound the status change.
	got, err := svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Nil(t, got.PaidAt)

	// Committed path sticks.
	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := svc.MarkPaid(ctx, tx, invoice.ID)
		return err
	})
	require.NoError(t, err)
	got, err = svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)
}
