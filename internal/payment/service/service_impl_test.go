package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	cashbookservice "github.com/schuelerfirma/kiosk/internal/cashbook/service"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	invoiceservice "github.com/schuelerfirma/kiosk/internal/invoice/service"
	"github.com/schuelerfirma/kiosk/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

type fixture struct {
	svc      domain.Service
	cashbook cashbookdomain.Service
	invoices invoicedomain.Service
	clock    *clock.FakeClock
	db       *gorm.DB
	genID    *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:payment_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&cashbookdomain.Entry{}, &invoicedomain.Invoice{}, &domain.Payment{},
	))

	holder, err := config.NewStaticCashbookConfigHolder(config.CashbookConfig{
		Companies:   []string{"Kiosk", "Kaffeemaschine"},
		AutoCompany: "Kaffeemaschine",
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	cashbook := cashbookservice.NewService(cashbookservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Holder: holder,
	})
	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
	})
	svc := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Cashbook: cashbook, Invoices: invoices,
	})

	return &fixture{
		svc: svc, cashbook: cashbook, invoices: invoices,
		clock: fake, db: db, genID: node,
	}
}

func TestCreatePendingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "", AmountCents: 100, Method: domain.MethodPayPal,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPayer)

	_, err = f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Max", AmountCents: 0, Method: domain.MethodPayPal,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Max", AmountCents: 100, Method: "bitcoin",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMethod)

	payment, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Max Mustermann", AmountCents: 500, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payment.Status)
	assert.Equal(t, "payment_"+payment.ID.String(), payment.ReferenceCode())
}

func TestMarkPaidPostsToCashbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoice, err := f.invoices.EnsureForUserPeriod(ctx, nil, f.genID.Generate(), "2026-03", "Max Mustermann")
	require.NoError(t, err)

	invoiceID := invoice.ID
	payment, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		InvoiceID: &invoiceID, PayerName: "Max Mustermann",
		AmountCents: 1250, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)

	paid, err := f.svc.MarkPaid(ctx, domain.MarkPaidRequest{
		PaymentID:  payment.ID,
		RawPayload: []byte(`{"transaction_id":"TX1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// Exactly one cashbook entry in the auto-posting account.
	entries, err := f.cashbook.ListEntries(ctx, "Kaffeemaschine")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fmt.Sprintf("payment_id:%d", payment.ID), entries[0].Memo)
	assert.Equal(t, "PayPal-Zahlung Max Mustermann", entries[0].Description)
	assert.Equal(t, int64(1250), entries[0].IncomeCents)

	// The invoice is settled with it.
	settled, err := f.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, settled.Status)

	// Marking again is a no-op: no second entry.
	_, err = f.svc.MarkPaid(ctx, domain.MarkPaidRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	entries, err = f.cashbook.ListEntries(ctx, "Kaffeemaschine")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMarkPaidResolvedPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Kim", AmountCents: 100, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)

	_, err = f.svc.CancelPending(ctx, payment.ID)
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, domain.MarkPaidRequest{PaymentID: payment.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// Nothing reached the cashbook.
	entries, err := f.cashbook.ListEntries(ctx, "Kaffeemaschine")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordCashPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.RecordCashPayment(ctx, domain.CashPaymentRequest{
		PayerName: "Lena Schmidt", AmountCents: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, payment.Status)
	assert.Equal(t, domain.MethodCash, payment.Method)

	entries, err := f.cashbook.ListEntries(ctx, "Kaffeemaschine")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Bar-Zahlung Lena Schmidt", entries[0].Description)

	// PayPal is not a counter method.
	_, err = f.svc.RecordCashPayment(ctx, domain.CashPaymentRequest{
		PayerName: "X", AmountCents: 100, Method: domain.MethodPayPal,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMethod)
}

func TestCancelPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Jo", AmountCents: 200, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelPending(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.CancelPending(ctx, payment.ID)
	assert.ErrorIs(t, err, domain.ErrNotPending)

	paid, err := f.svc.RecordCashPayment(ctx, domain.CashPaymentRequest{
		PayerName: "Jo", AmountCents: 200,
	})
	require.NoError(t, err)
	_, err = f.svc.CancelPending(ctx, paid.ID)
	assert.ErrorIs(t, err, domain.ErrNotPending)
}

func TestExpireStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Alt", AmountCents: 100, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)

	f.clock.Advance(73 * time.Hour)

	fresh, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Neu", AmountCents: 100, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)

	count, err := f.svc.ExpireStalePending(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)

	got, err = f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestPurgeCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Weg", AmountCents: 100, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)
	_, err = f.svc.CancelPending(ctx, payment.ID)
	require.NoError(t, err)

	// Still inside retention.
	count, err := f.svc.PurgeCancelled(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	f.clock.Advance(49 * time.Hour)
	count, err = f.svc.PurgeCancelled(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = f.svc.Get(ctx, payment.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurgeUsesResolutionTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, err := f.svc.CreatePending(ctx, domain.CreatePendingRequest{
		PayerName: "Alt", AmountCents: 100, Method: domain.MethodPayPal,
	})
	require.NoError(t, err)

	f.clock.Advance(73 * time.Hour)
	count, err := f.svc.ExpireStalePending(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// Retention counts from when the payment was resolved, not from
	// creation: the freshly expired row survives this sweep.
	count, err = f.svc.PurgeCancelled(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	f.clock.Advance(49 * time.Hour)
	count, err = f.svc.PurgeCancelled(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = f.svc.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
