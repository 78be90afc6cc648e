package scheduler

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
	paymentdomain "github.com/schuelerfirma/kiosk/internal/payment/domain"
	paymentservice "github.com/schuelerfirma/kiosk/internal/payment/service"
	"github.com/schuelerfirma/kiosk/internal/paypal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func TestRunOnceExpiresAndPurges(t *testing.T) {
	dsn := fmt.Sprintf("file:scheduler_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&cashbookdomain.Entry{}, &invoicedomain.Invoice{}, &paymentdomain.Payment{},
	))

	holder, err := config.NewStaticCashbookConfigHolder(config.CashbookConfig{
		Companies:   []string{"Kaffeemaschine"},
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
	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Cashbook: cashbook, Invoices: invoices,
	})

	cfg := config.Config{PayPal: config.PayPalConfig{
		PollInterval:       15 * time.Second,
		PendingExpiration:  72 * time.Hour,
		CancelledRetention: 48 * time.Hour,
	}}

	// No credentials: the refresher skips the reporting API entirely.
	client := paypal.NewClient(config.PayPalConfig{}, log, fake)
	refresher := paypal.NewRefresher(paypal.RefresherParams{
		Cfg: cfg, Log: log, Clock: fake, Client: client, Payments: payments,
	})

	sched := New(Params{
		Cfg: cfg, Log: log, Clock: fake,
		Payments: payments, Refresher: refresher,
	})

	ctx := context.Background()

	stale, err := payments.CreatePending(ctx, paymentdomain.CreatePendingRequest{
		PayerName: "Alt", AmountCents: 100, Method: paymentdomain.MethodPayPal,
	})
	require.NoError(t, err)
	cancelled, err := payments.CreatePending(ctx, paymentdomain.CreatePendingRequest{
		PayerName: "Storniert", AmountCents: 100, Method: paymentdomain.MethodPayPal,
	})
	require.NoError(t, err)
	_, err = payments.CancelPending(ctx, cancelled.ID)
	require.NoError(t, err)

	// Inside both windows: nothing happens.
	sched.RunOnce(ctx)
	got, err := payments.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPending, got.Status)

	// Past the pending expiration the stale payment expires; the cancelled
	// one is past retention and disappears.
	fake.Advance(73 * time.Hour)
	sched.RunOnce(ctx)

	got, err = payments.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusExpired, got.Status)

	_, err = payments.Get(ctx, cancelled.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
}
