package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func newTestService(t *testing.T) (*Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:cashbook_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Entry{}))

	holder, err := config.NewStaticCashbookConfigHolder(config.CashbookConfig{
		Companies:   []string{"Kiosk", "Pausenverkauf", "Kaffeemaschine"},
		AutoCompany: "Kaffeemaschine",
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	svc := &Service{
		db:     db,
		log:    zaptest.NewLogger(t),
		genID:  node,
		clock:  fake,
		holder: holder,
		locks:  make(map[string]*sync.Mutex),
	}
	return svc, fake, db
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func mustCreate(t *testing.T, svc *Service, company string, d int, desc string, income, expense int64) domain.Entry {
	t.Helper()
	entry, err := svc.CreateEntry(context.Background(), domain.CreateEntryRequest{
		Company:      company,
		EntryDate:    day(d),
		Description:  desc,
		IncomeCents:  income,
		ExpenseCents: expense,
	})
	require.NoError(t, err)
	return entry
}

// balances returns the BalanceCents of all entries in chronological order.
func balances(t *testing.T, svc *Service, company string) []int64 {
	t.Helper()
	entries, err := svc.ListEntries(context.Background(), company)
	require.NoError(t, err)
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.BalanceCents
	}
	return out
}

func TestNextReceiptNumber(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.NextReceiptNumber(ctx, "Kiosk")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mustCreate(t, svc, "Kiosk", 1, "Startkapital", 5000, 0)

	n, err = svc.NextReceiptNumber(ctx, "Kiosk")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Per-company sequence: the other account is untouched.
	n, err = svc.NextReceiptNumber(ctx, "Pausenverkauf")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNextReceiptNumberSkipsNoGaps(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Explicit high number; the sequence continues from the maximum,
	// leaving the gap unfilled.
	_, err := svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company:       "Kiosk",
		ReceiptNumber: 10,
		EntryDate:     day(1),
		Description:   "Beleg 10",
		IncomeCents:   100,
	})
	require.NoError(t, err)

	n, err := svc.NextReceiptNumber(ctx, "Kiosk")
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}

func TestCurrentBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.CurrentBalance(ctx, "Kiosk")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b)

	mustCreate(t, svc, "Kiosk", 1, "Einnahme", 1000, 0)
	mustCreate(t, svc, "Kiosk", 2, "Ausgabe", 0, 300)

	b, err = svc.CurrentBalance(ctx, "Kiosk")
	require.NoError(t, err)
	assert.Equal(t, int64(700), b)
}

func TestCreateEntryPrefixSums(t *testing.T) {
	svc, _, _ := newTestService(t)

	mustCreate(t, svc, "Kiosk", 1, "Verkauf", 1000, 0)
	mustCreate(t, svc, "Kiosk", 2, "Einkauf", 0, 400)
	mustCreate(t, svc, "Kiosk", 3, "Verkauf", 250, 0)

	assert.Equal(t, []int64{1000, 600, 850}, balances(t, svc, "Kiosk"))
}

func TestCreateEntryBackdated(t *testing.T) {
	svc, _, _ := newTestService(t)

	// A on day 1, C on day 3, then B backdated to day 2. Every balance
	// after B's slot shifts by B's delta.
	mustCreate(t, svc, "Kiosk", 1, "A", 1000, 0)
	mustCreate(t, svc, "Kiosk", 3, "C", 1500, 0)
	mustCreate(t, svc, "Kiosk", 2, "B", 1200, 0)

	entries, err := svc.ListEntries(context.Background(), "Kiosk")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "A", entries[0].Description)
	assert.Equal(t, "B", entries[1].Description)
	assert.Equal(t, "C", entries[2].Description)
	assert.Equal(t, []int64{1000, 2200, 3700}, balances(t, svc, "Kiosk"))
}

func TestCreateEntrySameDayTieBreak(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Same date: creation order (ascending id) decides. The order must be
	// stable across recalculations.
	mustCreate(t, svc, "Kiosk", 5, "erste", 100, 0)
	mustCreate(t, svc, "Kiosk", 5, "zweite", 0, 30)
	mustCreate(t, svc, "Kiosk", 5, "dritte", 50, 0)

	require.NoError(t, svc.RecalcAll(context.Background(), nil, "Kiosk"))

	entries, err := svc.ListEntries(context.Background(), "Kiosk")
	require.NoError(t, err)
	assert.Equal(t, "erste", entries[0].Description)
	assert.Equal(t, "zweite", entries[1].Description)
	assert.Equal(t, "dritte", entries[2].Description)
	assert.Equal(t, []int64{100, 70, 120}, balances(t, svc, "Kiosk"))
}

func TestCreateEntryValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company: "Fremdfirma", Description: "x", IncomeCents: 1,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownCompany)

	_, err = svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company: "Kiosk", Description: "   ", IncomeCents: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDescription)

	_, err = svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company: "Kiosk", Description: "x", IncomeCents: -1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company: "Kiosk", Description: "x", ExpenseCents: -5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCreateEntryReceiptConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kiosk", 1, "erste", 100, 0)

	_, err := svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company:       "Kiosk",
		ReceiptNumber: 1,
		EntryDate:     day(2),
		Description:   "Duplikat",
		IncomeCents:   50,
	})
	assert.ErrorIs(t, err, domain.ErrReceiptNumberTaken)

	// The same number is fine on another account.
	_, err = svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company:       "Pausenverkauf",
		ReceiptNumber: 1,
		EntryDate:     day(2),
		Description:   "ok",
		IncomeCents:   50,
	})
	assert.NoError(t, err)
}

func TestCreateEntryDefaultsDateToToday(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, domain.CreateEntryRequest{
		Company:     "Kiosk",
		Description: "heute",
		IncomeCents: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DateOnly(fake.Now()), entry.EntryDate)
}

func TestUpdateEntryAmountChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kiosk", 1, "A", 1000, 0)
	b := mustCreate(t, svc, "Kiosk", 2, "B", 500, 0)
	mustCreate(t, svc, "Kiosk", 3, "C", 0, 200)

	newIncome := int64(800)
	updated, err := svc.UpdateEntry(ctx, domain.UpdateEntryRequest{
		Company:     "Kiosk",
		ID:          b.ID,
		IncomeCents: &newIncome,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1800), updated.BalanceCents)
	assert.Equal(t, []int64{1000, 1800, 1600}, balances(t, svc, "Kiosk"))
}

func TestUpdateEntryDateChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "Kiosk", 1, "A", 1000, 0)
	mustCreate(t, svc, "Kiosk", 2, "B", 500, 0)
	mustCreate(t, svc, "Kiosk", 3, "C", 0, 200)

	// Move A from day 1 to day 5: it becomes the last entry and every
	// row between its old and new slot must be rebuilt.
	_, err := svc.UpdateEntry(ctx, domain.UpdateEntryRequest{
		Company:   "Kiosk",
		ID:        a.ID,
		EntryDate: day(5),
	})
	require.NoError(t, err)

	entries, err := svc.ListEntries(ctx, "Kiosk")
	require.NoError(t, err)
	assert.Equal(t, "B", entries[0].Description)
	assert.Equal(t, "C", entries[1].Description)
	assert.Equal(t, "A", entries[2].Description)
	assert.Equal(t, []int64{500, 300, 1300}, balances(t, svc, "Kiosk"))
}

func TestUpdateEntryPartialFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	entry := mustCreate(t, svc, "Kiosk", 1, "alt", 100, 0)

	memo := "Nachtrag"
	updated, err := svc.UpdateEntry(ctx, domain.UpdateEntryRequest{
		Company: "Kiosk",
		ID:      entry.ID,
		Memo:    &memo,
	})
	require.NoError(t, err)
	assert.Equal(t, "Nachtrag", updated.Memo)
	assert.Equal(t, "alt", updated.Description)
	assert.Equal(t, int64(100), updated.IncomeCents)
	assert.Equal(t, entry.EntryDate, updated.EntryDate)
}

func TestUpdateEntryNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpdateEntry(context.Background(), domain.UpdateEntryRequest{
		Company: "Kiosk",
		ID:      snowflake.ID(123456),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteEntryRecalculatesSuffix(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kiosk", 1, "A", 1000, 0)
	b := mustCreate(t, svc, "Kiosk", 2, "B", 500, 0)
	mustCreate(t, svc, "Kiosk", 3, "C", 0, 200)

	require.NoError(t, svc.DeleteEntry(ctx, "Kiosk", b.ID))

	// The deleted id no longer resolves, so the recalculation restarts
	// from the first entry and still closes the gap.
	assert.Equal(t, []int64{1000, 800}, balances(t, svc, "Kiosk"))
}

func TestDeleteEntryNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.DeleteEntry(context.Background(), "Kiosk", snowflake.ID(99))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecalcAllRepairsCorruptChain(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kiosk", 1, "A", 1000, 0)
	mustCreate(t, svc, "Kiosk", 2, "B", 0, 400)
	mustCreate(t, svc, "Kiosk", 3, "C", 250, 0)

	// Corrupt every stored balance behind the service's back.
	require.NoError(t, db.Model(&domain.Entry{}).
		Where("company = ?", "Kiosk").
		Update("balance_cents", int64(-999)).Error)

	require.NoError(t, svc.RecalcAll(ctx, nil, "Kiosk"))
	assert.Equal(t, []int64{1000, 600, 850}, balances(t, svc, "Kiosk"))

	// Idempotent: a second run changes nothing.
	require.NoError(t, svc.RecalcAll(ctx, nil, "Kiosk"))
	assert.Equal(t, []int64{1000, 600, 850}, balances(t, svc, "Kiosk"))
}

func TestRecalcFromEntryMatchesRecalcAll(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kiosk", 1, "A", 1000, 0)
	b := mustCreate(t, svc, "Kiosk", 2, "B", 500, 0)
	mustCreate(t, svc, "Kiosk", 3, "C", 0, 200)
	mustCreate(t, svc, "Kiosk", 4, "D", 300, 0)

	// Change B's amount directly, then recalculate only from B.
	require.NoError(t, db.Model(&domain.Entry{}).
		Where("id = ?", b.ID).
		Update("income_cents", int64(900)).Error)
	require.NoError(t, svc.RecalcFromEntry(ctx, nil, "Kiosk", b.ID))

	got := balances(t, svc, "Kiosk")

	require.NoError(t, svc.RecalcAll(ctx, nil, "Kiosk"))
	assert.Equal(t, balances(t, svc, "Kiosk"), got)
	assert.Equal(t, []int64{1000, 1900, 1700, 2000}, got)
}

func TestRecalcFromEntryUnknownIDFallsBack(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kiosk", 1, "A", 100, 0)
	mustCreate(t, svc, "Kiosk", 2, "B", 200, 0)

	require.NoError(t, db.Model(&domain.Entry{}).
		Where("company = ?", "Kiosk").
		Update("balance_cents", int64(0)).Error)

	require.NoError(t, svc.RecalcFromEntry(ctx, nil, "Kiosk", snowflake.ID(424242)))
	assert.Equal(t, []int64{100, 300}, balances(t, svc, "Kiosk"))
}

func TestRecalcCompanyIsolation(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kiosk", 1, "A", 100, 0)
	mustCreate(t, svc, "Pausenverkauf", 1, "P", 777, 0)

	require.NoError(t, db.Model(&domain.Entry{}).
		Where("company = ?", "Pausenverkauf").
		Update("balance_cents", int64(-1)).Error)

	require.NoError(t, svc.RecalcAll(ctx, nil, "Kiosk"))

	// The other account's corruption is untouched by Kiosk's rebuild.
	assert.Equal(t, []int64{-1}, balances(t, svc, "Pausenverkauf"))
}

func TestPostPaymentGuards(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.PostPayment(ctx, nil, domain.PaymentPosting{
		PaymentID: snowflake.ID(1), AmountCents: 500, Status: "pending", Method: "paypal",
	})
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = svc.PostPayment(ctx, nil, domain.PaymentPosting{
		PaymentID: snowflake.ID(2), AmountCents: 0, Status: domain.PaymentStatusPaid, Method: "cash",
	})
	require.NoError(t, err)
	assert.Nil(t, entry)

	entries, err := svc.ListEntries(ctx, "Kaffeemaschine")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPostPayment(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	paymentID := svc.genID.Generate()
	entry, err := svc.PostPayment(ctx, nil, domain.PaymentPosting{
		PaymentID:   paymentID,
		AmountCents: 1250,
		Status:      domain.PaymentStatusPaid,
		Method:      "paypal",
		PayerName:   "Max Mustermann",
	})
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, "Kaffeemaschine", entry.Company)
	assert.Equal(t, 1, entry.ReceiptNumber)
	assert.Equal(t, fmt.Sprintf("payment_id:%d", paymentID), entry.Memo)
	assert.Equal(t, "PayPal-Zahlung Max Mustermann", entry.Description)
	assert.Equal(t, int64(1250), entry.IncomeCents)
	assert.Equal(t, int64(0), entry.ExpenseCents)
	assert.Equal(t, int64(1250), entry.BalanceCents)
	assert.Equal(t, "System", entry.CreatedBy)
	assert.Equal(t, domain.DateOnly(fake.Now()), entry.EntryDate)
}

func TestPostPaymentMethodLabels(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]string{
		"cash":       "Bar-Zahlung Lena",
		"mypos_card": "Karte-Zahlung Lena",
		"revolut":    "Revolut-Zahlung Lena",
	}
	for method, want := range cases {
		entry, err := svc.PostPayment(ctx, nil, domain.PaymentPosting{
			PaymentID:   svc.genID.Generate(),
			AmountCents: 100,
			Status:      domain.PaymentStatusPaid,
			Method:      method,
			PayerName:   "Lena",
		})
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, want, entry.Description)
	}
}

func TestPostPaymentIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	posting := domain.PaymentPosting{
		PaymentID:   svc.genID.Generate(),
		AmountCents: 300,
		Status:      domain.PaymentStatusPaid,
		Method:      "cash",
		PayerName:   "Kim",
	}

	first, err := svc.PostPayment(ctx, nil, posting)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.PostPayment(ctx, nil, posting)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	entries, err := svc.ListEntries(ctx, "Kaffeemaschine")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPostPaymentBackdated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, "Kaffeemaschine", 1, "A", 1000, 0)
	mustCreate(t, svc, "Kaffeemaschine", 3, "C", 500, 0)

	paidAt := day(2).Add(14 * time.Hour)
	entry, err := svc.PostPayment(ctx, nil, domain.PaymentPosting{
		PaymentID:   svc.genID.Generate(),
		AmountCents: 200,
		Status:      domain.PaymentStatusPaid,
		Method:      "paypal",
		PaidAt:      &paidAt,
		PayerName:   "Jo",
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, day(2), entry.EntryDate)
	assert.Equal(t, int64(1200), entry.BalanceCents)

	// C sits after the posting and absorbs its delta.
	assert.Equal(t, []int64{1000, 1200, 1700}, balances(t, svc, "Kaffeemaschine"))
}

func TestPostPaymentExplicitCompany(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.PostPayment(ctx, nil, domain.PaymentPosting{
		PaymentID:   svc.genID.Generate(),
		AmountCents: 150,
		Status:      domain.PaymentStatusPaid,
		Method:      "cash",
		PayerName:   "Alex",
		Company:     "Kiosk",
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Kiosk", entry.Company)
}

func TestPostPaymentInsideTransaction(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	// Rolling back the caller's transaction must take the posting with it.
	err := db.Transaction(func(tx *gorm.DB) error {
		entry, err := svc.PostPayment(ctx, tx, domain.PaymentPosting{
			PaymentID:   svc.genID.Generate(),
			AmountCents: 400,
			Status:      domain.PaymentStatusPaid,
			Method:      "cash",
			PayerName:   "Robin",
		})
		require.NoError(t, err)
		require.NotNil(t, entry)
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	entries, err := svc.ListEntries(ctx, "Kaffeemaschine")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentCreatesStayConsistent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.CreateEntry(ctx, domain.CreateEntryRequest{
				Company:     "Kiosk",
				EntryDate:   day(1 + n%3),
				Description: fmt.Sprintf("Verkauf %d", n),
				IncomeCents: 100,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := svc.ListEntries(ctx, "Kiosk")
	require.NoError(t, err)
	require.Len(t, entries, workers)

	var running int64
	seen := make(map[int]bool)
	for _, e := range entries {
		running += e.IncomeCents - e.ExpenseCents
		assert.Equal(t, running, e.BalanceCents)
		assert.False(t, seen[e.ReceiptNumber], "duplicate receipt number %d", e.ReceiptNumber)
		seen[e.ReceiptNumber] = true
	}
	assert.Equal(t, int64(workers*100), running)
}
