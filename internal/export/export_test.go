package export

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	beveragedomain "github.com/schuelerfirma/kiosk/internal/beverage/domain"
	beverageservice "github.com/schuelerfirma/kiosk/internal/beverage/service"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	cashbookservice "github.com/schuelerfirma/kiosk/internal/cashbook/service"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	consumptiondomain "github.com/schuelerfirma/kiosk/internal/consumption/domain"
	consumptionservice "github.com/schuelerfirma/kiosk/internal/consumption/service"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	invoiceservice "github.com/schuelerfirma/kiosk/internal/invoice/service"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
	userservice "github.com/schuelerfirma/kiosk/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func newFixture(t *testing.T) (*Service, cashbookdomain.Service, consumptiondomain.Service, userdomain.Service, beveragedomain.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:export_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&cashbookdomain.Entry{},
		&userdomain.Role{}, &userdomain.User{}, &userdomain.PinBackup{},
		&beveragedomain.Beverage{}, &beveragedomain.RolePrice{},
		&invoicedomain.Invoice{}, &consumptiondomain.Consumption{},
	))

	holder, err := config.NewStaticCashbookConfigHolder(config.CashbookConfig{
		Companies:   []string{"Kiosk"},
		AutoCompany: "Kiosk",
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	cashbook := cashbookservice.NewService(cashbookservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Holder: holder,
	})
	users := userservice.NewService(userservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
	})
	beverages := beverageservice.NewService(beverageservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
	})
	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
	})
	consumptions := consumptionservice.NewService(consumptionservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Users: users, Beverages: beverages, Invoices: invoices,
	})

	svc := NewService(Params{
		Log: log, Cashbook: cashbook, Consumptions: consumptions,
	})
	return svc, cashbook, consumptions, users, beverages
}

func TestCashbookCSV(t *testing.T) {
	svc, cashbook, _, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := cashbook.CreateEntry(ctx, cashbookdomain.CreateEntryRequest{
		Company: "Kiosk", EntryDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "Startkapital", IncomeCents: 5000,
	})
	require.NoError(t, err)
	_, err = cashbook.CreateEntry(ctx, cashbookdomain.CreateEntryRequest{
		Company: "Kiosk", EntryDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Description: "Einkauf Becher", ExpenseCents: 1250,
	})
	require.NoError(t, err)

	data, err := svc.CashbookCSV(ctx, "Kiosk")
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "Belegnummer;Datum;Beschreibung")
	assert.Contains(t, out, "1;01.03.2026;Startkapital;;50,00;0,00;50,00")
	assert.Contains(t, out, "2;02.03.2026;Einkauf Becher;;0,00;12,50;37,50")
}

func TestCashbookXLSX(t *testing.T) {
	svc, cashbook, _, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := cashbook.CreateEntry(ctx, cashbookdomain.CreateEntryRequest{
		Company: "Kiosk", EntryDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "Startkapital", IncomeCents: 5000,
	})
	require.NoError(t, err)

	data, err := svc.CashbookXLSX(ctx, "Kiosk")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Kassenbuch")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, "Belegnummer", rows[0][0])
	assert.Equal(t, "Startkapital", rows[1][2])
}

func TestMonthlyReportExports(t *testing.T) {
	svc, _, consumptions, users, beverages := newFixture(t)
	ctx := context.Background()

	_, err := users.CreateRole(ctx, "Schueler")
	require.NoError(t, err)
	user, err := users.CreateUser(ctx, userdomain.CreateUserRequest{
		FirstName: "Max", LastName: "Mustermann", RoleName: "Schueler",
	})
	require.NoError(t, err)

	cola, err := beverages.CreateBeverage(ctx, beveragedomain.CreateBeverageRequest{Name: "Cola"})
	require.NoError(t, err)
	_, err = beverages.SetPrice(ctx, user.RoleID, cola.ID, 100)
	require.NoError(t, err)

	_, err = consumptions.Add(ctx, userdomain.RealUser(user.ID), cola.ID)
	require.NoError(t, err)
	_, err = consumptions.Add(ctx, userdomain.RealUser(user.ID), cola.ID)
	require.NoError(t, err)

	csvData, err := svc.MonthlyReportCSV(ctx, "2026-03")
	require.NoError(t, err)
	out := string(csvData)
	assert.Contains(t, out, "Monatsabrechnung;2026-03")
	assert.Contains(t, out, "Max Mustermann;2;2,00")
	assert.Contains(t, out, "Cola;2;2,00")
	assert.Contains(t, out, "Gesamt;;2,00")

	pdfData, err := svc.MonthlyReportPDF(ctx, "2026-03")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdfData, []byte("%PDF")))

	_, err = svc.MonthlyReportCSV(ctx, "kein-monat")
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidPeriod)
}
