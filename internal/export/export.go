package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	consumptiondomain "github.com/schuelerfirma/kiosk/internal/consumption/domain"
	"github.com/xuri/excelize/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Cashbook     cashbookdomain.Service
	Consumptions consumptiondomain.Service
}

// Service renders cashbook and report data into downloadable files.
type Service struct {
	log          *zap.Logger
	cashbook     cashbookdomain.Service
	consumptions consumptiondomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		log:          p.Log.Named("export.service"),
		cashbook:     p.Cashbook,
		consumptions: p.Consumptions,
	}
}

// euros renders cents as a German decimal amount.
func euros(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d", sign, cents/100, cents%100)
}

var cashbookHeader = []string{
	"Belegnummer", "Datum", "Beschreibung", "Bemerkung",
	"Einnahme (EUR)", "Ausgabe (EUR)", "Kassenstand (EUR)",
}

func cashbookRow(e cashbookdomain.Entry) []string {
	return []string{
		fmt.Sprintf("%d", e.ReceiptNumber),
		e.EntryDate.Format("02.01.2006"),
		e.Description,
		e.Memo,
		euros(e.IncomeCents),
		euros(e.ExpenseCents),
		euros(e.BalanceCents),
	}
}

// CashbookCSV renders all entries of a company in chronological order.
func (s *Service) CashbookCSV(ctx context.Context, company string) ([]byte, error) {
	entries, err := s.cashbook.ListEntries(ctx, company)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write(cashbookHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.Write(cashbookRow(e)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CashbookXLSX renders the cashbook as a spreadsheet with a header row and
// a closing balance line.
func (s *Service) CashbookXLSX(ctx context.Context, company string) ([]byte, error) {
	entries, err := s.cashbook.ListEntries(ctx, company)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Kassenbuch"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range cashbookHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}

	for i, e := range entries {
		row := cashbookRow(e)
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	closing := int64(0)
	if len(entries) > 0 {
		closing = entries[len(entries)-1].BalanceCents
	}
	summaryRow := len(entries) + 3
	cell, err := excelize.CoordinatesToCellName(1, summaryRow)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, cell, fmt.Sprintf("Kassenstand %s: %s EUR", company, euros(closing))); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MonthlyReportCSV renders the per-user and per-beverage aggregation for a
// period.
func (s *Service) MonthlyReportCSV(ctx context.Context, period string) ([]byte, error) {
	report, err := s.consumptions.Report(ctx, period)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'

	rows := [][]string{
		{"Monatsabrechnung", report.Period},
		{},
		{"Name", "Anzahl", "Summe (EUR)"},
	}
	for _, u := range report.Users {
		rows = append(rows, []string{u.UserName, fmt.Sprintf("%d", u.Count), euros(u.TotalCents)})
	}
	if report.GuestCount > 0 {
		rows = append(rows, []string{"Gäste", fmt.Sprintf("%d", report.GuestCount), euros(report.GuestCents)})
	}
	rows = append(rows,
		[]string{},
		[]string{"Getränk", "Anzahl", "Summe (EUR)"},
	)
	for _, b := range report.Beverages {
		rows = append(rows, []string{b.BeverageName, fmt.Sprintf("%d", b.Count), euros(b.TotalCents)})
	}
	rows = append(rows,
		[]string{},
		[]string{"Gesamt", "", euros(report.TotalCents)},
	)

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MonthlyReportPDF renders the monthly report as a printable sheet.
func (s *Service) MonthlyReportPDF(ctx context.Context, period string) ([]byte, error) {
	report, err := s.consumptions.Report(ctx, period)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Monatsabrechnung "+report.Period, false)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr("Monatsabrechnung "+report.Period))
	pdf.Ln(14)

	writeTable := func(title string, header [3]string, rows [][3]string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, tr(title))
		pdf.Ln(9)

		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(90, 7, tr(header[0]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, tr(header[1]), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, tr(header[2]), "1", 1, "R", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		for _, row := range rows {
			pdf.CellFormat(90, 7, tr(row[0]), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 7, tr(row[1]), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 7, tr(row[2]), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(6)
	}

	userRows := make([][3]string, 0, len(report.Users)+1)
	for _, u := range report.Users {
		userRows = append(userRows, [3]string{u.UserName, fmt.Sprintf("%d", u.Count), euros(u.TotalCents)})
	}
	if report.GuestCount > 0 {
		userRows = append(userRows, [3]string{"Gäste", fmt.Sprintf("%d", report.GuestCount), euros(report.GuestCents)})
	}
	writeTable("Nutzer", [3]string{"Name", "Anzahl", "Summe (EUR)"}, userRows)

	beverageRows := make([][3]string, 0, len(report.Beverages))
	for _, b := range report.Beverages {
		beverageRows = append(beverageRows, [3]string{b.BeverageName, fmt.Sprintf("%d", b.Count), euros(b.TotalCents)})
	}
	writeTable("Getränke", [3]string{"Getränk", "Anzahl", "Summe (EUR)"}, beverageRows)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Gesamtumsatz: %s EUR", euros(report.TotalCents))))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type for a given export format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

var Module = fx.Module("export",
	fx.Provide(NewService),
)
