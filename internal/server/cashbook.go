package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/schuelerfirma/kiosk/internal/audit/domain"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	"github.com/schuelerfirma/kiosk/internal/export"
)

const entryDateLayout = "2006-01-02"

func parseEntryDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(entryDateLayout, raw)
	if err != nil {
		return time.Time{}, cashbookdomain.ErrInvalidEntryDate
	}
	return d, nil
}

func (s *Server) ListCompanies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"companies": s.holder.Get().Companies})
}

func (s *Server) ListCashbookEntries(c *gin.Context) {
	company := c.Param("company")
	entries, err := s.cashbookSvc.ListEntries(c.Request.Context(), company)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) CashbookBalance(c *gin.Context) {
	company := c.Param("company")
	balance, err := s.cashbookSvc.CurrentBalance(c.Request.Context(), company)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": company, "balance_cents": balance})
}

func (s *Server) NextReceiptNumber(c *gin.Context) {
	company := c.Param("company")
	next, err := s.cashbookSvc.NextReceiptNumber(c.Request.Context(), company)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": company, "next_receipt_number": next})
}

func (s *Server) CreateCashbookEntry(c *gin.Context) {
	company := c.Param("company")

	var req struct {
		ReceiptNumber int    `json:"receipt_number"`
		EntryDate     string `json:"entry_date"`
		Memo          string `json:"memo"`
		Description   string `json:"description"`
		IncomeCents   int64  `json:"income_cents"`
		ExpenseCents  int64  `json:"expense_cents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entryDate, err := parseEntryDate(req.EntryDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entry, err := s.cashbookSvc.CreateEntry(c.Request.Context(), cashbookdomain.CreateEntryRequest{
		Company:       company,
		ReceiptNumber: req.ReceiptNumber,
		EntryDate:     entryDate,
		Memo:          req.Memo,
		Description:   req.Description,
		IncomeCents:   req.IncomeCents,
		ExpenseCents:  req.ExpenseCents,
		CreatedBy:     s.sessionUsername(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) UpdateCashbookEntry(c *gin.Context) {
	company := c.Param("company")
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		EntryDate    string  `json:"entry_date"`
		Memo         *string `json:"memo"`
		Description  *string `json:"description"`
		IncomeCents  *int64  `json:"income_cents"`
		ExpenseCents *int64  `json:"expense_cents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entryDate, err := parseEntryDate(req.EntryDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entry, err := s.cashbookSvc.UpdateEntry(c.Request.Context(), cashbookdomain.UpdateEntryRequest{
		Company:      company,
		ID:           id,
		EntryDate:    entryDate,
		Memo:         req.Memo,
		Description:  req.Description,
		IncomeCents:  req.IncomeCents,
		ExpenseCents: req.ExpenseCents,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) DeleteCashbookEntry(c *gin.Context) {
	company := c.Param("company")
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := s.cashbookSvc.DeleteEntry(c.Request.Context(), company, id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
		Username:  s.sessionUsername(c),
		Action:    auditdomain.ActionDelete,
		Path:      c.FullPath(),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Success:   true,
	})
	c.Status(http.StatusNoContent)
}

// RepairCashbook rebuilds the whole balance chain of a company. The normal
// operations keep the chain consistent on their own; this is the recovery
// hammer for manual database edits.
func (s *Server) RepairCashbook(c *gin.Context) {
	company := c.Param("company")

	if err := s.cashbookSvc.RecalcAll(c.Request.Context(), nil, company); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
		Username:  s.sessionUsername(c),
		Action:    auditdomain.ActionRepair,
		Path:      c.FullPath(),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Success:   true,
	})
	c.JSON(http.StatusOK, gin.H{"company": company, "repaired": true})
}

func (s *Server) ExportCashbook(c *gin.Context) {
	company := c.Param("company")
	format := c.DefaultQuery("format", "csv")
	ctx := c.Request.Context()

	var (
		data []byte
		err  error
	)
	switch format {
	case "csv":
		data, err = s.exportSvc.CashbookCSV(ctx, company)
	case "xlsx":
		data, err = s.exportSvc.CashbookXLSX(ctx, company)
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		Username:  s.sessionUsername(c),
		Action:    auditdomain.ActionExport,
		Path:      c.FullPath(),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Success:   true,
	})

	filename := fmt.Sprintf("kassenbuch_%s.%s", company, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, export.ContentType(format), data)
}
