package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	paymentdomain "github.com/schuelerfirma/kiosk/internal/payment/domain"
)

func (s *Server) ListInvoices(c *gin.Context) {
	ctx := c.Request.Context()

	if userParam := c.Query("user_id"); userParam != "" {
		userID, err := snowflake.ParseString(userParam)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		invoices, err := s.invoiceSvc.ListByUser(ctx, userID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoices": invoices})
		return
	}

	period := c.Query("period")
	if period == "" {
		period = invoicedomain.PeriodOf(s.clock.Now())
	}
	invoices, err := s.invoiceSvc.ListByPeriod(ctx, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// GetInvoice returns the invoice with its consumptions, payments and the
// open amount the admin screen shows.
func (s *Server) GetInvoice(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	inv, err := s.invoiceSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	consumptions, err := s.consumptionSvc.ListByInvoice(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	total, err := s.consumptionSvc.InvoiceTotal(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payments, err := s.paymentSvc.ListByInvoice(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice":      inv,
		"consumptions": consumptions,
		"payments":     payments,
		"total_cents":  total,
	})
}

func (s *Server) ReopenInvoice(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.Reopen(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) ListPendingPayments(c *gin.Context) {
	payments, err := s.paymentSvc.ListPending(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

type paymentRequest struct {
	InvoiceID   *snowflake.ID `json:"invoice_id"`
	UserID      *snowflake.ID `json:"user_id"`
	PayerName   string        `json:"payer_name"`
	AmountCents int64         `json:"amount_cents"`
	Method      string        `json:"method"`
}

// CreatePendingPayment opens a payment the payer settles externally; the
// response carries the reference code for the PayPal note field.
func (s *Server) CreatePendingPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payment, err := s.paymentSvc.CreatePending(c.Request.Context(), paymentdomain.CreatePendingRequest{
		InvoiceID:   req.InvoiceID,
		UserID:      req.UserID,
		PayerName:   req.PayerName,
		AmountCents: req.AmountCents,
		Method:      req.Method,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment":        payment,
		"reference_code": payment.ReferenceCode(),
	})
}

func (s *Server) RecordCashPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payment, err := s.paymentSvc.RecordCashPayment(c.Request.Context(), paymentdomain.CashPaymentRequest{
		InvoiceID:   req.InvoiceID,
		UserID:      req.UserID,
		PayerName:   req.PayerName,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		CreatedBy:   s.sessionUsername(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// MarkPaymentPaid confirms a pending payment by hand, for transfers that
// arrived outside any provider the poller can see.
func (s *Server) MarkPaymentPaid(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	payment, err := s.paymentSvc.MarkPaid(c.Request.Context(), paymentdomain.MarkPaidRequest{
		PaymentID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) CancelPayment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	payment, err := s.paymentSvc.CancelPending(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// RefreshPayments triggers one PayPal sweep outside the background schedule.
func (s *Server) RefreshPayments(c *gin.Context) {
	confirmed, err := s.refresher.RefreshPending(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmed": confirmed})
}
