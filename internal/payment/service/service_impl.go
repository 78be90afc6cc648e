package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	"github.com/schuelerfirma/kiosk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validMethods = map[string]bool{
	domain.MethodPayPal:  true,
	domain.MethodCash:    true,
	domain.MethodCard:    true,
	domain.MethodRevolut: true,
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cashbook cashbookdomain.Service
	Invoices invoicedomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cashbook cashbookdomain.Service
	invoices invoicedomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cashbook: p.Cashbook,
		invoices: p.Invoices,
	}
}

func validateNew(payerName, method string, amountCents int64) error {
	if strings.TrimSpace(payerName) == "" {
		return domain.ErrInvalidPayer
	}
	if amountCents <= 0 {
		return domain.ErrInvalidAmount
	}
	if !validMethods[method] {
		return domain.ErrInvalidMethod
	}
	return nil
}

func (s *Service) CreatePending(ctx context.Context, req domain.CreatePendingRequest) (*domain.Payment, error) {
	if err := validateNew(req.PayerName, req.Method, req.AmountCents); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:          s.genID.Generate(),
		InvoiceID:   req.InvoiceID,
		UserID:      req.UserID,
		PayerName:   strings.TrimSpace(req.PayerName),
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}

	s.log.Info("payment pending",
		zap.String("payment_id", payment.ID.String()),
		zap.String("method", payment.Method),
		zap.Int64("amount_cents", payment.AmountCents),
	)
	return payment, nil
}

func (s *Service) RecordCashPayment(ctx context.Context, req domain.CashPaymentRequest) (*domain.Payment, error) {
	method := req.Method
	if method == "" {
		method = domain.MethodCash
	}
	if method == domain.MethodPayPal {
		return nil, domain.ErrInvalidMethod
	}
	if err := validateNew(req.PayerName, method, req.AmountCents); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:          s.genID.Generate(),
		InvoiceID:   req.InvoiceID,
		UserID:      req.UserID,
		PayerName:   strings.TrimSpace(req.PayerName),
		AmountCents: req.AmountCents,
		Method:      method,
		Status:      domain.StatusPaid,
		PaidAt:      &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
			return err
		}
		return s.settle(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("cash payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("method", method),
		zap.Int64("amount_cents", payment.AmountCents),
	)
	return payment, nil
}

func (s *Service) MarkPaid(ctx context.Context, req domain.MarkPaidRequest) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).First(&payment, "id = ?", req.PaymentID).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrNotFound
			}
			return err
		}

		switch payment.Status {
		case domain.StatusPaid:
			return nil
		case domain.StatusCancelled, domain.StatusExpired:
			return domain.ErrAlreadyResolved
		}

		paidAt := s.clock.Now()
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		payment.Status = domain.StatusPaid
		payment.PaidAt = &paidAt
		payment.UpdatedAt = s.clock.Now()
		if len(req.RawPayload) > 0 {
			payment.RawPayload = req.RawPayload
		}

		if err := tx.WithContext(ctx).Save(&payment).Error; err != nil {
			return err
		}
		return s.settle(ctx, tx, &payment)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment marked paid",
		zap.String("payment_id", payment.ID.String()),
		zap.String("method", payment.Method),
	)
	return &payment, nil
}

// settle posts the paid payment to the cashbook and closes the linked
// invoice. Runs inside the caller's transaction so a failure unwinds the
// status change too.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, payment *domain.Payment) error {
	_, err := s.cashbook.PostPayment(ctx, tx, cashbookdomain.PaymentPosting{
		PaymentID:   payment.ID,
		AmountCents: payment.AmountCents,
		Status:      cashbookdomain.PaymentStatusPaid,
		Method:      payment.Method,
		PaidAt:      payment.PaidAt,
		PayerName:   payment.PayerName,
	})
	if err != nil {
		return err
	}

	if payment.InvoiceID != nil {
		if _, err := s.invoices.MarkPaid(ctx, tx, *payment.InvoiceID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) CancelPending(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).First(&payment, "id = ?", id).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrNotFound
			}
			return err
		}
		if payment.Status != domain.StatusPending {
			return domain.ErrNotPending
		}

		now := s.clock.Now()
		payment.Status = domain.StatusCancelled
		payment.CancelledAt = &now
		payment.UpdatedAt = now
		return tx.WithContext(ctx).Save(&payment).Error
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *Service) ListPending(ctx context.Context) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := s.db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("created_at asc, id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at asc, id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) ExpireStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-maxAge)
	result := s.db.WithContext(ctx).Model(&domain.Payment{}).
		Where("status = ? AND created_at < ?", domain.StatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":       domain.StatusExpired,
			"cancelled_at": s.clock.Now(),
			"updated_at":   s.clock.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("stale pending payments expired", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// PurgeCancelled deletes cancelled and expired payments resolved before the
// retention cutoff. Keyed on cancelled_at, which the service sets itself:
// updated_at is gorm-managed and would reflect wall-clock time.
func (s *Service) PurgeCancelled(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("status IN ? AND cancelled_at < ?",
			[]string{domain.StatusCancelled, domain.StatusExpired}, cutoff).
		Delete(&domain.Payment{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("resolved payments purged", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}
