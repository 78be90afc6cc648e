package service

import (
	"context"
	"fmt"
	"regexp"

	"github.com/bwmarrin/snowflake"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/invoice/domain"
	"github.com/schuelerfirma/kiosk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) EnsureForUserPeriod(ctx context.Context, tx *gorm.DB, userID snowflake.ID, period, displayName string) (*domain.Invoice, error) {
	if !periodPattern.MatchString(period) {
		return nil, domain.ErrInvalidPeriod
	}
	if tx == nil {
		tx = s.db
	}

	var invoice domain.Invoice
	err := tx.WithContext(ctx).
		Where("user_id = ? AND period = ?", userID, period).
		First(&invoice).Error
	if err == nil {
		return &invoice, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	now := s.clock.Now()
	invoice = domain.Invoice{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Period:    period,
		Name:      fmt.Sprintf("%s %s", period, displayName),
		Status:    domain.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		// Concurrent ensure for the same user and month: the other
		// insert won, read it back.
		if db.IsDuplicateKeyErr(err) {
			readErr := tx.WithContext(ctx).
				Where("user_id = ? AND period = ?", userID, period).
				First(&invoice).Error
			if readErr != nil {
				return nil, readErr
			}
			return &invoice, nil
		}
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("period", period),
	)
	return &invoice, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) ListByPeriod(ctx context.Context, period string) ([]domain.Invoice, error) {
	if !periodPattern.MatchString(period) {
		return nil, domain.ErrInvalidPeriod
	}
	var invoices []domain.Invoice
	err := s.db.WithContext(ctx).
		Where("period = ?", period).
		Order("name asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("period desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	if tx != nil {
		var invoice domain.Invoice
		if err := s.setStatus(ctx, tx, &invoice, id, domain.StatusPaid); err != nil {
			return nil, err
		}
		return &invoice, nil
	}

	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.setStatus(ctx, tx, &invoice, id, domain.StatusPaid)
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) Reopen(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.setStatus(ctx, tx, &invoice, id, domain.StatusOpen)
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// setStatus runs on the supplied tx so callers can fold the status change
// into a larger transaction.
func (s *Service) setStatus(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, id snowflake.ID, status string) error {
	err := tx.WithContext(ctx).First(invoice, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrNotFound
		}
		return err
	}
	if invoice.Status == status {
		return nil
	}

	invoice.Status = status
	now := s.clock.Now()
	invoice.UpdatedAt = now
	if status == domain.StatusPaid {
		invoice.PaidAt = &now
	} else {
		invoice.PaidAt = nil
	}
	return tx.WithContext(ctx).Save(invoice).Error
}
