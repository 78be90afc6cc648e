package service

import (
	"context"
	"regexp"
	"time"

	"github.com/bwmarrin/snowflake"
	beveragedomain "github.com/schuelerfirma/kiosk/internal/beverage/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/consumption/domain"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Users     userdomain.Service
	Beverages beveragedomain.Service
	Invoices  invoicedomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	users     userdomain.Service
	beverages beveragedomain.Service
	invoices  invoicedomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("consumption.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		users:     p.Users,
		beverages: p.Beverages,
		invoices:  p.Invoices,
	}
}

func (s *Service) Add(ctx context.Context, who userdomain.Ref, beverageID snowflake.ID) (*domain.Consumption, error) {
	beverage, err := s.beverages.GetBeverage(ctx, beverageID)
	if err != nil {
		return nil, err
	}
	if !beverage.Active {
		return nil, beveragedomain.ErrBeverageNotFound
	}

	now := s.clock.Now()

	if who.IsGuest() {
		return s.addGuest(ctx, beverage, now)
	}

	user, err := s.users.GetUser(ctx, who.UserID())
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, domain.ErrUserInactive
	}

	price, err := s.beverages.PriceFor(ctx, user.RoleID, beverageID)
	if err != nil {
		return nil, err
	}

	var consumption *domain.Consumption
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoices.EnsureForUserPeriod(
			ctx, tx, user.ID, invoicedomain.PeriodOf(now), user.DisplayName())
		if err != nil {
			return err
		}

		userID := user.ID
		invoiceID := invoice.ID
		consumption = &domain.Consumption{
			ID:           s.genID.Generate(),
			UserID:       &userID,
			InvoiceID:    &invoiceID,
			BeverageID:   beverage.ID,
			BeverageName: beverage.Name,
			PriceCents:   price,
			ConsumedAt:   now,
			CreatedAt:    now,
		}
		return tx.WithContext(ctx).Create(consumption).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("consumption booked",
		zap.String("user_id", user.ID.String()),
		zap.String("beverage", beverage.Name),
		zap.Int64("price_cents", price),
	)
	return consumption, nil
}

func (s *Service) addGuest(ctx context.Context, beverage *beveragedomain.Beverage, now time.Time) (*domain.Consumption, error) {
	guestRole, err := s.users.EnsureGuestRole(ctx)
	if err != nil {
		return nil, domain.ErrGuestsDisabled
	}
	price, err := s.beverages.PriceFor(ctx, guestRole.ID, beverage.ID)
	if err != nil {
		return nil, err
	}

	consumption := &domain.Consumption{
		ID:           s.genID.Generate(),
		BeverageID:   beverage.ID,
		BeverageName: beverage.Name,
		PriceCents:   price,
		ConsumedAt:   now,
		CreatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(consumption).Error; err != nil {
		return nil, err
	}

	s.log.Info("guest consumption booked",
		zap.String("beverage", beverage.Name),
		zap.Int64("price_cents", price),
	)
	return consumption, nil
}

func (s *Service) Undo(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var consumption domain.Consumption
		err := tx.WithContext(ctx).First(&consumption, "id = ?", id).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrNotFound
			}
			return err
		}
		if s.clock.Now().Sub(consumption.ConsumedAt) > domain.UndoGraceWindow {
			return domain.ErrUndoExpired
		}
		return tx.WithContext(ctx).Delete(&domain.Consumption{}, "id = ?", id).Error
	})
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]domain.Consumption, error) {
	var consumptions []domain.Consumption
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("consumed_at asc, id asc").
		Find(&consumptions).Error
	if err != nil {
		return nil, err
	}
	return consumptions, nil
}

func (s *Service) ListByUserPeriod(ctx context.Context, userID snowflake.ID, period string) ([]domain.Consumption, error) {
	if !periodPattern.MatchString(period) {
		return nil, domain.ErrInvalidPeriod
	}
	start, end, err := periodBounds(period)
	if err != nil {
		return nil, err
	}
	var consumptions []domain.Consumption
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND consumed_at >= ? AND consumed_at < ?", userID, start, end).
		Order("consumed_at asc, id asc").
		Find(&consumptions).Error
	if err != nil {
		return nil, err
	}
	return consumptions, nil
}

func (s *Service) Report(ctx context.Context, period string) (*domain.MonthlyReport, error) {
	if !periodPattern.MatchString(period) {
		return nil, domain.ErrInvalidPeriod
	}
	start, end, err := periodBounds(period)
	if err != nil {
		return nil, err
	}

	report := &domain.MonthlyReport{Period: period}

	err = s.db.WithContext(ctx).
		Table("consumptions").
		Select(`consumptions.user_id as user_id,
			users.first_name || ' ' || users.last_name as user_name,
			count(*) as count,
			sum(consumptions.price_cents) as total_cents`).
		Joins("JOIN users ON users.id = consumptions.user_id").
		Where("consumptions.consumed_at >= ? AND consumptions.consumed_at < ?", start, end).
		Group("consumptions.user_id, users.first_name, users.last_name").
		Order("user_name asc").
		Scan(&report.Users).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Table("consumptions").
		Select("beverage_name, count(*) as count, sum(price_cents) as total_cents").
		Where("consumed_at >= ? AND consumed_at < ?", start, end).
		Group("beverage_name").
		Order("beverage_name asc").
		Scan(&report.Beverages).Error
	if err != nil {
		return nil, err
	}

	type guestAgg struct {
		Count      int64
		TotalCents int64
	}
	var guests guestAgg
	err = s.db.WithContext(ctx).
		Table("consumptions").
		Select("count(*) as count, coalesce(sum(price_cents), 0) as total_cents").
		Where("user_id IS NULL AND consumed_at >= ? AND consumed_at < ?", start, end).
		Scan(&guests).Error
	if err != nil {
		return nil, err
	}
	report.GuestCount = guests.Count
	report.GuestCents = guests.TotalCents

	for _, row := range report.Beverages {
		report.TotalCents += row.TotalCents
	}
	return report, nil
}

func (s *Service) InvoiceTotal(ctx context.Context, invoiceID snowflake.ID) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Table("consumptions").
		Select("coalesce(sum(price_cents), 0)").
		Where("invoice_id = ?", invoiceID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func periodBounds(period string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", period, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidPeriod
	}
	return start, start.AddDate(0, 1, 0), nil
}
