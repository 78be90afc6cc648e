package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/schuelerfirma/kiosk/internal/beverage/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
		log:   p.Log.Named("beverage.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func normalizeCategory(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", domain.CategoryDrink:
		return domain.CategoryDrink, nil
	case domain.CategoryFood:
		return domain.CategoryFood, nil
	default:
		return "", domain.ErrInvalidBeverage
	}
}

func (s *Service) CreateBeverage(ctx context.Context, req domain.CreateBeverageRequest) (*domain.Beverage, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidBeverage
	}
	category, err := normalizeCategory(req.Category)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	beverage := &domain.Beverage{
		ID:        s.genID.Generate(),
		Name:      name,
		Category:  category,
		Active:    true,
		SortOrder: req.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(beverage).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrBeverageExists
		}
		return nil, err
	}
	return beverage, nil
}

func (s *Service) UpdateBeverage(ctx context.Context, req domain.UpdateBeverageRequest) (*domain.Beverage, error) {
	var beverage domain.Beverage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).First(&beverage, "id = ?", req.ID).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrBeverageNotFound
			}
			return err
		}

		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return domain.ErrInvalidBeverage
			}
			beverage.Name = strings.TrimSpace(*req.Name)
		}
		if req.Category != nil {
			category, err := normalizeCategory(*req.Category)
			if err != nil {
				return err
			}
			beverage.Category = category
		}
		if req.Active != nil {
			beverage.Active = *req.Active
		}
		if req.SortOrder != nil {
			beverage.SortOrder = *req.SortOrder
		}
		beverage.UpdatedAt = s.clock.Now()

		if err := tx.WithContext(ctx).Save(&beverage).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrBeverageExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &beverage, nil
}

func (s *Service) DeleteBeverage(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Delete(&domain.Beverage{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrBeverageNotFound
		}
		return tx.WithContext(ctx).
			Delete(&domain.RolePrice{}, "beverage_id = ?", id).Error
	})
}

func (s *Service) GetBeverage(ctx context.Context, id snowflake.ID) (*domain.Beverage, error) {
	var beverage domain.Beverage
	err := s.db.WithContext(ctx).First(&beverage, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrBeverageNotFound
		}
		return nil, err
	}
	return &beverage, nil
}

func (s *Service) ListBeverages(ctx context.Context, activeOnly bool) ([]domain.Beverage, error) {
	stmt := s.db.WithContext(ctx)
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	var beverages []domain.Beverage
	err := stmt.Order("sort_order asc, name asc").Find(&beverages).Error
	if err != nil {
		return nil, err
	}
	return beverages, nil
}

func (s *Service) SetPrice(ctx context.Context, roleID, beverageID snowflake.ID, priceCents int64) (*domain.RolePrice, error) {
	if priceCents < 0 {
		return nil, domain.ErrInvalidPrice
	}

	var price domain.RolePrice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Model(&domain.Beverage{}).
			Where("id = ?", beverageID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrBeverageNotFound
		}

		err := tx.WithContext(ctx).
			Where("role_id = ? AND beverage_id = ?", roleID, beverageID).
			First(&price).Error
		if err == gorm.ErrRecordNotFound {
			now := s.clock.Now()
			price = domain.RolePrice{
				ID:         s.genID.Generate(),
				RoleID:     roleID,
				BeverageID: beverageID,
				PriceCents: priceCents,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			return tx.WithContext(ctx).Create(&price).Error
		}
		if err != nil {
			return err
		}

		price.PriceCents = priceCents
		price.UpdatedAt = s.clock.Now()
		return tx.WithContext(ctx).Save(&price).Error
	})
	if err != nil {
		return nil, err
	}
	return &price, nil
}

func (s *Service) RemovePrice(ctx context.Context, roleID, beverageID snowflake.ID) error {
	result := s.db.WithContext(ctx).
		Delete(&domain.RolePrice{}, "role_id = ? AND beverage_id = ?", roleID, beverageID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNoPriceForRole
	}
	return nil
}

func (s *Service) ListPrices(ctx context.Context, beverageID snowflake.ID) ([]domain.RolePrice, error) {
	var prices []domain.RolePrice
	err := s.db.WithContext(ctx).
		Where("beverage_id = ?", beverageID).
		Order("role_id asc").
		Find(&prices).Error
	if err != nil {
		return nil, err
	}
	return prices, nil
}

func (s *Service) PriceFor(ctx context.Context, roleID, beverageID snowflake.ID) (int64, error) {
	var price domain.RolePrice
	err := s.db.WithContext(ctx).
		Where("role_id = ? AND beverage_id = ?", roleID, beverageID).
		First(&price).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, domain.ErrNoPriceForRole
		}
		return 0, err
	}
	return price.PriceCents, nil
}

func (s *Service) DisplayItems(ctx context.Context, roleID snowflake.ID) ([]domain.DisplayItem, error) {
	var items []domain.DisplayItem
	err := s.db.WithContext(ctx).
		Table("beverages").
		Select("beverages.id as beverage_id, beverages.name as name, beverages.category as category, role_prices.price_cents as price_cents").
		Joins("JOIN role_prices ON role_prices.beverage_id = beverages.id").
		Where("beverages.active = ? AND role_prices.role_id = ?", true, roleID).
		Order("beverages.sort_order asc, beverages.name asc").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
