package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/user/domain"
	"github.com/schuelerfirma/kiosk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
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
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// pinIdentifier prefers the stable external id; the name fallback uses a
// separator that cannot occur in a single name component.
func pinIdentifier(u *domain.User) string {
	if u.ITSLID != nil && strings.TrimSpace(*u.ITSLID) != "" {
		return "itsl:" + strings.TrimSpace(*u.ITSLID)
	}
	return fmt.Sprintf("name:%s::%s", u.FirstName, u.LastName)
}

func validPin(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, domain.ErrInvalidName
	}

	var user *domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.roleByName(ctx, tx, req.RoleName)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		user = &domain.User{
			ID:        s.genID.Generate(),
			FirstName: firstName,
			LastName:  lastName,
			ITSLID:    normalizeITSL(req.ITSLID),
			RoleID:    role.ID,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}

		// A returning user gets their archived PIN back.
		var backup domain.PinBackup
		err = tx.WithContext(ctx).
			Where("identifier = ?", pinIdentifier(user)).
			First(&backup).Error
		if err == nil {
			user.PinHash = backup.PinHash
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		if err := tx.WithContext(ctx).Create(user).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrUserExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("name", user.DisplayName()),
	)
	return s.GetUser(ctx, user.ID)
}

func normalizeITSL(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *Service) UpdateUser(ctx context.Context, req domain.UpdateUserRequest) (*domain.User, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		err := tx.WithContext(ctx).First(&user, "id = ?", req.ID).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrUserNotFound
			}
			return err
		}

		if req.FirstName != nil {
			if strings.TrimSpace(*req.FirstName) == "" {
				return domain.ErrInvalidName
			}
			user.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			if strings.TrimSpace(*req.LastName) == "" {
				return domain.ErrInvalidName
			}
			user.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.ITSLID != nil {
			user.ITSLID = normalizeITSL(req.ITSLID)
		}
		if req.RoleName != nil {
			role, err := s.roleByName(ctx, tx, *req.RoleName)
			if err != nil {
				return err
			}
			user.RoleID = role.ID
		}
		if req.Active != nil {
			user.Active = *req.Active
		}
		user.UpdatedAt = s.clock.Now()

		if err := tx.WithContext(ctx).Save(&user).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrUserExists
			}
			return err
		}

		// Identity fields may have changed; keep the archive addressable
		// under the new identifier.
		if user.PinHash != "" {
			return s.archivePin(ctx, tx, &user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, req.ID)
}

func (s *Service) DeleteUser(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		err := tx.WithContext(ctx).First(&user, "id = ?", id).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrUserNotFound
			}
			return err
		}

		if user.PinHash != "" {
			if err := s.archivePin(ctx, tx, &user); err != nil {
				return err
			}
		}
		return tx.WithContext(ctx).Delete(&domain.User{}, "id = ?", id).Error
	})
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		First(&user, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) ListUsers(ctx context.Context, activeOnly bool) ([]domain.User, error) {
	stmt := s.db.WithContext(ctx).Preload("Role")
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	var users []domain.User
	err := stmt.Order("last_name asc, first_name asc").Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Service) SetPin(ctx context.Context, id snowflake.ID, pin string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		err := tx.WithContext(ctx).First(&user, "id = ?", id).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrUserNotFound
			}
			return err
		}

		if pin == "" {
			user.PinHash = ""
		} else {
			if !validPin(pin) {
				return domain.ErrInvalidPin
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			user.PinHash = string(hash)
		}
		user.UpdatedAt = s.clock.Now()

		if err := tx.WithContext(ctx).Save(&user).Error; err != nil {
			return err
		}
		if user.PinHash == "" {
			return tx.WithContext(ctx).
				Delete(&domain.PinBackup{}, "identifier = ?", pinIdentifier(&user)).Error
		}
		return s.archivePin(ctx, tx, &user)
	})
}

func (s *Service) VerifyPin(ctx context.Context, id snowflake.ID, pin string) (bool, error) {
	var user domain.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, domain.ErrUserNotFound
		}
		return false, err
	}
	if user.PinHash == "" {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(user.PinHash), []byte(pin))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) archivePin(ctx context.Context, tx *gorm.DB, user *domain.User) error {
	identifier := pinIdentifier(user)

	var backup domain.PinBackup
	err := tx.WithContext(ctx).
		Where("identifier = ?", identifier).
		First(&backup).Error
	if err == gorm.ErrRecordNotFound {
		backup = domain.PinBackup{
			ID:         s.genID.Generate(),
			Identifier: identifier,
			PinHash:    user.PinHash,
			UpdatedAt:  s.clock.Now(),
		}
		return tx.WithContext(ctx).Create(&backup).Error
	}
	if err != nil {
		return err
	}

	backup.PinHash = user.PinHash
	backup.UpdatedAt = s.clock.Now()
	return tx.WithContext(ctx).Save(&backup).Error
}

func (s *Service) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if strings.EqualFold(name, domain.GuestRoleName) {
		return nil, domain.ErrRoleNameReserved
	}

	role := &domain.Role{
		ID:        s.genID.Generate(),
		Name:      name,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrRoleExists
		}
		return nil, err
	}
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role domain.Role
		err := tx.WithContext(ctx).First(&role, "id = ?", id).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrRoleNotFound
			}
			return err
		}
		if role.Name == domain.GuestRoleName {
			return domain.ErrGuestRoleDelete
		}

		var count int64
		err = tx.WithContext(ctx).Model(&domain.User{}).
			Where("role_id = ?", id).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrRoleInUse
		}
		return tx.WithContext(ctx).Delete(&domain.Role{}, "id = ?", id).Error
	})
}

func (s *Service) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := s.db.WithContext(ctx).Order("name asc").Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Service) EnsureGuestRole(ctx context.Context) (*domain.Role, error) {
	var role domain.Role
	err := s.db.WithContext(ctx).
		Where("name = ?", domain.GuestRoleName).
		First(&role).Error
	if err == nil {
		return &role, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	role = domain.Role{
		ID:        s.genID.Generate(),
		Name:      domain.GuestRoleName,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&role).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.EnsureGuestRole(ctx)
		}
		return nil, err
	}
	s.log.Info("guest role seeded", zap.String("role_id", role.ID.String()))
	return &role, nil
}

func (s *Service) roleByName(ctx context.Context, tx *gorm.DB, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrRoleNotFound
	}
	var role domain.Role
	err := tx.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}
