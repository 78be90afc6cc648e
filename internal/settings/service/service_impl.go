package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cacheTTL bounds how stale a redis-cached setting can be.
const cacheTTL = 60 * time.Second

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Redis *redis.Client `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	redis *redis.Client
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settings.service"),
		clock: p.Clock,
		redis: p.Redis,
	}
}

func cacheKey(key string) string { return "kiosk:settings:" + key }

func (s *Service) Get(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrInvalidKey
	}

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey(key)).Result()
		if err == nil {
			return cached, nil
		}
		if err != redis.Nil {
			s.log.Warn("settings cache read failed", zap.Error(err))
		}
	}

	var setting domain.Setting
	err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", domain.ErrNotFound
		}
		return "", err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey(key), setting.Value, cacheTTL).Err(); err != nil {
			s.log.Warn("settings cache write failed", zap.Error(err))
		}
	}
	return setting.Value, nil
}

func (s *Service) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrInvalidKey
	}

	setting := domain.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: s.clock.Now(),
	}
	err := s.db.WithContext(ctx).Save(&setting).Error
	if err != nil {
		return err
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, cacheKey(key)).Err(); err != nil {
			s.log.Warn("settings cache invalidation failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) Theme(ctx context.Context) (domain.Theme, error) {
	name, err := s.Get(ctx, domain.KeyTheme)
	if err == domain.ErrNotFound {
		name = domain.DefaultTheme
	} else if err != nil {
		return domain.Theme{}, err
	}

	version := int64(0)
	raw, err := s.Get(ctx, domain.KeyThemeVersion)
	if err == nil {
		if parsed, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			version = parsed
		}
	} else if err != domain.ErrNotFound {
		return domain.Theme{}, err
	}

	return domain.Theme{Name: name, Version: version}, nil
}

func (s *Service) SetTheme(ctx context.Context, name string) (domain.Theme, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = domain.DefaultTheme
	}

	current, err := s.Theme(ctx)
	if err != nil {
		return domain.Theme{}, err
	}

	next := domain.Theme{Name: name, Version: current.Version + 1}
	if err := s.Set(ctx, domain.KeyTheme, next.Name); err != nil {
		return domain.Theme{}, err
	}
	if err := s.Set(ctx, domain.KeyThemeVersion, strconv.FormatInt(next.Version, 10)); err != nil {
		return domain.Theme{}, err
	}

	s.log.Info("theme changed",
		zap.String("theme", next.Name),
		zap.Int64("version", next.Version),
	)
	return next, nil
}
