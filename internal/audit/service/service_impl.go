package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/schuelerfirma/kiosk/internal/audit/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
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
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) {
	entry := domain.AccessLog{
		ID:        s.genID.Generate(),
		Username:  req.Username,
		Action:    req.Action,
		Path:      req.Path,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Success:   req.Success,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("access log write failed",
			zap.String("action", req.Action),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, limit int) ([]domain.AccessLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []domain.AccessLog
	err := s.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
