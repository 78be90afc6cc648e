package scheduler

import (
	"context"
	"time"

	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	"github.com/schuelerfirma/kiosk/internal/lock"
	paymentdomain "github.com/schuelerfirma/kiosk/internal/payment/domain"
	"github.com/schuelerfirma/kiosk/internal/paypal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	lockKey = "kiosk:scheduler:run"
	lockTTL = 2 * time.Minute

	jobTimeout = 90 * time.Second
)

type Params struct {
	fx.In

	Cfg       config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Payments  paymentdomain.Service
	Refresher *paypal.Refresher
	Locker    *lock.Locker `optional:"true"`
}

// Scheduler periodically confirms pending PayPal payments, expires stale
// ones and purges resolved ones. With redis configured, a best-effort lock
// keeps multiple instances from sweeping at the same time.
type Scheduler struct {
	cfg       config.Config
	log       *zap.Logger
	clock     clock.Clock
	payments  paymentdomain.Service
	refresher *paypal.Refresher
	locker    *lock.Locker
}

func New(p Params) *Scheduler {
	return &Scheduler{
		cfg:       p.Cfg,
		log:       p.Log.Named("scheduler"),
		clock:     p.Clock,
		payments:  p.Payments,
		refresher: p.Refresher,
		locker:    p.Locker,
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.cfg.PayPal.BackgroundPoll
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one sweep. Exported so the admin "refresh now" endpoint
// can trigger it outside the ticker.
func (s *Scheduler) RunOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, lockKey, lockTTL)
		if err != nil {
			s.log.Warn("scheduler lock unavailable, proceeding unguarded", zap.Error(err))
		} else if !ok {
			return
		} else {
			defer func() {
				if err := s.locker.Release(ctx, lockKey, token); err != nil {
					s.log.Warn("scheduler lock release failed", zap.Error(err))
				}
			}()
		}
	}

	confirmed, err := s.refresher.RefreshPending(ctx)
	if err != nil {
		s.log.Warn("pending payment refresh failed", zap.Error(err))
	} else if confirmed > 0 {
		s.log.Info("pending payments confirmed", zap.Int("count", confirmed))
	}

	if maxAge := s.cfg.PayPal.PendingExpiration; maxAge > 0 {
		if _, err := s.payments.ExpireStalePending(ctx, maxAge); err != nil {
			s.log.Warn("pending payment expiry failed", zap.Error(err))
		}
	}

	if retention := s.cfg.PayPal.CancelledRetention; retention > 0 {
		if _, err := s.payments.PurgeCancelled(ctx, retention); err != nil {
			s.log.Warn("cancelled payment purge failed", zap.Error(err))
		}
	}
}
