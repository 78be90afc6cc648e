package paypal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	obsmetrics "github.com/schuelerfirma/kiosk/internal/observability/metrics"
	paymentdomain "github.com/schuelerfirma/kiosk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RefresherParams struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Client     *Client
	Payments   paymentdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Refresher checks pending PayPal payments against the reporting API and
// confirms the ones that settled. Each payment has a poll cooldown so a busy
// admin screen does not hammer the API.
type Refresher struct {
	log        *zap.Logger
	clock      clock.Clock
	client     *Client
	payments   paymentdomain.Service
	cooldown   time.Duration
	obsMetrics *obsmetrics.Metrics

	mu       sync.Mutex
	lastPoll map[snowflake.ID]time.Time
}

func NewRefresher(p RefresherParams) *Refresher {
	return &Refresher{
		log:        p.Log.Named("paypal.refresher"),
		clock:      p.Clock,
		client:     p.Client,
		payments:   p.Payments,
		cooldown:   p.Cfg.PayPal.PollInterval,
		obsMetrics: p.ObsMetrics,
		lastPoll:   make(map[snowflake.ID]time.Time),
	}
}

func (r *Refresher) onCooldown(id snowflake.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastPoll[id]
	if ok && r.clock.Now().Sub(last) < r.cooldown {
		return true
	}
	r.lastPoll[id] = r.clock.Now()
	return false
}

func (r *Refresher) forget(id snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lastPoll, id)
}

// RefreshPending polls every pending PayPal payment once, honoring the
// cooldown, and returns how many were confirmed.
func (r *Refresher) RefreshPending(ctx context.Context) (int, error) {
	if !r.client.Configured() {
		return 0, nil
	}

	pending, err := r.payments.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for i := range pending {
		payment := &pending[i]
		if payment.Method != paymentdomain.MethodPayPal {
			continue
		}
		if r.onCooldown(payment.ID) {
			continue
		}

		ok, err := r.refreshOne(ctx, payment)
		if err != nil {
			r.obsMetrics.IncPayPalPoll("error")
			r.log.Warn("paypal poll failed",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			confirmed++
		}
	}
	return confirmed, nil
}

// RefreshOne polls a single payment immediately, bypassing the cooldown.
// Used by the status endpoint the waiting payer page polls.
func (r *Refresher) RefreshOne(ctx context.Context, id snowflake.ID) (bool, error) {
	if !r.client.Configured() {
		return false, nil
	}
	payment, err := r.payments.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if payment.Status != paymentdomain.StatusPending || payment.Method != paymentdomain.MethodPayPal {
		return payment.Status == paymentdomain.StatusPaid, nil
	}
	return r.refreshOne(ctx, payment)
}

func (r *Refresher) refreshOne(ctx context.Context, payment *paymentdomain.Payment) (bool, error) {
	marker := fmt.Sprintf("payment_id:%d", payment.ID)
	tx, err := r.client.FindTransaction(ctx, payment.ReferenceCode(), marker)
	if err != nil {
		return false, err
	}
	if tx == nil {
		r.obsMetrics.IncPayPalPoll("pending")
		return false, nil
	}

	if tx.AmountCents < payment.AmountCents {
		r.obsMetrics.IncPayPalPoll("amount_mismatch")
		r.log.Warn("paypal transaction underpays",
			zap.String("payment_id", payment.ID.String()),
			zap.Int64("expected_cents", payment.AmountCents),
			zap.Int64("received_cents", tx.AmountCents),
		)
		return false, nil
	}

	completedAt := tx.CompletedAt
	_, err = r.payments.MarkPaid(ctx, paymentdomain.MarkPaidRequest{
		PaymentID:  payment.ID,
		PaidAt:     &completedAt,
		RawPayload: tx.Raw,
	})
	if err != nil {
		return false, err
	}

	r.forget(payment.ID)
	r.obsMetrics.IncPayPalPoll("confirmed")
	r.log.Info("paypal payment confirmed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("transaction_id", tx.TransactionID),
	)
	return true, nil
}
