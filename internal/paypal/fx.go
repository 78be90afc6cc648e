package paypal

import (
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newClientFromConfig(cfg config.Config, log *zap.Logger, clk clock.Clock) *Client {
	return NewClient(cfg.PayPal, log, clk)
}

var Module = fx.Module("paypal",
	fx.Provide(newClientFromConfig),
	fx.Provide(NewRefresher),
)
