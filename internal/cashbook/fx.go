package cashbook

import (
	"github.com/schuelerfirma/kiosk/internal/cashbook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cashbook",
	fx.Provide(service.NewService),
)
