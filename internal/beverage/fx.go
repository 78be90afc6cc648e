package beverage

import (
	"github.com/schuelerfirma/kiosk/internal/beverage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("beverage",
	fx.Provide(service.NewService),
)
