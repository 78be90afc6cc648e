package settings

import (
	"github.com/schuelerfirma/kiosk/internal/settings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settings",
	fx.Provide(service.NewService),
)
