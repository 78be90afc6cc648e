package user

import (
	"github.com/schuelerfirma/kiosk/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user",
	fx.Provide(service.NewService),
)
