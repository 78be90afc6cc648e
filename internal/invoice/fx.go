package invoice

import (
	"github.com/schuelerfirma/kiosk/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(service.NewService),
)
