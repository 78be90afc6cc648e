package audit

import (
	"github.com/schuelerfirma/kiosk/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(service.NewService),
)
