package migration

import (
	"context"

	auditdomain "github.com/schuelerfirma/kiosk/internal/audit/domain"
	beveragedomain "github.com/schuelerfirma/kiosk/internal/beverage/domain"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	"github.com/schuelerfirma/kiosk/internal/config"
	consumptiondomain "github.com/schuelerfirma/kiosk/internal/consumption/domain"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	paymentdomain "github.com/schuelerfirma/kiosk/internal/payment/domain"
	"github.com/schuelerfirma/kiosk/internal/seed"
	settingsdomain "github.com/schuelerfirma/kiosk/internal/settings/domain"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, users userdomain.Service, settings settingsdomain.Service) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql deployments are schema-managed by gorm.
			if err := conn.AutoMigrate(
				&userdomain.Role{}, &userdomain.User{}, &userdomain.PinBackup{},
				&beveragedomain.Beverage{}, &beveragedomain.RolePrice{},
				&invoicedomain.Invoice{}, &consumptiondomain.Consumption{},
				&paymentdomain.Payment{}, &cashbookdomain.Entry{},
				&settingsdomain.Setting{}, &auditdomain.AccessLog{},
			); err != nil {
				return err
			}
		}

		return seed.Ensure(context.Background(), users, settings)
	}),
)
