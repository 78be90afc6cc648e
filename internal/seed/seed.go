package seed

import (
	"context"

	"github.com/schuelerfirma/kiosk/internal/settings/domain"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
)

// Ensure seeds the data every deployment needs: the reserved guest role and
// the default theme. Idempotent.
func Ensure(ctx context.Context, users userdomain.Service, settings domain.Service) error {
	if _, err := users.EnsureGuestRole(ctx); err != nil {
		return err
	}

	if _, err := settings.Theme(ctx); err != nil {
		return err
	}
	return nil
}
