package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	beveragedomain "github.com/schuelerfirma/kiosk/internal/beverage/domain"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	consumptiondomain "github.com/schuelerfirma/kiosk/internal/consumption/domain"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	paymentdomain "github.com/schuelerfirma/kiosk/internal/payment/domain"
	settingsdomain "github.com/schuelerfirma/kiosk/internal/settings/domain"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware converts errors attached to the context into one
// JSON error response. Handlers report failures via AbortWithError and never
// write error bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

var badRequestErrors = []error{
	ErrInvalidRequest,
	cashbookdomain.ErrInvalidDescription,
	cashbookdomain.ErrInvalidAmount,
	cashbookdomain.ErrInvalidEntryDate,
	userdomain.ErrInvalidName,
	userdomain.ErrInvalidPin,
	userdomain.ErrRoleNameReserved,
	beveragedomain.ErrInvalidBeverage,
	beveragedomain.ErrInvalidPrice,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,
	paymentdomain.ErrInvalidPayer,
	invoicedomain.ErrInvalidPeriod,
	consumptiondomain.ErrInvalidPeriod,
	settingsdomain.ErrInvalidKey,
}

var notFoundErrors = []error{
	cashbookdomain.ErrUnknownCompany,
	cashbookdomain.ErrNotFound,
	userdomain.ErrUserNotFound,
	userdomain.ErrRoleNotFound,
	beveragedomain.ErrBeverageNotFound,
	beveragedomain.ErrNoPriceForRole,
	invoicedomain.ErrNotFound,
	consumptiondomain.ErrNotFound,
	paymentdomain.ErrNotFound,
	settingsdomain.ErrNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	cashbookdomain.ErrReceiptNumberTaken,
	userdomain.ErrUserExists,
	userdomain.ErrRoleExists,
	userdomain.ErrRoleInUse,
	userdomain.ErrGuestRoleDelete,
	beveragedomain.ErrBeverageExists,
	paymentdomain.ErrNotPending,
	paymentdomain.ErrAlreadyResolved,
	consumptiondomain.ErrUndoExpired,
	consumptiondomain.ErrUserInactive,
}

func errorIsAny(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}
	case errors.Is(err, consumptiondomain.ErrGuestsDisabled):
		return http.StatusServiceUnavailable, errorPayload{Type: consumptiondomain.ErrGuestsDisabled.Error(), Message: "guest bookings are not available"}
	}

	if target := errorIsAny(err, badRequestErrors); target != nil {
		return http.StatusBadRequest, errorPayload{Type: target.Error(), Message: err.Error()}
	}
	if target := errorIsAny(err, notFoundErrors); target != nil {
		return http.StatusNotFound, errorPayload{Type: target.Error(), Message: err.Error()}
	}
	if target := errorIsAny(err, conflictErrors); target != nil {
		return http.StatusConflict, errorPayload{Type: target.Error(), Message: err.Error()}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}
