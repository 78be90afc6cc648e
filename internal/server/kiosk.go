package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
)

func paramID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

type kioskUser struct {
	ID        snowflake.ID `json:"id"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	RoleID    snowflake.ID `json:"role_id"`
	HasPin    bool         `json:"has_pin"`
}

// ListKioskUsers returns the active users the tile grid shows. The kiosk
// only needs names and whether a PIN gate applies.
func (s *Server) ListKioskUsers(c *gin.Context) {
	users, err := s.userSvc.ListUsers(c.Request.Context(), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]kioskUser, 0, len(users))
	for _, u := range users {
		out = append(out, kioskUser{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			RoleID:    u.RoleID,
			HasPin:    u.PinHash != "",
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (s *Server) VerifyPin(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Pin string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	valid, err := s.userSvc.VerifyPin(c.Request.Context(), id, req.Pin)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// KioskSetPin lets a user pick their own PIN at the kiosk. Changing an
// existing PIN requires the current one; setting a first PIN does not.
func (s *Server) KioskSetPin(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Pin        string `json:"pin"`
		CurrentPin string `json:"current_pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	ctx := c.Request.Context()

	u, err := s.userSvc.GetUser(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if u.PinHash != "" {
		valid, err := s.userSvc.VerifyPin(ctx, id, req.CurrentPin)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !valid {
			AbortWithError(c, ErrUnauthorized)
			return
		}
	}

	if err := s.userSvc.SetPin(ctx, id, req.Pin); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListUserBeverages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	u, err := s.userSvc.GetUser(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.beverageSvc.DisplayItems(c.Request.Context(), u.RoleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"beverages": items})
}

func (s *Server) ListGuestBeverages(c *gin.Context) {
	role, err := s.userSvc.EnsureGuestRole(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.beverageSvc.DisplayItems(c.Request.Context(), role.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"beverages": items})
}

func (s *Server) AddConsumption(c *gin.Context) {
	var req struct {
		UserID     *snowflake.ID `json:"user_id"`
		BeverageID snowflake.ID  `json:"beverage_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.BeverageID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	who := userdomain.Guest()
	if req.UserID != nil && *req.UserID != 0 {
		who = userdomain.RealUser(*req.UserID)
	}

	booked, err := s.consumptionSvc.Add(c.Request.Context(), who, req.BeverageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, booked)
}

func (s *Server) UndoConsumption(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := s.consumptionSvc.Undo(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTheme is polled by the kiosk; the version lets it reload only when the
// theme actually changed.
func (s *Server) GetTheme(c *gin.Context) {
	theme, err := s.settingsSvc.Theme(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, theme)
}

// Events streams heartbeat events carrying the current theme version, so the
// kiosk notices theme changes without polling and reloads over one connection.
func (s *Server) Events(c *gin.Context) {
	ctx := c.Request.Context()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	send := func() bool {
		theme, err := s.settingsSvc.Theme(ctx)
		if err != nil {
			return false
		}
		c.SSEvent("heartbeat", gin.H{
			"theme":         theme.Name,
			"theme_version": theme.Version,
		})
		c.Writer.Flush()
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

// PaymentStatus is polled by the payer's phone while PayPal settles. It
// triggers an immediate provider check before reporting the status.
func (s *Server) PaymentStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if _, err := s.refresher.RefreshOne(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      payment.ID,
		"status":  payment.Status,
		"paid_at": payment.PaidAt,
	})
}
