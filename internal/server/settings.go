package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) SetTheme(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	theme, err := s.settingsSvc.SetTheme(c.Request.Context(), req.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, theme)
}

// SecurityStatus summarizes deployment hygiene for the admin dashboard:
// whether real credentials are configured and which integrations are live.
func (s *Server) SecurityStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"admin_password_set": s.cfg.AdminPassword != "",
		"jwt_secret_default": s.cfg.AdminJWTSecret == "dev-key",
		"paypal_configured":  s.cfg.PayPal.ClientID != "" && s.cfg.PayPal.ClientSecret != "",
		"redis_configured":   s.cfg.RedisAddr != "",
	})
}

func (s *Server) ListAccessLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := s.auditSvc.List(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_logs": logs})
}
