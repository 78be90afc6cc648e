package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	auditdomain "github.com/schuelerfirma/kiosk/internal/audit/domain"
	"go.uber.org/zap"
)

const sessionCookie = "kiosk_admin_session"

const contextUsernameKey = "admin_username"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) issueToken(username string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AdminSessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.AdminJWTSecret))
}

func (s *Server) parseToken(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return []byte(s.cfg.AdminJWTSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }))
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

func credentialsMatch(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Login checks the configured admin credentials and sets the session cookie.
// Every attempt is written to the access log.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	ok := s.cfg.AdminUsername != "" &&
		credentialsMatch(req.Username, s.cfg.AdminUsername) &&
		credentialsMatch(req.Password, s.cfg.AdminPassword)

	s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
		Username:  req.Username,
		Action:    auditdomain.ActionLogin,
		Path:      c.FullPath(),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Success:   ok,
	})

	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	token, err := s.issueToken(req.Username, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(s.cfg.AdminSessionTTL.Seconds()), "/", "", s.cfg.Environment == "production", true)
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

func (s *Server) Logout(c *gin.Context) {
	username, _ := c.Cookie(sessionCookie)
	if username != "" {
		if subject, err := s.parseToken(username); err == nil {
			s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
				Username:  subject,
				Action:    auditdomain.ActionLogout,
				Path:      c.FullPath(),
				IP:        c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
				Success:   true,
			})
		}
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", s.cfg.Environment == "production", true)
	c.Status(http.StatusNoContent)
}

// AdminRequired gates the admin API behind the session cookie.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(sessionCookie)
		if err != nil || raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		username, err := s.parseToken(raw)
		if err != nil {
			s.log.Debug("session token rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUsernameKey, username)
		c.Next()
	}
}

func (s *Server) sessionUsername(c *gin.Context) string {
	if v, ok := c.Get(contextUsernameKey); ok {
		if username, ok := v.(string); ok {
			return username
		}
	}
	return ""
}
