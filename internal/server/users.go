package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/schuelerfirma/kiosk/internal/audit/domain"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
)

func (s *Server) ListUsers(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	users, err := s.userSvc.ListUsers(c.Request.Context(), activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) CreateUser(c *gin.Context) {
	var req struct {
		FirstName string  `json:"first_name"`
		LastName  string  `json:"last_name"`
		ITSLID    *string `json:"itsl_id"`
		RoleName  string  `json:"role_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	u, err := s.userSvc.CreateUser(c.Request.Context(), userdomain.CreateUserRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ITSLID:    req.ITSLID,
		RoleName:  req.RoleName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *Server) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		ITSLID    *string `json:"itsl_id"`
		RoleName  *string `json:"role_name"`
		Active    *bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	u, err := s.userSvc.UpdateUser(c.Request.Context(), userdomain.UpdateUserRequest{
		ID:        id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ITSLID:    req.ITSLID,
		RoleName:  req.RoleName,
		Active:    req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := s.userSvc.DeleteUser(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
		Username:  s.sessionUsername(c),
		Action:    auditdomain.ActionDelete,
		Path:      c.FullPath(),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Success:   true,
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) SetPin(c *gin.Context) {
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

	if err := s.userSvc.SetPin(c.Request.Context(), id, req.Pin); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UserConsumptions lists what a user drank in a month, defaulting to the
// current one.
func (s *Server) UserConsumptions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	period := c.Query("period")
	if period == "" {
		period = invoicedomain.PeriodOf(s.clock.Now())
	}

	consumptions, err := s.consumptionSvc.ListByUserPeriod(c.Request.Context(), id, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "consumptions": consumptions})
}

func (s *Server) ListRoles(c *gin.Context) {
	roles, err := s.userSvc.ListRoles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (s *Server) CreateRole(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	role, err := s.userSvc.CreateRole(c.Request.Context(), req.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (s *Server) DeleteRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := s.userSvc.DeleteRole(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
