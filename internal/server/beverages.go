package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	beveragedomain "github.com/schuelerfirma/kiosk/internal/beverage/domain"
)

func (s *Server) ListBeverages(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	beverages, err := s.beverageSvc.ListBeverages(c.Request.Context(), activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"beverages": beverages})
}

func (s *Server) CreateBeverage(c *gin.Context) {
	var req struct {
		Name      string `json:"name"`
		Category  string `json:"category"`
		SortOrder int    `json:"sort_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	b, err := s.beverageSvc.CreateBeverage(c.Request.Context(), beveragedomain.CreateBeverageRequest{
		Name:      req.Name,
		Category:  req.Category,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) UpdateBeverage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name      *string `json:"name"`
		Category  *string `json:"category"`
		Active    *bool   `json:"active"`
		SortOrder *int    `json:"sort_order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	b, err := s.beverageSvc.UpdateBeverage(c.Request.Context(), beveragedomain.UpdateBeverageRequest{
		ID:        id,
		Name:      req.Name,
		Category:  req.Category,
		Active:    req.Active,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) DeleteBeverage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := s.beverageSvc.DeleteBeverage(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListPrices(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	prices, err := s.beverageSvc.ListPrices(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

func (s *Server) SetPrice(c *gin.Context) {
	beverageID, ok := paramID(c, "id")
	if !ok {
		return
	}
	roleID, ok := paramID(c, "roleId")
	if !ok {
		return
	}

	var req struct {
		PriceCents int64 `json:"price_cents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	price, err := s.beverageSvc.SetPrice(c.Request.Context(), roleID, beverageID, req.PriceCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, price)
}

func (s *Server) RemovePrice(c *gin.Context) {
	beverageID, ok := paramID(c, "id")
	if !ok {
		return
	}
	roleID, ok := paramID(c, "roleId")
	if !ok {
		return
	}

	if err := s.beverageSvc.RemovePrice(c.Request.Context(), roleID, beverageID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
