package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/schuelerfirma/kiosk/internal/audit/domain"
	"github.com/schuelerfirma/kiosk/internal/export"
)

func (s *Server) MonthlyReport(c *gin.Context) {
	period := c.Param("period")
	report, err := s.consumptionSvc.Report(c.Request.Context(), period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) ExportMonthlyReport(c *gin.Context) {
	period := c.Param("period")
	format := c.DefaultQuery("format", "csv")
	ctx := c.Request.Context()

	var (
		data []byte
		err  error
	)
	switch format {
	case "csv":
		data, err = s.exportSvc.MonthlyReportCSV(ctx, period)
	case "pdf":
		data, err = s.exportSvc.MonthlyReportPDF(ctx, period)
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		Username:  s.sessionUsername(c),
		Action:    auditdomain.ActionExport,
		Path:      c.FullPath(),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Success:   true,
	})

	filename := fmt.Sprintf("monatsbericht_%s.%s", period, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, export.ContentType(format), data)
}
