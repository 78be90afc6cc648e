package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schuelerfirma/kiosk/internal/audit"
	auditdomain "github.com/schuelerfirma/kiosk/internal/audit/domain"
	"github.com/schuelerfirma/kiosk/internal/beverage"
	beveragedomain "github.com/schuelerfirma/kiosk/internal/beverage/domain"
	"github.com/schuelerfirma/kiosk/internal/cashbook"
	cashbookdomain "github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	"github.com/schuelerfirma/kiosk/internal/consumption"
	consumptiondomain "github.com/schuelerfirma/kiosk/internal/consumption/domain"
	"github.com/schuelerfirma/kiosk/internal/export"
	"github.com/schuelerfirma/kiosk/internal/invoice"
	invoicedomain "github.com/schuelerfirma/kiosk/internal/invoice/domain"
	"github.com/schuelerfirma/kiosk/internal/lock"
	"github.com/schuelerfirma/kiosk/internal/migration"
	obsmetrics "github.com/schuelerfirma/kiosk/internal/observability/metrics"
	"github.com/schuelerfirma/kiosk/internal/payment"
	paymentdomain "github.com/schuelerfirma/kiosk/internal/payment/domain"
	"github.com/schuelerfirma/kiosk/internal/paypal"
	"github.com/schuelerfirma/kiosk/internal/scheduler"
	"github.com/schuelerfirma/kiosk/internal/settings"
	settingsdomain "github.com/schuelerfirma/kiosk/internal/settings/domain"
	"github.com/schuelerfirma/kiosk/internal/user"
	userdomain "github.com/schuelerfirma/kiosk/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	obsmetrics.Module,
	lock.Module,
	user.Module,
	beverage.Module,
	invoice.Module,
	consumption.Module,
	cashbook.Module,
	payment.Module,
	paypal.Module,
	settings.Module,
	audit.Module,
	export.Module,
	migration.Module,
	scheduler.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(m.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(log, m)
}

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			fields = append(fields, zap.String("error", c.Errors.String()))
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	db     *gorm.DB
	genID  *snowflake.Node
	clock  clock.Clock
	holder *config.CashbookConfigHolder

	userSvc        userdomain.Service
	beverageSvc    beveragedomain.Service
	invoiceSvc     invoicedomain.Service
	consumptionSvc consumptiondomain.Service
	cashbookSvc    cashbookdomain.Service
	paymentSvc     paymentdomain.Service
	settingsSvc    settingsdomain.Service
	auditSvc       auditdomain.Service
	exportSvc      *export.Service
	refresher      *paypal.Refresher
}

type ServerParams struct {
	fx.In

	Gin    *gin.Engine
	Cfg    config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	GenID  *snowflake.Node
	Clock  clock.Clock
	Holder *config.CashbookConfigHolder

	UserSvc        userdomain.Service
	BeverageSvc    beveragedomain.Service
	InvoiceSvc     invoicedomain.Service
	ConsumptionSvc consumptiondomain.Service
	CashbookSvc    cashbookdomain.Service
	PaymentSvc     paymentdomain.Service
	SettingsSvc    settingsdomain.Service
	AuditSvc       auditdomain.Service
	ExportSvc      *export.Service
	Refresher      *paypal.Refresher
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("server"),
		db:             p.DB,
		genID:          p.GenID,
		clock:          p.Clock,
		holder:         p.Holder,
		userSvc:        p.UserSvc,
		beverageSvc:    p.BeverageSvc,
		invoiceSvc:     p.InvoiceSvc,
		consumptionSvc: p.ConsumptionSvc,
		cashbookSvc:    p.CashbookSvc,
		paymentSvc:     p.PaymentSvc,
		settingsSvc:    p.SettingsSvc,
		auditSvc:       p.AuditSvc,
		exportSvc:      p.ExportSvc,
		refresher:      p.Refresher,
	}

	svc.registerKioskRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerKioskRoutes wires the unauthenticated surface the kiosk tablet and
// the payer's phone talk to.
func (s *Server) registerKioskRoutes() {
	api := s.engine.Group("/api")

	api.GET("/users", s.ListKioskUsers)
	api.POST("/users/:id/verify-pin", s.VerifyPin)
	api.PUT("/users/:id/pin", s.KioskSetPin)
	api.GET("/users/:id/beverages", s.ListUserBeverages)
	api.GET("/guest/beverages", s.ListGuestBeverages)

	api.POST("/consumptions", s.AddConsumption)
	api.DELETE("/consumptions/:id", s.UndoConsumption)

	api.GET("/theme", s.GetTheme)
	api.GET("/events", s.Events)
	api.GET("/payments/:id/status", s.PaymentStatus)
}

func (s *Server) registerAdminRoutes() {
	s.engine.POST("/admin/login", s.Login)
	s.engine.POST("/admin/logout", s.Logout)

	admin := s.engine.Group("/admin/api", s.AdminRequired())

	admin.GET("/users", s.ListUsers)
	admin.POST("/users", s.CreateUser)
	admin.PATCH("/users/:id", s.UpdateUser)
	admin.DELETE("/users/:id", s.DeleteUser)
	admin.PUT("/users/:id/pin", s.SetPin)
	admin.GET("/users/:id/consumptions", s.UserConsumptions)

	admin.GET("/roles", s.ListRoles)
	admin.POST("/roles", s.CreateRole)
	admin.DELETE("/roles/:id", s.DeleteRole)

	admin.GET("/beverages", s.ListBeverages)
	admin.POST("/beverages", s.CreateBeverage)
	admin.PATCH("/beverages/:id", s.UpdateBeverage)
	admin.DELETE("/beverages/:id", s.DeleteBeverage)
	admin.GET("/beverages/:id/prices", s.ListPrices)
	admin.PUT("/beverages/:id/prices/:roleId", s.SetPrice)
	admin.DELETE("/beverages/:id/prices/:roleId", s.RemovePrice)

	admin.GET("/invoices", s.ListInvoices)
	admin.GET("/invoices/:id", s.GetInvoice)
	admin.POST("/invoices/:id/reopen", s.ReopenInvoice)

	admin.GET("/payments/pending", s.ListPendingPayments)
	admin.POST("/payments", s.CreatePendingPayment)
	admin.POST("/payments/cash", s.RecordCashPayment)
	admin.POST("/payments/:id/cancel", s.CancelPayment)
	admin.POST("/payments/:id/mark-paid", s.MarkPaymentPaid)
	admin.POST("/payments/refresh", s.RefreshPayments)

	admin.GET("/companies", s.ListCompanies)
	admin.GET("/cashbook/:company/entries", s.ListCashbookEntries)
	admin.POST("/cashbook/:company/entries", s.CreateCashbookEntry)
	admin.PATCH("/cashbook/:company/entries/:id", s.UpdateCashbookEntry)
	admin.DELETE("/cashbook/:company/entries/:id", s.DeleteCashbookEntry)
	admin.GET("/cashbook/:company/balance", s.CashbookBalance)
	admin.GET("/cashbook/:company/next-receipt", s.NextReceiptNumber)
	admin.POST("/cashbook/:company/repair", s.RepairCashbook)
	admin.GET("/cashbook/:company/export", s.ExportCashbook)

	admin.GET("/reports/:period", s.MonthlyReport)
	admin.GET("/reports/:period/export", s.ExportMonthlyReport)

	admin.GET("/theme", s.GetTheme)
	admin.PUT("/theme", s.SetTheme)

	admin.GET("/access-logs", s.ListAccessLogs)
	admin.GET("/security-status", s.SecurityStatus)
}
