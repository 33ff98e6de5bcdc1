// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/medifund/lending-backend/internal/config"
	"github.com/medifund/lending-backend/internal/handlers"
	"github.com/medifund/lending-backend/internal/integrations/ratefeed"
	"github.com/medifund/lending-backend/internal/lease"
	"github.com/medifund/lending-backend/internal/metrics"
	"github.com/medifund/lending-backend/internal/middleware"
	"github.com/medifund/lending-backend/internal/services"
)

// Services bundles the wired service layer so main can reach the pieces it
// schedules (the overdue sweep) without re-constructing them.
type Services struct {
	Auth     *services.AuthService
	Offers   *services.OfferService
	Loans    *services.LoanService
	Payments *services.PaymentService
}

// Setup wires services, handlers and routes onto a gin engine.
func Setup(db *gorm.DB, cfg *config.Config, collector *metrics.Collector) (*gin.Engine, *Services) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	leases := lease.NewKeeper(time.Duration(cfg.Loan.LeaseTimeoutMs) * time.Millisecond)

	var feed *ratefeed.Client
	if cfg.RateFeed.Enabled {
		feed = ratefeed.NewClient(cfg.RateFeed.URL, logrus.StandardLogger())
	}

	gateway := services.NewGatewayService(cfg)
	wallet := services.NewWalletService(cfg)
	notifications := services.NewNotificationService(cfg)
	storage := services.NewStorageService(cfg)

	svc := &Services{
		Auth:   services.NewAuthService(db, cfg),
		Offers: services.NewOfferService(db, cfg, feed),
	}
	svc.Loans = services.NewLoanService(db, cfg, leases, svc.Offers, notifications, wallet, collector)
	svc.Payments = services.NewPaymentService(db, cfg, leases, gateway, notifications, collector)

	authHandler := handlers.NewAuthHandler(svc.Auth)
	loanHandler := handlers.NewLoanHandler(svc.Loans, svc.Offers, storage)
	paymentHandler := handlers.NewPaymentHandler(svc.Payments)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(collector.Handler()))

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", middleware.AuthRateLimit(), authHandler.Register)
			auth.POST("/login", middleware.AuthRateLimit(), authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.GET("/profile", middleware.AuthRequired(), authHandler.Profile)
		}

		loans := v1.Group("/loans", middleware.AuthRequired())
		{
			loans.POST("", loanHandler.Submit)
			loans.GET("", loanHandler.List)
			loans.GET("/:id", loanHandler.Get)
			loans.PATCH("/:id/status", middleware.StaffRequired(), loanHandler.UpdateStatus)

			loans.GET("/:id/offers", loanHandler.GetOffers)
			loans.POST("/:id/offers/:offerId/select", loanHandler.SelectOffer)

			loans.GET("/:id/schedule", loanHandler.GetSchedule)
			loans.POST("/:id/payments", paymentHandler.PayInstallment)
			loans.POST("/:id/prepayments", paymentHandler.Prepay)

			loans.GET("/:id/comments", loanHandler.GetComments)
			loans.POST("/:id/comments", loanHandler.AddComment)
			loans.POST("/:id/documents", middleware.UploadRateLimit(), loanHandler.UploadDocument)
		}
	}

	return r, svc
}
