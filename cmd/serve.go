package cmd

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framefolio/ms-go-downloads/app/controller"
	"github.com/framefolio/ms-go-downloads/app/provider"
	"github.com/framefolio/ms-go-downloads/app/repository"
	"github.com/framefolio/ms-go-downloads/app/service"
	"github.com/framefolio/ms-go-downloads/app/types"
	"github.com/framefolio/ms-go-downloads/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the gallery downloads service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, galleryService, notifier, cleanup := mustCreateGalleryService()
	defer cleanup()

	notifier.Start()
	defer notifier.Stop()

	galleryController := controller.NewGalleryController(galleryService)
	webhookController := controller.NewWebhookController(galleryService)

	e := setupHTTPServer(galleryController, webhookController, cfg.App.AdminAPIKey)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	galleryController *controller.GalleryController,
	webhookController *controller.WebhookController,
	adminAPIKey string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())

	e.GET("/health", galleryController.Health)

	webhooks := e.Group("/webhooks")
	webhooks.POST("/stripe", webhookController.HandleStripeWebhook)

	sessions := e.Group("/sessions")
	sessions.GET("/:id/policy", galleryController.GetPolicy)
	sessions.GET("/:id/gallery", galleryController.GetGallery)
	sessions.POST("/:id/downloads", galleryController.RegisterDownload)

	admin := e.Group("/sessions", requireAdminKey(adminAPIKey))
	admin.PUT("/:id/policy", galleryController.UpdatePolicy)
	admin.GET("/:id/payments", galleryController.ListSessionPayments)

	return e
}

// requireAdminKey guards administrative routes with a static key check. An
// empty configured key rejects every request rather than opening the routes.
func requireAdminKey(adminAPIKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			provided := ctx.Request().Header.Get("X-API-Key")
			if adminAPIKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(adminAPIKey)) != 1 {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "unauthorized"})
			}
			return next(ctx)
		}
	}
}

func mustCreateGalleryService() (*config.Config, *service.GalleryService, *service.Notifier, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewPaymentEventRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	policyRepo := repository.NewDownloadPolicyRepository(db)

	verifier := provider.NewStripeVerifier(provider.StripeConfig{
		Secrets:                   cfg.Stripe.Secrets(),
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
	})

	notifier := service.NewNotifier(cfg.Notify)
	galleryService := service.NewGalleryService(
		paymentRepo,
		auditRepo,
		webhookRepo,
		policyRepo,
		verifier,
		notifier,
		cfg.Downloads,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, galleryService, notifier, cleanup
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}
