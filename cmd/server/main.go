package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"courseplatform_echo/internal/checkout"
	"courseplatform_echo/internal/config"
	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/handlers"
	authMiddleware "courseplatform_echo/internal/middleware"
	"courseplatform_echo/internal/notify"
	"courseplatform_echo/internal/pricing"
	"courseplatform_echo/internal/services"
	"courseplatform_echo/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg.ConfigureLogging()

	// Initialize Database
	db, err := services.InitDB(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		logrus.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis is optional: it caches PayPal tokens and throttles activity writes
	var cache *services.RedisCache
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logrus.Warnf("Redis unavailable, running without cache: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// Initialize Firebase
	var verifier authMiddleware.TokenVerifier
	var issuer handlers.SessionIssuer
	authClient, err := services.InitFirebase(context.Background(), cfg.FirebaseCredentialsPath)
	if err != nil {
		logrus.Warnf("Firebase initialization failed: %v", err)
		logrus.Warn("Auth features will not work until valid credentials are provided")
	} else {
		verifier = authClient
		issuer = authClient
	}

	var sealer checkout.Sealer
	var opener checkout.SecretOpener
	if cfg.SecretBoxKey != "" {
		box, err := services.NewSecretBox(cfg.SecretBoxKey)
		if err != nil {
			logrus.Fatalf("Invalid SECRET_BOX_KEY: %v", err)
		}
		sealer, opener = box, box
	} else {
		logrus.Warn("SECRET_BOX_KEY not set, instructor PayPal accounts are disabled")
	}

	mailer := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)
	waha := services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey, cfg.WahaCountryCode)
	dispatcher := notify.NewDispatcher(db, mailer, waha, cfg.AppURL).WithOutbox(tasks.NewOutbox(db))

	engine := enrollment.NewEngine(db, dispatcher)
	resolver := enrollment.NewResolver(db)
	pricer := pricing.NewEngine(db)
	paypal := services.NewPaypalService(cfg.PaypalBaseURL, cfg.AppName, cfg.PaypalTimeout, cache)
	checkoutSvc := checkout.NewService(db, paypal, pricer, engine, opener, dispatcher, checkout.Options{
		AppURL: cfg.AppURL,
		PlatformCredentials: services.PaypalCredentials{
			ClientID: cfg.PaypalClientID,
			Secret:   cfg.PaypalSecret,
		},
		BankDetails: cfg.BankTransferDetails,
	})

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = authMiddleware.NewValidator()
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	var throttle authMiddleware.Throttle
	if cache != nil {
		throttle = cache
	}

	handlers.Routes{
		Auth:       handlers.NewAuthHandler(issuer, cfg.IsProduction()),
		Course:     handlers.NewCourseHandler(checkoutSvc),
		Payment:    handlers.NewPaymentHandler(checkoutSvc),
		Enrollment: handlers.NewEnrollmentHandler(db, engine, resolver),
		Lesson:     handlers.NewLessonHandler(resolver),
		Instructor: handlers.NewInstructorHandler(db, sealer),
		Preference: handlers.NewUserPreferenceHandler(db),
	}.Register(e,
		authMiddleware.RequireAuth(verifier, db),
		authMiddleware.TrackLastSeen(db, throttle, time.Now),
	)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Start server
	go func() {
		logrus.Infof("Server starting on port %s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Server stopped: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logrus.Errorf("Graceful shutdown failed: %v", err)
	}
}
