package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"courseplatform_echo/internal/config"
	"courseplatform_echo/internal/enrollment"
	"courseplatform_echo/internal/notify"
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
	db, err := services.InitDB(cfg.DatabaseURL, false)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	deps := tasks.Deps{Now: time.Now}
	if cfg.RedisURL != "" {
		cache, err := services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logrus.Warnf("Redis unavailable, jobs run without locks: %v", err)
		} else {
			defer cache.Close()
			deps.Locker = cache
		}
	}

	mailer := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom)
	waha := services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey, cfg.WahaCountryCode)
	deps.Dispatcher = notify.NewDispatcher(db, mailer, waha, cfg.AppURL).WithOutbox(tasks.NewOutbox(db))
	deps.Engine = enrollment.NewEngine(db, deps.Dispatcher)

	// Initialize Task Registry
	tasks.DefineTasks(tasks.GlobalRegistry, deps)
	runner := tasks.NewRunner(db, tasks.GlobalRegistry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seeded, err := tasks.SeedDefaults(ctx, db, time.Now())
	if err != nil {
		logrus.Fatalf("Failed to seed daily jobs: %v", err)
	}
	if len(seeded) > 0 {
		logrus.Infof("Scheduled %d daily jobs", len(seeded))
	}

	cronLogger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	_, err = c.AddFunc(cfg.WorkerTick, func() {
		if _, err := runner.ProcessDue(ctx); err != nil {
			logrus.Errorf("Error processing tasks: %v", err)
		}
	})
	if err != nil {
		logrus.Fatalf("Invalid WORKER_TICK %q: %v", cfg.WorkerTick, err)
	}

	// Run once on start, then on every tick
	if _, err := runner.ProcessDue(ctx); err != nil {
		logrus.Errorf("Error processing tasks: %v", err)
	}
	c.Start()
	logrus.Infof("Worker started, checking tasks %s", cfg.WorkerTick)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logrus.Info("Shutting down worker...")

	cancel()
	<-c.Stop().Done()
}
