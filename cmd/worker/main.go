package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/waitlist-backend/internal/app"
	"github.com/unclebandit/waitlist-backend/internal/config"
	"github.com/unclebandit/waitlist-backend/internal/db"
	"github.com/unclebandit/waitlist-backend/internal/logger"
	"github.com/unclebandit/waitlist-backend/internal/service"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

func main() {
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName+"-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer shutdownTracing(context.Background())

	conn, err := db.Connect(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	a, err := app.New(ctx, cfg, lg, conn)
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}
	defer a.Close()

	// Pending welcomes are sent by POST /api/emails/send-welcome unless the
	// worker is told to take them over.
	var welcomes service.PendingWelcomeSender
	if cfg.WorkerWelcomes {
		welcomes = a.Waitlist
	}
	w := service.NewWorker(a.Campaigns, welcomes, cfg.WorkerEvery, lg)
	if *once {
		w.RunOnce(ctx)
		return
	}

	lg.Info("worker running", zap.Duration("interval", cfg.WorkerEvery), zap.Bool("welcomes", cfg.WorkerWelcomes))
	w.Start(ctx)
	lg.Info("worker stopped")
}
