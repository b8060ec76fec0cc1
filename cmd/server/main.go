// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/waitlist-backend/internal/app"
	"github.com/unclebandit/waitlist-backend/internal/config"
	"github.com/unclebandit/waitlist-backend/internal/controller"
	"github.com/unclebandit/waitlist-backend/internal/db"
	"github.com/unclebandit/waitlist-backend/internal/handler"
	"github.com/unclebandit/waitlist-backend/internal/logger"
	"github.com/unclebandit/waitlist-backend/internal/queue"
	"github.com/unclebandit/waitlist-backend/internal/realtime"
	"github.com/unclebandit/waitlist-backend/internal/telemetry"
)

func main() {
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

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	conn, err := db.Connect(ctx, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	a, err := app.New(ctx, cfg, lg, conn)
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}

	hub := realtime.NewHub(lg)
	if err := a.Queue.Subscribe(queue.TopicSignups, hub.HandleNotice); err != nil {
		log.Fatalf("subscribe %s: %v", queue.TopicSignups, err)
	}

	router := newRouter(routes{
		Campaigns: &controller.CampaignController{CampaignService: a.Campaigns, Reporter: a.Reporter},
		Webhooks:  &controller.WebhookController{Webhooks: a.Webhooks, Reporter: a.Reporter},
		Waitlist:  &controller.WaitlistController{Waitlist: a.Waitlist, Stream: hub, Reporter: a.Reporter},
		CampaignAPI: &handler.CampaignHandler{
			Service:  a.Campaigns,
			Reporter: a.Reporter,
		},
		Templates: &handler.TemplateHandler{
			Repo:     a.TemplateRepo,
			Renderer: a.Renderer,
			Reporter: a.Reporter,
		},
		Metrics:     a.Metrics,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	hub.Close()
	if err := a.Close(); err != nil {
		lg.Error("queue close", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Error("tracing shutdown", zap.Error(err))
	}
}
