// Command gguf-sync runs the GGUF model metadata harvester, either once
// (--once) or as a cron-scheduled daemon exposing a local status server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/gguf-harvester/infrastructure/logging"
	"github.com/R3E-Network/gguf-harvester/infrastructure/metrics"
	"github.com/R3E-Network/gguf-harvester/infrastructure/state"
	"github.com/R3E-Network/gguf-harvester/infrastructure/utils"
	"github.com/R3E-Network/gguf-harvester/internal/alerts"
	"github.com/R3E-Network/gguf-harvester/internal/config"
	"github.com/R3E-Network/gguf-harvester/internal/hub"
	"github.com/R3E-Network/gguf-harvester/internal/model"
	"github.com/R3E-Network/gguf-harvester/internal/orchestrator"
	"github.com/R3E-Network/gguf-harvester/internal/recovery"
	"github.com/R3E-Network/gguf-harvester/internal/statusserver"
)

func main() {
	once := flag.Bool("once", false, "run a single sync and exit")
	dryRun := flag.Bool("dry-run", false, "validate configuration and plan without writing artifacts")
	flag.Parse()

	log := logging.NewFromEnv("gguf-sync")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(context.Background(), "load configuration", err)
	}

	metrics.Init("gguf-sync")

	hubClient, err := hub.NewClient(hub.Config{
		BaseURL: cfg.HubBaseURL,
		Token:   cfg.HubToken,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		log.Fatal(context.Background(), "create hub client", err)
	}

	stateBackend, err := state.NewFileBackend(cfg.DataDir)
	if err != nil {
		log.Fatal(context.Background(), "create state backend", err)
	}

	recoveryLayer := recovery.NewLayer(cfg.BackupDir, log)

	channels := []alerts.Channel{alerts.NewLogChannel(log)}
	if cfg.WebhookURL != "" {
		channels = append(channels, alerts.NewWebhookChannel(cfg.WebhookURL))
	}
	dispatcher := alerts.NewDispatcher(channels...)

	orch := orchestrator.New(cfg, hubClient, recoveryLayer, dispatcher, stateBackend, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *dryRun {
		log.Info(ctx, "dry run: configuration loaded successfully", nil)
		return
	}

	if *once {
		runSync(ctx, orch, log)
		return
	}

	srv := statusserver.New(log)
	httpServer := &http.Server{Addr: cfg.StatusAddr, Handler: srv}
	utils.SafeGo(func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "status server stopped", err, nil)
		}
	}, func(err error) {
		log.Error(ctx, "status server panicked", err, nil)
	})

	c := cron.New()
	_, err = c.AddFunc(cfg.CronSchedule, func() {
		utils.SafeGo(func() {
			report := runSync(ctx, orch, log)
			if report != nil {
				srv.SetLatestReport(report)
			}
		}, func(err error) {
			log.Error(ctx, "sync run panicked", err, nil)
		})
	})
	if err != nil {
		log.Fatal(ctx, "schedule sync cron job", err)
	}
	c.Start()
	defer c.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info(ctx, "shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

func runSync(ctx context.Context, orch *orchestrator.Orchestrator, log *logging.Logger) *model.UpdateReport {
	report, err := orch.Run(ctx)
	if err != nil {
		log.Error(ctx, "sync run failed", err, nil)
		os.Exit(1)
	}
	if report != nil && !report.OverallSuccess {
		log.Error(ctx, "sync run completed with failures", nil, map[string]interface{}{"run_id": report.RunID})
	}
	return report
}
