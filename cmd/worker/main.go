package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlaverdet/velodash/internal/activities"
	"github.com/mlaverdet/velodash/internal/config"
	"github.com/mlaverdet/velodash/internal/db"
	"github.com/mlaverdet/velodash/internal/logging"
	"github.com/mlaverdet/velodash/internal/strava"
	"github.com/mlaverdet/velodash/internal/telemetry/metrics"
	"github.com/mlaverdet/velodash/internal/weight"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// how far back a cycle looks for new body-weight measurements
const weightIngestWindow = 30 * 24 * time.Hour

func main() {
	fmt.Println("starting worker ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> worker running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "velodash-worker",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost: cfg.PostgresHost,
		DBPort: cfg.PostgresPort,
		DBName: cfg.PostgresDBName,
	})
	if err != nil {
		log.Fatalf("new db pool: %s", err)
	}
	defer dbPool.Close()

	if err := db.Setup(ctx, dbPool); err != nil {
		log.Fatalf("db setup: %s", err)
	}

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("velodash", "worker", promRegistry)

	metricsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.PrometheusMetricsHost, cfg.PrometheusMetricsPort),
		Handler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	}
	go func() {
		log.Debugf(" > worker metrics listening on: [%s]", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("worker metrics, listen and serve: %s", err)
		}
	}()

	stravaClient := strava.NewClient(strava.NewClientParams{
		ClientID:     os.Getenv("VELODASH_STRAVA_CLIENT_ID"),
		ClientSecret: os.Getenv("VELODASH_STRAVA_CLIENT_SECRET"),
		RefreshToken: os.Getenv("VELODASH_STRAVA_REFRESH_TOKEN"),
		RedirectURI:  cfg.StravaRedirectURI,
	})

	activitiesRepo := activities.NewRepo(dbPool)
	syncer := activities.NewSyncer(activities.NewSyncerParams{
		Source:         stravaClient,
		Repo:           activitiesRepo,
		Grace:          time.Duration(cfg.SyncGraceMinutes) * time.Minute,
		MetricsManager: metricsManager,
	})

	// weight ingestion is optional: without credentials the worker only
	// syncs activities and refreshes the rollup cache
	var weightIngestor *weight.Ingestor
	if credentialsFile := os.Getenv("VELODASH_BODY_METRICS_CREDENTIALS_FILE"); credentialsFile != "" {
		weightSource, err := weight.NewGoogleFitSource(ctx, credentialsFile)
		if err != nil {
			log.Errorf("worker: create body metrics source: %s", err)
		} else {
			weightIngestor = weight.NewIngestor(weightSource, weight.NewRepo(dbPool), metricsManager)
		}
	} else {
		log.Warnln("VELODASH_BODY_METRICS_CREDENTIALS_FILE not set, weight ingestion disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	interval := time.Duration(cfg.SyncIntervalMinutes) * time.Minute
	log.Warnf("worker cycle interval: %s", interval)

	runCycle(ctx, syncer, weightIngestor)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle(ctx, syncer, weightIngestor)
		case receivedSig := <-chOsInterrupt:
			log.Warnf("signal [%s] received, stopping worker ...", receivedSig)
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Errorf("worker metrics server shutdown: %s", err)
			}
			log.Warnln("worker stopped")
			return
		}
	}
}

// runCycle is one pass of the background reconciliation: sync new
// activities, recompute the monthly rollup cache, pull in fresh weight
// measurements. A failing step does not stop the others, the next tick
// retries from the current watermark anyway.
func runCycle(
	ctx context.Context,
	syncer *activities.Syncer,
	weightIngestor *weight.Ingestor,
) {
	startedAt := time.Now()
	var errs error

	inserted, err := syncer.Sync(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("sync: %w", err))
	} else {
		log.Debugf("worker: %d new activities", inserted)
	}

	if err := syncer.RefreshMonthlyStats(ctx, time.Now().Year()); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("refresh monthly stats: %w", err))
	}

	if weightIngestor != nil {
		now := time.Now()
		stored, err := weightIngestor.Ingest(ctx, now.Add(-weightIngestWindow), now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("weight ingest: %w", err))
		} else {
			log.Debugf("worker: %d weight samples stored", stored)
		}
	}

	if errs != nil {
		log.Errorf("worker cycle finished with errors after %s: %s", time.Since(startedAt), errs)
		return
	}
	log.Debugf("worker cycle done in %s", time.Since(startedAt))
}
