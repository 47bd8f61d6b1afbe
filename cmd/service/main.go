package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/mlaverdet/velodash/internal"
	"github.com/mlaverdet/velodash/internal/config"
	"github.com/mlaverdet/velodash/internal/logging"
	"github.com/mlaverdet/velodash/pkg"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	secrets := gatherSecrets()

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        secrets.SentryDSN,
		SentryServerName: "velodash-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	if otelServiceName := os.Getenv("OTEL_SERVICE_NAME"); otelServiceName == "" {
		log.Warnln("OTEL_SERVICE_NAME env var not set")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			Secrets:                 secrets,
			VersionInfo:             versionInfo,
			HoneycombTracingEnabled: honeycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	// go to sleep 🥱
	server.GracefulShutdown()
}

// gatherSecrets reads all env var secrets in one place, so components
// get them passed down explicitly instead of reading ad hoc.
func gatherSecrets() config.Secrets {
	secrets := config.Secrets{
		StravaClientID:             os.Getenv("VELODASH_STRAVA_CLIENT_ID"),
		StravaClientSecret:         os.Getenv("VELODASH_STRAVA_CLIENT_SECRET"),
		StravaRefreshToken:         os.Getenv("VELODASH_STRAVA_REFRESH_TOKEN"),
		WellnessAthleteID:          os.Getenv("VELODASH_WELLNESS_ATHLETE_ID"),
		WellnessAPIKey:             os.Getenv("VELODASH_WELLNESS_API_KEY"),
		BodyMetricsCredentialsFile: os.Getenv("VELODASH_BODY_METRICS_CREDENTIALS_FILE"),
		RedisPassword:              os.Getenv("VELODASH_REDIS_PASS"),
		SentryDSN:                  os.Getenv("SENTRY_DSN"),
	}

	if secrets.StravaClientID == "" || secrets.StravaClientSecret == "" {
		log.Errorf("strava client credentials not set, use VELODASH_STRAVA_CLIENT_ID and VELODASH_STRAVA_CLIENT_SECRET")
	}
	if secrets.StravaRefreshToken == "" {
		log.Errorf("strava refresh token not set, use VELODASH_STRAVA_REFRESH_TOKEN")
	}
	if secrets.WellnessAthleteID == "" || secrets.WellnessAPIKey == "" {
		log.Errorf("wellness api access not set, use VELODASH_WELLNESS_ATHLETE_ID and VELODASH_WELLNESS_API_KEY")
	}
	if secrets.RedisPassword == "" {
		log.Errorf("redis password not set, use VELODASH_REDIS_PASS")
	}

	return secrets
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return pkg.BytesToString(stdout), nil
}
