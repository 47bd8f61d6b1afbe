package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// training goals and athlete constants
	WeeklyGoalKm    float64 `toml:"weekly_goal_km"`
	YearlyGoalKm    float64 `toml:"yearly_goal_km"`
	PmaWatts        float64 `toml:"pma_watts"`
	DefaultWeightKg float64 `toml:"default_weight_kg"`

	// sync engine
	SyncIntervalMinutes int `toml:"sync_interval_minutes"`
	SyncGraceMinutes    int `toml:"sync_grace_minutes"`

	// wellness feed
	WellnessWindowDays int `toml:"wellness_window_days"`

	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`

	StravaRedirectURI string `toml:"strava_redirect_uri"`
	FrontendOrigin    string `toml:"frontend_origin"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlFile Toml
	if _, err := toml.DecodeFile(path, &tomlFile); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := tomlFile.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env %s missing", env)
	}

	cfg.Environment = env
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WeeklyGoalKm == 0 {
		c.WeeklyGoalKm = 200
	}
	if c.YearlyGoalKm == 0 {
		c.YearlyGoalKm = 8000
	}
	if c.SyncIntervalMinutes == 0 {
		c.SyncIntervalMinutes = 15
	}
	if c.WellnessWindowDays == 0 {
		c.WellnessWindowDays = 180
	}
	if c.LoginRateLimitAllowedPerMin == 0 {
		c.LoginRateLimitAllowedPerMin = 5
	}
}

// Secrets holds everything read from env vars, collected once in main
// and passed down explicitly, never read ad hoc by components.
type Secrets struct {
	StravaClientID     string
	StravaClientSecret string
	StravaRefreshToken string

	WellnessAthleteID string
	WellnessAPIKey    string

	// path to the service account JSON for the body-metrics source
	BodyMetricsCredentialsFile string

	RedisPassword string
	SentryDSN     string
}
