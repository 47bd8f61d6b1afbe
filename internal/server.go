package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mlaverdet/velodash/internal/activities"
	"github.com/mlaverdet/velodash/internal/auth"
	"github.com/mlaverdet/velodash/internal/config"
	"github.com/mlaverdet/velodash/internal/dashboard"
	"github.com/mlaverdet/velodash/internal/db"
	"github.com/mlaverdet/velodash/internal/middleware"
	"github.com/mlaverdet/velodash/internal/strava"
	"github.com/mlaverdet/velodash/internal/telemetry/metrics"
	"github.com/mlaverdet/velodash/internal/telemetry/tracing"
	"github.com/mlaverdet/velodash/internal/weight"
	"github.com/mlaverdet/velodash/internal/wellness"
	"github.com/mlaverdet/velodash/pkg"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool

	stravaClient     *strava.Client
	dashboardService *dashboard.Service

	redisClient  *redis.Client
	loginChecker *auth.LoginChecker
	authService  *auth.Service

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	Secrets                 config.Secrets
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	if err := db.Setup(ctx, dbPool); err != nil {
		return nil, fmt.Errorf("db setup: %w", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("velodash", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.Secrets.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewService(auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(
		params.HoneycombTracingEnabled, "velodash-backend", rdb,
	)
	if err != nil {
		return nil, err
	}

	tracedHttpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	stravaClient := strava.NewClient(strava.NewClientParams{
		ClientID:     params.Secrets.StravaClientID,
		ClientSecret: params.Secrets.StravaClientSecret,
		RefreshToken: params.Secrets.StravaRefreshToken,
		RedirectURI:  params.Config.StravaRedirectURI,
		HTTPClient:   tracedHttpClient,
	})

	activitiesRepo := activities.NewRepo(dbPool)
	syncer := activities.NewSyncer(activities.NewSyncerParams{
		Source:         stravaClient,
		Repo:           activitiesRepo,
		Grace:          time.Duration(params.Config.SyncGraceMinutes) * time.Minute,
		MetricsManager: metricsManager,
	})

	wellnessApi := wellness.NewApi(
		wellness.DefaultAPIURL,
		params.Secrets.WellnessAthleteID,
		params.Secrets.WellnessAPIKey,
		tracedHttpClient,
	)

	dashboardService := dashboard.NewService(dashboard.NewServiceParams{
		Repo:               activitiesRepo,
		Syncer:             syncer,
		Streams:            stravaClient,
		Wellness:           wellnessApi,
		Weights:            weight.NewRepo(dbPool),
		Analyzer:           activities.NewAnalyzer(params.Config.WeeklyGoalKm, params.Config.YearlyGoalKm),
		PMAWatts:           params.Config.PmaWatts,
		DefaultWeightKg:    params.Config.DefaultWeightKg,
		WellnessWindowDays: params.Config.WellnessWindowDays,
	})

	return &Server{
		config:           params.Config,
		dbPool:           dbPool,
		versionInfo:      params.VersionInfo,
		stravaClient:     stravaClient,
		dashboardService: dashboardService,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("velodash-router"))

	dashboardHandler := dashboard.NewHandler(
		s.dashboardService,
		s.stravaClient,
		s.authService,
		s.loginChecker,
		s.config.FrontendOrigin,
	)

	r.HandleFunc("/dashboard", dashboardHandler.HandleDashboard).
		Methods("GET", "OPTIONS").Name("dashboard")
	r.HandleFunc("/dashboard/activity/{id}", dashboardHandler.HandleActivity).
		Methods("GET", "OPTIONS").Name("activity-detail")
	r.HandleFunc("/dashboard/progress/years", dashboardHandler.HandleYearsProgress).
		Methods("GET", "OPTIONS").Name("years-progress")
	r.HandleFunc("/dashboard/weight/history", dashboardHandler.HandleWeightHistory).
		Methods("GET", "OPTIONS").Name("weight-history")

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	authRouter := r.PathPrefix("/a").Subrouter()
	authRouter.Use(middleware.RateLimit(
		reqRateLimiter,
		"auth",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	))
	authRouter.HandleFunc("/login", dashboardHandler.HandleLogin).
		Methods("GET", "OPTIONS").Name("login")
	authRouter.HandleFunc("/redirect", dashboardHandler.HandleRedirect).
		Methods("GET", "OPTIONS").Name("login-redirect")
	authRouter.HandleFunc("/logout", dashboardHandler.HandleLogout).
		Methods("GET", "OPTIONS").Name("logout")
	authRouter.HandleFunc("/check", dashboardHandler.HandleCheck).
		Methods("GET", "OPTIONS").Name("check-session")

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
	}).Methods("GET").Name("root")

	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, s.versionInfo)
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.loginChecker)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.FrontendOrigin))
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
