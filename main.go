package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "bess-edge/internal/api/http"
	"bess-edge/internal/audit"
	"bess-edge/internal/auth"
	balancingrepo "bess-edge/internal/balancing/infrastructure/postgres"
	"bess-edge/internal/cache"
	forecastrepo "bess-edge/internal/forecast/infrastructure/postgres"
	insightsrepo "bess-edge/internal/insights/infrastructure/postgres"
	insightsnotify "bess-edge/internal/insights/notify"
	"bess-edge/internal/observability/metrics"
	pipeline "bess-edge/internal/pipeline/application"
	signalrepo "bess-edge/internal/signal/infrastructure/postgres"
	telemetryrepo "bess-edge/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	pipelineCfg, err := pipeline.LoadConfig()
	if err != nil {
		logger.Fatalf("pipeline config error: %v", err)
	}
	if len(pipelineCfg.SiteIDs) == 0 {
		logger.Fatal("no sites configured: set EDGE_SITES or site_ids in EDGE_CONFIG")
	}

	telemetryReader := telemetryrepo.NewReader(db)
	signalStore := signalrepo.NewRepository(db)
	forecastStore := forecastrepo.NewRepository(db)
	balancingStore := balancingrepo.NewRepository(db)
	insightsStore := insightsrepo.NewRepository(db)

	var notifier insightsnotify.Notifier
	if cfg.AlertWebhookURL != "" {
		notifier = insightsnotify.NewWebhookNotifier(cfg.AlertWebhookURL, insightsnotify.WithTimeout(cfg.AlertNotifyTimeout))
	}

	runner, err := pipeline.NewRunner(
		telemetryReader,
		telemetryReader,
		signalStore,
		forecastStore,
		balancingStore,
		insightsStore,
		notifier,
		pipelineCfg,
		logger,
	)
	if err != nil {
		logger.Fatalf("pipeline runner error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := pipeline.NewScheduler(runner, cfg.TickInterval, logger)
	go scheduler.Start(ctx)

	if path := os.Getenv("EDGE_CONFIG"); path != "" {
		go func() {
			if err := pipeline.WatchConfig(ctx, path, runner, logger); err != nil {
				logger.Printf("config watch error: %v", err)
			}
		}()
	}

	var respCache *cache.Cache
	if cfg.RedisAddr != "" {
		respCache, err = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cache.WithTTL(cfg.CacheTTL))
		if err != nil {
			logger.Fatalf("redis cache error: %v", err)
		}
		defer respCache.Close()
	}

	auditRepo := audit.NewRepository(db)

	apiHandler, err := apihttp.NewHandler(signalStore, forecastStore, balancingStore, insightsStore, respCache, auditRepo, logger)
	if err != nil {
		logger.Fatalf("api handler error: %v", err)
	}

	authMiddleware := auth.NewMiddleware(
		[]byte(cfg.JWTSecret),
		auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", apiHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	TickInterval       time.Duration
	AlertWebhookURL    string
	AlertNotifyTimeout time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	CacheTTL           time.Duration
	JWTSecret          string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		TickInterval:       getenvDuration("PIPELINE_TICK_INTERVAL", time.Minute),
		AlertWebhookURL:    getenvDefault("ALERT_WEBHOOK_URL", ""),
		AlertNotifyTimeout: getenvDuration("ALERT_NOTIFY_TIMEOUT", 10*time.Second),
		RedisAddr:          getenvDefault("REDIS_ADDR", ""),
		RedisPassword:      getenvDefault("REDIS_PASSWORD", ""),
		RedisDB:            getenvIntDefault("REDIS_DB", 0),
		CacheTTL:           getenvDuration("CACHE_TTL", 30*time.Second),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
