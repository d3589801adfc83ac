package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

type RouterConfig struct {
	Turns    TurnHandler
	Records  RecordReader
	Postgres Pinger        // nil unless the postgres store is in use
	Redis    *redis.Client // nil unless sessions or locks use Redis
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/messages", messageHandler(cfg.Turns, logger))
	r.Get("/slots/{department}/{date}/{time}", slotHandler(cfg.Records))
	r.Get("/patients/{id}", patientHandler(cfg.Records))

	return r
}
