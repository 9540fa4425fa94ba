package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// ServerConfig holds the knobs NewServer needs beyond its positional infra args.
type ServerConfig struct {
	CORSAllowedOrigins []string
	DryRun             bool
}

// Server bundles the router with the infrastructure handles reach into.
// Domain packages are mounted onto APIRouter by the caller; Server itself
// only owns the ambient concerns: health, readiness and metrics.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router

	Logger *slog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client

	dryRun    bool
	startedAt time.Time
}

// NewServer builds the router, wires global middleware, and mounts the
// ambient /health, /readyz and /metrics endpoints. Domain routes (some
// authenticated, some not) are mounted by the caller onto APIRouter.
func NewServer(cfg ServerConfig, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		dryRun:    cfg.DryRun,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/health", s.handleHealth)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.APIRouter = s.Router

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	UptimeSec float64 `json:"uptime_seconds"`
	DryRun    bool    `json:"dry_run"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	Respond(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		UptimeSec: time.Since(s.startedAt).Seconds(),
		DryRun:    s.dryRun,
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "NotReady", "database unreachable")
		return
	}
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "NotReady", "redis unreachable")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
