// Package app wires config, infrastructure and every domain package into a
// running gateway process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/domainforge/gateway/internal/audit"
	"github.com/domainforge/gateway/internal/auth"
	"github.com/domainforge/gateway/internal/config"
	"github.com/domainforge/gateway/internal/httpserver"
	"github.com/domainforge/gateway/internal/platform"
	"github.com/domainforge/gateway/internal/telemetry"
	"github.com/domainforge/gateway/pkg/domain"
	"github.com/domainforge/gateway/pkg/domainname"
	"github.com/domainforge/gateway/pkg/idempotency"
	"github.com/domainforge/gateway/pkg/purchase"
	"github.com/domainforge/gateway/pkg/ratelimit"
	"github.com/domainforge/gateway/pkg/registrar"
	"github.com/domainforge/gateway/pkg/registrar/namecheap"
	"github.com/domainforge/gateway/pkg/registrar/porkbun"
	"github.com/domainforge/gateway/pkg/search"
	"github.com/domainforge/gateway/pkg/spend"
)

// Run reads config, connects to infrastructure, and serves the HTTP API
// until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting domainforge gateway", "listen", cfg.ListenAddr(), "dry_run", cfg.IsDryRun())
	if cfg.IsDryRun() {
		logger.Warn("dry-run mode is ON: mutating registrar calls are simulated (set DRY_RUN=false to disable)")
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	driver, driverName, err := buildRegistrarDriver(cfg, rdb)
	if err != nil {
		return fmt.Errorf("building registrar driver: %w", err)
	}
	logger.Info("registrar driver selected", "driver", driverName)

	allowlist := domainname.NewAllowlist(cfg.AllowlistTLDs)
	domainStore := domain.NewStore(db)

	purchasePipeline := &purchase.Pipeline{
		Registrar:     driver,
		RegistrarName: driverName,
		DomainStore:   domainStore,
		SpendLedger:   spend.New(db),
		IdemLedger:    idempotency.New(db),
		Mutex:         idempotency.NewKeyMutex(),
		Audit:         auditWriter,
		Logger:        logger,
		AllowlistTLDs: allowlist,
		MaxPerTxnUSD:  decimal.NewFromFloat(cfg.MaxPerTxnUSD),
		MaxDailyUSD:   decimal.NewFromFloat(cfg.MaxDailyUSD),
		DefaultContact: registrar.Contact{
			FirstName: cfg.WinstonContactFirstName,
			LastName:  cfg.WinstonContactLastName,
			Email:     cfg.WinstonContactEmail,
			Phone:     cfg.WinstonContactPhone,
			Address:   cfg.WinstonContactAddress,
			City:      cfg.WinstonContactCity,
			State:     cfg.WinstonContactState,
			Zip:       cfg.WinstonContactZip,
			Country:   cfg.WinstonContactCountry,
		},
	}

	searchPipeline := &search.Pipeline{
		Registrar:     driver,
		Audit:         auditWriter,
		AllowlistTLDs: allowlist,
		DefaultLimit:  10,
		MaxLimit:      cfg.MaxDomainsPerSearch,
	}

	limiter := ratelimit.New(rdb, cfg.RateLimitRPM, cfg.RateLimitBurst)

	authenticator := &auth.APIKeyAuthenticator{DB: db}

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		DryRun:             cfg.IsDryRun(),
	}, logger, db, rdb, metricsReg)

	handlers := &httpserver.DomainHandlers{
		Logger:      logger,
		Audit:       auditWriter,
		Purchase:    purchasePipeline,
		Search:      searchPipeline,
		DomainStore: domainStore,
		RateLimiter: limiter,
	}

	srv.Router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(authenticator))
		handlers.Routes(r)
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildRegistrarDriver(cfg *config.Config, rdb *redis.Client) (registrar.Driver, string, error) {
	switch strings.ToLower(cfg.DefaultProvider) {
	case "porkbun":
		d := porkbun.New(porkbun.Config{
			APIKey:    cfg.PorkbunAPIKey,
			SecretKey: cfg.PorkbunSecretKey,
			DryRun:    cfg.IsDryRun(),
			RDB:       rdb,
		})
		return d, d.Name(), nil
	case "namecheap":
		d := namecheap.New(namecheap.Config{
			APIUser:  cfg.NamecheapAPIUser,
			APIKey:   cfg.NamecheapAPIKey,
			Username: cfg.NamecheapUsername,
			ClientIP: cfg.NamecheapClientIP,
			DryRun:   cfg.IsDryRun(),
			RDB:      rdb,
		})
		return d, d.Name(), nil
	default:
		return nil, "", fmt.Errorf("unknown DEFAULT_PROVIDER %q", cfg.DefaultProvider)
	}
}
