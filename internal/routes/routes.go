package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/p2pcore/internal/config"
	"github.com/congo-pay/p2pcore/internal/identity"
	"github.com/congo-pay/p2pcore/internal/ledger"
	promcollector "github.com/congo-pay/p2pcore/internal/metrics/prometheus"
	"github.com/congo-pay/p2pcore/internal/middleware"
	"github.com/congo-pay/p2pcore/internal/notification"
	"github.com/congo-pay/p2pcore/internal/payments"
	"github.com/congo-pay/p2pcore/internal/resilience"
	"github.com/congo-pay/p2pcore/internal/session"
	"github.com/congo-pay/p2pcore/internal/transfer"
	"github.com/congo-pay/p2pcore/internal/txid"
	"github.com/congo-pay/p2pcore/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Base outlives individual requests; transfers started over HTTP run
	// under it so they survive the request that created them.
	Base context.Context
}

// Runtime exposes the services the server drives outside request handling.
type Runtime struct {
	Transfers *transfer.Service
	Backend   *resilience.Backend
	Identity  *identity.Service
	Wallets   *wallet.Service
	Sessions  *session.Manager
	Ledger    ledger.Ledger
	Registry  *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Base == nil {
		d.Base = context.Background()
	}

	rt, err := build(d)
	if err != nil {
		return nil, err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d, rt.Backend)
	RegisterMetricsRoute(app, rt.Registry)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	if d.Cfg.IsDevelopment() {
		RegisterDevRoutes(api, rt.Identity, rt.Wallets, rt.Ledger, d.Logger)
	}
	RegisterAuthRoutes(api, rt.Sessions, d.Cfg.SessionTTL, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMinute))

	// Protected routes
	guards := []fiber.Handler{middleware.SessionAuth(rt.Sessions)}
	if d.Cache != nil {
		guards = append(guards, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected := api.Group("", guards...)
	pinLimiter := middleware.PINRateLimit(d.Cache, d.Cfg.PINAttemptsPerMinute)

	RegisterWalletMeRoute(protected, rt.Wallets, d.Cfg.CurrencyExponent)
	RegisterRecipientRoutes(protected, rt.Identity)
	RegisterPINRoutes(protected, rt.Identity, pinLimiter)
	RegisterTransferRoutes(protected, payments.NewHandler(d.Base, rt.Transfers, d.Cfg.CurrencyExponent), pinLimiter)

	return rt, nil
}

func build(d Deps) (*Runtime, error) {
	cfg := d.Cfg

	var (
		ledgerBackend ledger.Ledger
		walletRepo    wallet.Repository
		identityRepo  identity.Repository
		journal       transfer.Journal
		store         session.Store
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		journal = transfer.NewPostgresJournal(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
		journal = transfer.NewMemoryJournal()
	}
	if d.Cache != nil {
		store = session.NewRedisStore(d.Cache)
	} else {
		store = session.NewMemoryStore()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := promcollector.NewCollector(cfg.MetricsNamespace)
	if err := collector.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	walletSvc := wallet.NewService(walletRepo, ledgerBackend).WithCurrency(cfg.Currency)
	identitySvc := identity.NewService(identityRepo)
	sessions := session.NewManager(store, identitySvc, cfg.SessionTTL, d.Logger.With("component", "session"))

	notifier := notification.NewLoggerNotifier(d.Logger)
	paymentSvc := payments.NewService(ledgerBackend, walletSvc, notifier, cfg.CurrencyExponent, d.Logger.With("component", "payments"))

	breakerCfg := resilience.DefaultConfig()
	breakerCfg.Timeout = cfg.SubmitTimeout
	breakerCfg.FailureThreshold = uint32(cfg.BreakerFailures)
	breakerCfg.OpenTimeout = cfg.BreakerOpenTimeout
	backend := resilience.NewBackend(paymentSvc, breakerCfg, collector, d.Logger.With("component", "breaker"))

	ids, err := txid.New()
	if err != nil {
		return nil, fmt.Errorf("transaction id generator: %w", err)
	}

	transfers := transfer.NewService(
		transfer.Deps{
			Balances:   walletSvc,
			Recipients: identitySvc,
			Verifier:   identitySvc,
			Backend:    backend,
			Journal:    journal,
			IDs:        ids,
		},
		transfer.WithLimits(transfer.Limits{Min: cfg.TransferMin, Max: cfg.TransferMax}),
		transfer.WithRetryPolicy(transfer.RetryPolicy{
			MaxAttempts: cfg.SubmitMaxAttempts,
			BaseDelay:   cfg.SubmitBackoff,
			MaxDelay:    cfg.SubmitMaxBackoff,
		}),
		transfer.WithAuthorizationTimeout(cfg.AuthorizationTimeout),
		transfer.WithMetrics(collector),
		transfer.WithLogger(d.Logger.With("component", "transfer")),
	)

	return &Runtime{
		Transfers: transfers,
		Backend:   backend,
		Identity:  identitySvc,
		Wallets:   walletSvc,
		Sessions:  sessions,
		Ledger:    ledgerBackend,
		Registry:  registry,
	}, nil
}
