package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/config"
	"github.com/imyrist/billing/internal/contract"
	"github.com/imyrist/billing/internal/gateway"
	"github.com/imyrist/billing/internal/ledger"
	"github.com/imyrist/billing/internal/middleware"
	"github.com/imyrist/billing/internal/notification"
	"github.com/imyrist/billing/internal/payment"
	"github.com/imyrist/billing/internal/promo"
	"github.com/imyrist/billing/internal/reconcile"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Storage backends: Postgres in deployment, in-memory twins for dev runs
	// without a database.
	var (
		ledgerBackend  ledger.Ledger
		accountRepo    account.Repository
		contractRepo   contract.Repository
		paymentRepo    payment.Repository
		promoRepo      promo.Repository
		reconcileStore reconcile.Store
	)
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		accountRepo = account.NewPostgresRepository(d.DB)
		contractRepo = contract.NewPostgresRepository(d.DB)
		paymentRepo = payment.NewPostgresRepository(d.DB)
		promoRepo = promo.NewPostgresRepository(d.DB)
		reconcileStore = reconcile.NewPostgresStore(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		accountRepo = account.NewMemoryRepository()
		contractRepo = contract.NewMemoryRepository()
		paymentRepo = payment.NewMemoryRepository()
		promoRepo = promo.NewMemoryRepository(accountRepo, ledgerBackend)
		reconcileStore = reconcile.NewMemoryStore(paymentRepo, ledgerBackend, contractRepo)
	}

	// External collaborators
	var gatewayClient gateway.Client
	if d.Cfg.GatewayConfigured() {
		gatewayClient = gateway.NewHTTPClient(d.Cfg.GatewayBaseURL, d.Cfg.GatewayTerminalKey, d.Cfg.GatewaySecretKey)
	} else {
		gatewayClient = gateway.StaticClient{}
	}
	trigger := contract.NewHTTPTrigger(d.Cfg.BaseURL, d.Cfg.WebhookSecret)
	notifier := notification.NewLoggerNotifier(d.Logger)

	// Services and handlers
	paymentSvc := payment.NewService(paymentRepo, accountRepo, contractRepo, ledgerBackend, gatewayClient, payment.Pricing{
		AnalysisPrice: d.Cfg.AnalysisPrice,
		TopupMin:      d.Cfg.TopupMin,
		TopupMax:      d.Cfg.TopupMax,
		BaseURL:       d.Cfg.BaseURL,
		TestMode:      !d.Cfg.GatewayConfigured(),
	}, d.Logger)
	promoSvc := promo.NewService(promoRepo, accountRepo, ledgerBackend)
	reconcileSvc := reconcile.NewService(paymentRepo, reconcileStore, trigger, notifier, d.Logger)

	accountHandler := account.NewHandler(accountRepo, ledgerBackend)
	paymentHandler := payment.NewHandler(paymentSvc)
	promoHandler := promo.NewHandler(promoSvc)
	webhookHandler := reconcile.NewHandler(reconcileSvc, d.Cfg.GatewaySecretKey)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// The gateway webhook authenticates by signature, not session, and must
	// stay outside the idempotency middleware: the gateway sends no
	// Idempotency-Key and redelivery is handled by the reconciler itself.
	RegisterWebhookRoutes(api, webhookHandler)

	// Session-protected routes
	sessionMW := middleware.Session(d.Cfg.SessionSecret)
	protected := api.Group("", sessionMW)
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(protected, accountHandler, paymentHandler)
	RegisterContractRoutes(protected, paymentHandler)
	RegisterPromoRoutes(protected, promoHandler)
	RegisterAdminRoutes(protected, accountHandler, promoHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
