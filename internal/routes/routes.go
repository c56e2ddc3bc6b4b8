package routes

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kivu-credit/kivu_credit/internal/auth"
	"github.com/kivu-credit/kivu_credit/internal/config"
	"github.com/kivu-credit/kivu_credit/internal/custody"
	"github.com/kivu-credit/kivu_credit/internal/lending"
	"github.com/kivu-credit/kivu_credit/internal/middleware"
	"github.com/kivu-credit/kivu_credit/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Vault overrides the custody backend; defaults to the in-memory vault.
	Vault custody.Vault
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store lending.Store
	if d.DB != nil {
		pgStore := lending.NewPostgresStore(d.DB)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("ensure positions schema: %w", err)
		}
		store = pgStore
	} else {
		store = lending.NewMemoryStore()
	}

	vault := d.Vault
	if vault == nil {
		vault = custody.NewMemoryVault(d.Cfg.PoolAccount)
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	service := lending.NewService(store, vault, notifier, lending.Options{
		Owner:       d.Cfg.OwnerAddress,
		PoolAccount: d.Cfg.PoolAccount,
		Params: lending.RateParams{
			CollateralRatio:        big.NewInt(d.Cfg.CollateralRatio),
			BaseVariableBorrowRate: big.NewInt(d.Cfg.BaseVariableBorrowRate),
			OptimalUtilization:     big.NewInt(d.Cfg.OptimalUtilization),
			AboveOptimalRate:       big.NewInt(d.Cfg.AboveOptimalRate),
			BaseStableBorrowRate:   big.NewInt(d.Cfg.BaseStableBorrowRate),
		},
	})

	lendingHandler := lending.NewHandler(service)
	authHandler := auth.NewHandler(auth.NewService(d.Cfg))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, authHandler)
	RegisterLendingRoutes(api, lendingHandler, d)

	return nil
}
