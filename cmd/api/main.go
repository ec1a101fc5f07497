package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/db"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/events"
	apphttp "github.com/darehouse/backend/internal/http"
	"github.com/darehouse/backend/internal/http/handlers"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/repositories"
	"github.com/darehouse/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "api", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, db.Migrations(), log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "api", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New()

	// Repositories
	betRepo := repositories.NewBetRepo(pool)
	eventRepo := repositories.NewEventRepo(pool)
	balanceRepo := repositories.NewBalanceRepo(pool)
	entryRepo := repositories.NewLedgerEntryRepo(pool)
	settingsRepo := repositories.NewSettingsRepo(pool)
	snapshotRepo := repositories.NewSnapshotRepo(pool)

	if err := settingsRepo.EnsureDefaults(ctx, cfg.PlatformFeeBPS, cfg.FeeRecipient, cfg.SupportedTokens); err != nil {
		log.Fatal("failed to seed house settings", zap.Error(err))
	}

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	ledger := escrow.NewLedger(balanceRepo, entryRepo, settingsRepo)
	betService := services.NewBetService(pool, betRepo, eventRepo, settingsRepo, ledger, publisher, m, services.Windows{
		ProofSubmission: cfg.ProofSubmissionWindow,
		ProofReview:     cfg.ProofReviewWindow,
		Mediation:       cfg.MediationWindow,
	}, log)
	adminService := services.NewAdminService(settingsRepo, cfg.AdminAddresses, log)
	balanceService := services.NewBalanceService(pool, balanceRepo, entryRepo, ledger, publisher, m, log)

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start ws hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, m, apphttp.Handlers{
		Bets:     handlers.NewBetHandler(betService, log),
		Mirror:   handlers.NewMirrorHandler(snapshotRepo, log),
		Admin:    handlers.NewAdminHandler(adminService, log),
		Balances: handlers.NewBalanceHandler(balanceService, log),
		WS:       wsHub,
		IsAdmin:  adminService.IsAdmin,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
