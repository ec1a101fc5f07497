package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/db"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/repositories"
	"github.com/darehouse/backend/internal/services"
	"github.com/darehouse/backend/internal/watcher"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "watcher", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "watcher", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		log.Fatal("failed to create river migrator", zap.Error(err))
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		log.Fatal("river migrations failed", zap.Error(err))
	}

	m := metrics.New()
	go m.Serve(ctx, ":"+cfg.MetricsPort, log)

	betRepo := repositories.NewBetRepo(pool)
	balanceRepo := repositories.NewBalanceRepo(pool)
	entryRepo := repositories.NewLedgerEntryRepo(pool)
	settingsRepo := repositories.NewSettingsRepo(pool)
	ledger := escrow.NewLedger(balanceRepo, entryRepo, settingsRepo)
	bets := services.NewBetService(pool, betRepo, repositories.NewEventRepo(pool), settingsRepo, ledger,
		events.NewRedisPublisher(rdb, log), m, services.Windows{
			ProofSubmission: cfg.ProofSubmissionWindow,
			ProofReview:     cfg.ProofReviewWindow,
			Mediation:       cfg.MediationWindow,
		}, log)

	// The sweep enqueues through the River client, which needs the workers
	// first; the insert func is bound once the client exists.
	var insertMu sync.Mutex
	var insert func(ctx context.Context, betID int64) error
	enqueue := watcher.EnqueueFunc(func(ctx context.Context, betID int64) error {
		insertMu.Lock()
		fn := insert
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, betID)
	})

	workers := watcher.NewWorkers(
		watcher.NewClaimWorker(bets, cfg.WatcherActor, m, log),
		watcher.NewSweepWorker(betRepo, enqueue, m, log),
	)

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.WatcherMaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{watcher.PeriodicSweep(cfg.WatcherSweepInterval)},
	})
	if err != nil {
		log.Fatal("failed to create river client", zap.Error(err))
	}

	insertMu.Lock()
	insert = func(ctx context.Context, betID int64) error {
		_, err := riverClient.Insert(ctx, watcher.ClaimBetArgs{BetID: betID}, nil)
		return err
	}
	insertMu.Unlock()

	if err := riverClient.Start(ctx); err != nil {
		log.Fatal("failed to start river client", zap.Error(err))
	}
	log.Info("watcher started",
		zap.String("actor", cfg.WatcherActor),
		zap.Duration("sweep_interval", cfg.WatcherSweepInterval),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down watcher")

	stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := riverClient.Stop(stopCtx); err != nil {
		log.Error("river did not stop cleanly", zap.Error(err))
	}
	cancel()
}
