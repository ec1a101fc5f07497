package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/db"
	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/identity"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/projector"
	"github.com/darehouse/backend/internal/repositories"
	"go.uber.org/zap"
)

// fallbackInterval bounds staleness when a notification is lost.
const fallbackInterval = 30 * time.Second

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "projector", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "projector", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New()
	go m.Serve(ctx, ":"+cfg.MetricsPort, log)

	resolver, err := identity.NewResolver(
		identity.NewClient(cfg.IdentityServiceURL, cfg.IdentityFetchTimeoutMS, cfg.IdentityFetchRetries, log),
		identity.NewPageParser("", cfg.IdentityFetchTimeoutMS, cfg.IdentityFetchRetries, log),
		repositories.NewProfileRepo(pool),
		cfg.IdentityCacheSize,
		m,
		log,
	)
	if err != nil {
		log.Fatal("failed to build identity resolver", zap.Error(err))
	}

	p := projector.New(
		repositories.NewSnapshotRepo(pool),
		repositories.NewEventRepo(pool),
		resolver,
		events.NewRedisPublisher(rdb, log),
		m,
		log,
	)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down projector")
		cancel()
	}()

	log.Info("projector started", zap.Bool("identity_service", cfg.IdentityServiceURL != ""))
	if err := p.Run(ctx, events.NewRedisSubscriber(rdb, log), fallbackInterval); err != nil {
		log.Fatal("projector stopped", zap.Error(err))
	}
}
