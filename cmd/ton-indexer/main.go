package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/db"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/events"
	"github.com/darehouse/backend/internal/indexer"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/repositories"
	"github.com/darehouse/backend/internal/services"
	"github.com/darehouse/backend/internal/ton"
	"github.com/redis/go-redis/v9"
	"github.com/xssnick/tonutils-go/address"
	"go.uber.org/zap"
)

const (
	redisCursorLT   = "ton-indexer:cursor:lt"
	redisCursorHash = "ton-indexer:cursor:hash"
	pollInterval    = 5 * time.Second
)

// redisCursor keeps the scan position in Redis.
type redisCursor struct {
	rdb *redis.Client
}

func (c redisCursor) Load(ctx context.Context) (uint64, bool, error) {
	val, err := c.rdb.Get(ctx, redisCursorLT).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	lt, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cursor %q: %w", val, err)
	}
	return lt, true, nil
}

func (c redisCursor) Save(ctx context.Context, head ton.Head) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisCursorLT, strconv.FormatUint(head.LT, 10), 0)
		p.Set(ctx, redisCursorHash, hex.EncodeToString(head.Hash), 0)
		return nil
	})
	return err
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TONHotWalletAddress == "" {
		log.Fatal("TON_HOT_WALLET_ADDRESS is required")
	}

	hotWallet, err := address.ParseAddr(cfg.TONHotWalletAddress)
	if err != nil {
		log.Fatal("invalid TON_HOT_WALLET_ADDRESS", zap.String("addr", cfg.TONHotWalletAddress), zap.Error(err))
	}

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "ton-indexer", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "ton-indexer", log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New()
	go m.Serve(ctx, ":"+cfg.MetricsPort, log)

	balanceRepo := repositories.NewBalanceRepo(pool)
	entryRepo := repositories.NewLedgerEntryRepo(pool)
	settingsRepo := repositories.NewSettingsRepo(pool)
	ledger := escrow.NewLedger(balanceRepo, entryRepo, settingsRepo)
	balances := services.NewBalanceService(pool, balanceRepo, entryRepo, ledger, events.NewRedisPublisher(rdb, log), m, log)

	tonAPI, err := ton.Connect(ctx, cfg.TONNetwork, cfg.LiteServerHost, cfg.LiteServerPort, cfg.LiteServerKey, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

	ix := indexer.New(ton.NewScanner(tonAPI, hotWallet), redisCursor{rdb: rdb}, balances, log)
	if err := ix.Init(ctx); err != nil {
		log.Fatal("failed to initialize cursor", zap.Error(err))
	}

	log.Info("TON indexer started",
		zap.String("hot_wallet", hotWallet.String()),
		zap.String("network", cfg.TONNetwork),
	)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down TON indexer")
		cancel()
	}()

	if err := ix.Run(ctx, pollInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("indexer stopped", zap.Error(err))
	}
}
