// Command houseadmin applies one-shot house configuration changes and
// prints the resulting settings.
//
//	houseadmin -fees 150
//	houseadmin -fee-recipient 0:abcd... -add-token USDT
//	houseadmin -credit 0:abcd... -amount 1000000000 -token TON
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/db"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/repositories"
	"github.com/darehouse/backend/internal/services"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	var (
		actor        = flag.String("actor", "", "admin address performing the change (default: first ADMIN_ADDRESSES entry)")
		fees         = flag.Int("fees", -1, "set the fee in basis points charged per side at accept")
		feeRecipient = flag.String("fee-recipient", "", "set the address fees are paid to")
		addToken     = flag.String("add-token", "", "allow a token for new bets")
		removeToken  = flag.String("remove-token", "", "disallow a token for new bets")
		creditTo     = flag.String("credit", "", "credit an address directly (test networks only)")
		amount       = flag.String("amount", "", "amount in token base units for -credit")
		token        = flag.String("token", "TON", "token for -credit")
	)
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	cfg := config.Load()
	if *actor == "" && len(cfg.AdminAddresses) > 0 {
		*actor = cfg.AdminAddresses[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "houseadmin", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, db.Migrations(), log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	settingsRepo := repositories.NewSettingsRepo(pool)
	if err := settingsRepo.EnsureDefaults(ctx, cfg.PlatformFeeBPS, cfg.FeeRecipient, cfg.SupportedTokens); err != nil {
		log.Fatal("failed to seed house settings", zap.Error(err))
	}
	admin := services.NewAdminService(settingsRepo, cfg.AdminAddresses, log)

	steps := []struct {
		enabled bool
		name    string
		run     func() error
	}{
		{*fees >= 0, "set fees", func() error { return admin.SetFees(ctx, *actor, *fees) }},
		{*feeRecipient != "", "set fee recipient", func() error { return admin.SetFeeRecipient(ctx, *actor, *feeRecipient) }},
		{*addToken != "", "add token", func() error { return admin.AddToken(ctx, *actor, *addToken) }},
		{*removeToken != "", "remove token", func() error { return admin.RemoveToken(ctx, *actor, *removeToken) }},
		{*creditTo != "", "credit", func() error {
			return credit(ctx, pool, settingsRepo, cfg, admin, *actor, *creditTo, *token, *amount, log)
		}},
	}

	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := s.run(); err != nil {
			log.Fatal(s.name+" failed", zap.String("actor", *actor), zap.Error(err))
		}
		log.Info(s.name+" done", zap.String("actor", *actor))
	}

	settings, err := admin.GetSettings(ctx)
	if err != nil {
		log.Fatal("failed to read settings", zap.Error(err))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(settings)
}

// credit books a deposit without a chain transfer, for seeding test
// balances. It refuses on mainnet.
func credit(
	ctx context.Context,
	pool *pgxpool.Pool,
	settingsRepo *repositories.SettingsRepo,
	cfg *config.Config,
	admin *services.AdminService,
	actor, owner, token, amount string,
	log *zap.Logger,
) error {
	if strings.EqualFold(cfg.TONNetwork, "mainnet") {
		return fmt.Errorf("-credit is disabled on mainnet")
	}
	if !admin.IsAdmin(actor) {
		return fmt.Errorf("%s is not an admin", actor)
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() <= 0 {
		return fmt.Errorf("-amount must be a positive integer, got %q", amount)
	}

	balanceRepo := repositories.NewBalanceRepo(pool)
	entryRepo := repositories.NewLedgerEntryRepo(pool)
	ledger := escrow.NewLedger(balanceRepo, entryRepo, settingsRepo)
	balances := services.NewBalanceService(pool, balanceRepo, entryRepo, ledger, nil, nil, log)

	_, err := balances.Deposit(ctx, owner, token, value, "houseadmin:"+uuid.NewString())
	return err
}
