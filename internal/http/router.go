package http

import (
	"time"

	"github.com/darehouse/backend/internal/config"
	"github.com/darehouse/backend/internal/http/handlers"
	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Bets     *handlers.BetHandler
	Mirror   *handlers.MirrorHandler
	Admin    *handlers.AdminHandler
	Balances *handlers.BalanceHandler
	WS       *handlers.WSHub

	// IsAdmin gates the /admin routes.
	IsAdmin func(address string) bool
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	m *metrics.Metrics,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(middleware.MetricsMiddleware(m))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api/v1", middleware.AuthMiddleware(cfg, log))
	if rdb != nil {
		api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))
	}

	// Bets
	api.Post("/bets", h.Bets.CreateBet)
	api.Get("/bets", h.Bets.ListBets)
	api.Get("/bets/:id", h.Bets.GetBet)
	api.Get("/bets/:id/events", h.Bets.GetBetEvents)
	api.Post("/bets/:id/cancel", h.Bets.CancelBet)
	api.Post("/bets/:id/reject", h.Bets.RejectBet)
	api.Post("/bets/:id/accept", h.Bets.AcceptBet)
	api.Post("/bets/:id/proof", h.Bets.SubmitProof)
	api.Post("/bets/:id/proof/accept", h.Bets.AcceptProof)
	api.Post("/bets/:id/proof/dispute", h.Bets.DisputeProof)
	api.Post("/bets/:id/mediation", h.Bets.SubmitMediation)
	api.Post("/bets/:id/forfeit", h.Bets.ForfeitBet)
	api.Post("/bets/:id/claim", h.Bets.ClaimBet)

	// Ledger
	api.Get("/me/balances", h.Balances.MyBalances)
	api.Get("/me/entries", h.Balances.MyEntries)

	// Mirror (projector read model)
	api.Get("/mirror/bets/:id", h.Mirror.GetSnapshot)
	api.Get("/mirror/bets/:id/events", h.Mirror.GetSnapshotEvents)

	// House administration
	admin := api.Group("/admin", middleware.AdminMiddleware(h.IsAdmin))
	admin.Get("/settings/fees", h.Admin.GetSettings)
	admin.Put("/settings/fees", h.Admin.SetFees)
	admin.Put("/settings/fee-recipient", h.Admin.SetFeeRecipient)
	admin.Post("/tokens", h.Admin.AddToken)
	admin.Delete("/tokens/:token", h.Admin.RemoveToken)

	// WebSocket
	if h.WS != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WS.HandleWS))
	}
}
