package handlers

import (
	"context"

	"github.com/darehouse/backend/internal/http/dto"
	"github.com/darehouse/backend/internal/middleware"
	"github.com/darehouse/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type BalanceReader interface {
	Balances(ctx context.Context, owner string) ([]models.Balance, error)
	Entries(ctx context.Context, owner string, limit int) ([]models.LedgerEntry, error)
}

type BalanceHandler struct {
	balances BalanceReader
	log      *zap.Logger
}

func NewBalanceHandler(balances BalanceReader, log *zap.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, log: log}
}

func (h *BalanceHandler) MyBalances(c *fiber.Ctx) error {
	balances, err := h.balances.Balances(c.UserContext(), middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewBalancesResponse(balances)})
}

func (h *BalanceHandler) MyEntries(c *fiber.Ctx) error {
	entries, err := h.balances.Entries(c.UserContext(), middleware.GetAddress(c), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewLedgerEntriesResponse(entries)})
}
