package handlers

import (
	"context"

	"github.com/darehouse/backend/internal/http/dto"
	"github.com/darehouse/backend/internal/middleware"
	"github.com/darehouse/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type HouseAdmin interface {
	GetSettings(ctx context.Context) (*services.HouseSettings, error)
	SetFees(ctx context.Context, actor string, bps int) error
	SetFeeRecipient(ctx context.Context, actor, recipient string) error
	AddToken(ctx context.Context, actor, symbol string) error
	RemoveToken(ctx context.Context, actor, symbol string) error
}

type AdminHandler struct {
	admin HouseAdmin
	log   *zap.Logger
}

func NewAdminHandler(admin HouseAdmin, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

func (h *AdminHandler) GetSettings(c *fiber.Ctx) error {
	return h.settings(c, fiber.StatusOK)
}

func (h *AdminHandler) SetFees(c *fiber.Ctx) error {
	var req dto.SetFeesRequest
	if err := c.BodyParser(&req); err != nil || req.FeeBps == nil {
		return badRequest(c, "fee_bps is required")
	}

	if err := h.admin.SetFees(c.UserContext(), middleware.GetAddress(c), *req.FeeBps); err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("fees updated", zap.String("admin", middleware.GetAddress(c)), zap.Int("fee_bps", *req.FeeBps))
	return h.settings(c, fiber.StatusOK)
}

func (h *AdminHandler) SetFeeRecipient(c *fiber.Ctx) error {
	var req dto.SetFeeRecipientRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	if err := h.admin.SetFeeRecipient(c.UserContext(), middleware.GetAddress(c), req.Recipient); err != nil {
		return respondError(c, h.log, err)
	}
	return h.settings(c, fiber.StatusOK)
}

func (h *AdminHandler) AddToken(c *fiber.Ctx) error {
	var req dto.AddTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	if err := h.admin.AddToken(c.UserContext(), middleware.GetAddress(c), req.Symbol); err != nil {
		return respondError(c, h.log, err)
	}
	return h.settings(c, fiber.StatusCreated)
}

func (h *AdminHandler) RemoveToken(c *fiber.Ctx) error {
	if err := h.admin.RemoveToken(c.UserContext(), middleware.GetAddress(c), c.Params("token")); err != nil {
		return respondError(c, h.log, err)
	}
	return h.settings(c, fiber.StatusOK)
}

func (h *AdminHandler) settings(c *fiber.Ctx, status int) error {
	s, err := h.admin.GetSettings(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(status).JSON(dto.SuccessResponse{OK: true, Data: dto.NewSettingsResponse(&s.HouseSettings, s.Tokens)})
}
