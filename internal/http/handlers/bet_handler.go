package handlers

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/http/dto"
	"github.com/darehouse/backend/internal/middleware"
	"github.com/darehouse/backend/internal/models"
	"github.com/darehouse/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// BetLifecycle is the lifecycle surface the bet endpoints drive.
type BetLifecycle interface {
	Create(ctx context.Context, in services.CreateBetInput) (*models.Bet, error)
	Cancel(ctx context.Context, betID int64, actor string) (*models.Bet, error)
	Reject(ctx context.Context, betID int64, actor string) (*models.Bet, error)
	Accept(ctx context.Context, betID int64, actor string) (*models.Bet, error)
	SubmitProof(ctx context.Context, betID int64, actor, proof string) (*models.Bet, error)
	AcceptProof(ctx context.Context, betID int64, actor string) (*models.Bet, error)
	DisputeProof(ctx context.Context, betID int64, actor string) (*models.Bet, error)
	SubmitMediation(ctx context.Context, betID int64, actor, outcome string) (*models.Bet, error)
	Forfeit(ctx context.Context, betID int64, actor string) (*models.Bet, error)
	Claim(ctx context.Context, betID int64, actor string) (*models.Bet, error)
	GetBet(ctx context.Context, betID int64) (*models.BetWithState, error)
	ListBets(ctx context.Context, f models.BetFilter) ([]models.BetWithState, error)
	ListEvents(ctx context.Context, betID int64) ([]models.BetEvent, error)
}

type BetHandler struct {
	bets BetLifecycle
	now  func() time.Time
	log  *zap.Logger
}

func NewBetHandler(bets BetLifecycle, log *zap.Logger) *BetHandler {
	return &BetHandler{
		bets: bets,
		now:  func() time.Time { return time.Now().UTC() },
		log:  log,
	}
}

func (h *BetHandler) CreateBet(c *fiber.Ctx) error {
	var req dto.CreateBetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok {
		return badRequest(c, "amount must be an integer in token base units")
	}

	bet, err := h.bets.Create(c.UserContext(), services.CreateBetInput{
		Challenger: middleware.GetAddress(c),
		Challengee: req.Challengee,
		Mediator:   req.Mediator,
		Condition:  req.Condition,
		Amount:     amount,
		Deadline:   req.AcceptanceDeadline,
		Token:      req.Token,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: h.render(bet)})
}

func (h *BetHandler) GetBet(c *fiber.Ctx) error {
	id, ok := parseBetID(c)
	if !ok {
		return badRequest(c, "invalid bet id")
	}

	bet, err := h.bets.GetBet(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewBetWithStateResponse(bet)})
}

// ListBets filters by participant (an address or "me"), stored status and
// open=true.
func (h *BetHandler) ListBets(c *fiber.Ctx) error {
	f := models.BetFilter{
		Participant: c.Query("participant"),
		OpenOnly:    c.QueryBool("open", false),
		Limit:       c.QueryInt("limit", 50),
		Offset:      c.QueryInt("offset", 0),
	}
	if f.Participant == "me" {
		f.Participant = middleware.GetAddress(c)
	}
	if s := c.Query("status"); s != "" {
		status, err := betstate.ParseStatus(strings.ToUpper(s))
		if err != nil {
			return badRequest(c, "invalid status")
		}
		f.Status = &status
	}

	bets, err := h.bets.ListBets(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.log, err)
	}

	out := make([]dto.BetResponse, 0, len(bets))
	for i := range bets {
		out = append(out, dto.NewBetWithStateResponse(&bets[i]))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *BetHandler) GetBetEvents(c *fiber.Ctx) error {
	id, ok := parseBetID(c)
	if !ok {
		return badRequest(c, "invalid bet id")
	}

	events, err := h.bets.ListEvents(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewBetEventsResponse(events)})
}

func (h *BetHandler) CancelBet(c *fiber.Ctx) error { return h.act(c, h.bets.Cancel) }

func (h *BetHandler) RejectBet(c *fiber.Ctx) error { return h.act(c, h.bets.Reject) }

func (h *BetHandler) AcceptBet(c *fiber.Ctx) error { return h.act(c, h.bets.Accept) }

func (h *BetHandler) AcceptProof(c *fiber.Ctx) error { return h.act(c, h.bets.AcceptProof) }

func (h *BetHandler) DisputeProof(c *fiber.Ctx) error { return h.act(c, h.bets.DisputeProof) }

func (h *BetHandler) ForfeitBet(c *fiber.Ctx) error { return h.act(c, h.bets.Forfeit) }

func (h *BetHandler) ClaimBet(c *fiber.Ctx) error { return h.act(c, h.bets.Claim) }

func (h *BetHandler) SubmitProof(c *fiber.Ctx) error {
	var req dto.SubmitProofRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	return h.act(c, func(ctx context.Context, id int64, actor string) (*models.Bet, error) {
		return h.bets.SubmitProof(ctx, id, actor, req.Proof)
	})
}

func (h *BetHandler) SubmitMediation(c *fiber.Ctx) error {
	var req dto.SubmitMediationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	return h.act(c, func(ctx context.Context, id int64, actor string) (*models.Bet, error) {
		return h.bets.SubmitMediation(ctx, id, actor, req.Outcome)
	})
}

// act runs one lifecycle operation on the bet in the path as the caller.
func (h *BetHandler) act(c *fiber.Ctx, op func(ctx context.Context, betID int64, actor string) (*models.Bet, error)) error {
	id, ok := parseBetID(c)
	if !ok {
		return badRequest(c, "invalid bet id")
	}

	bet, err := op(c.UserContext(), id, middleware.GetAddress(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: h.render(bet)})
}

func (h *BetHandler) render(bet *models.Bet) dto.BetResponse {
	resp := dto.NewBetResponse(bet)
	resp.SetState(betstate.Current(bet.Snapshot(), h.now()))
	return resp
}
