package handlers

import (
	"context"
	"time"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/http/dto"
	"github.com/darehouse/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SnapshotReader interface {
	Get(ctx context.Context, betID int64) (*models.BetSnapshot, error)
	ListEvents(ctx context.Context, betID int64) ([]models.BetEvent, error)
}

// MirrorHandler serves the projector's read model. The effective status is
// derived here from the mirrored deadlines, the same way the lifecycle
// service derives it.
type MirrorHandler struct {
	snapshots SnapshotReader
	now       func() time.Time
	log       *zap.Logger
}

func NewMirrorHandler(snapshots SnapshotReader, log *zap.Logger) *MirrorHandler {
	return &MirrorHandler{
		snapshots: snapshots,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

func (h *MirrorHandler) GetSnapshot(c *fiber.Ctx) error {
	id, ok := parseBetID(c)
	if !ok {
		return badRequest(c, "invalid bet id")
	}

	snap, err := h.snapshots.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	resp := dto.NewSnapshotResponse(snap)
	resp.SetState(betstate.Current(snap.Snapshot(), h.now()))
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

func (h *MirrorHandler) GetSnapshotEvents(c *fiber.Ctx) error {
	id, ok := parseBetID(c)
	if !ok {
		return badRequest(c, "invalid bet id")
	}

	events, err := h.snapshots.ListEvents(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if len(events) == 0 {
		return respondError(c, h.log, betstate.ErrBetNotFound)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewBetEventsResponse(events)})
}
