package handlers

import (
	"errors"
	"strconv"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/http/dto"
	"github.com/darehouse/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var kindStatus = map[betstate.Kind]int{
	betstate.KindValidation:    fiber.StatusBadRequest,
	betstate.KindAuthorization: fiber.StatusForbidden,
	betstate.KindState:         fiber.StatusConflict,
	betstate.KindNotFound:      fiber.StatusNotFound,
}

// respondError maps a lifecycle rejection to its HTTP status. Unclassified
// errors are logged and reported as 500 without detail.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID := middleware.GetRequestID(c)

	var rejection *betstate.Error
	if errors.As(err, &rejection) {
		if status, ok := kindStatus[rejection.Kind]; ok {
			return c.Status(status).JSON(dto.ErrorResponse{Error: rejection.Reason, Kind: string(rejection.Kind), RequestID: reqID})
		}
	}

	log.Error("request failed",
		zap.String("request_id", reqID),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error", RequestID: reqID})
}

func badRequest(c *fiber.Ctx, msg string) error {
	reqID := middleware.GetRequestID(c)
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}

func parseBetID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
