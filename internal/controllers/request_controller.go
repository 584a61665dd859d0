package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fleet-system/internal/dto"
	"fleet-system/internal/services"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/utils"
)

type RequestController struct {
	requestService *services.RequestService
	logger         *zap.Logger
}

func NewRequestController(requestService *services.RequestService, logger *zap.Logger) *RequestController {
	return &RequestController{requestService: requestService, logger: logger}
}

func (c *RequestController) CreateRequest(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	var payload dto.CreateServiceRequestDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	req, err := c.requestService.CreateRequest(reqCtx, actor, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, req, "Service request created", http.StatusCreated)
}

// ApplyAction is the single mutation endpoint: the action name rides in
// the body, the optional idempotency key in the X-Idempotency-Key
// header.
func (c *RequestController) ApplyAction(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	var payload dto.ApplyActionDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	payload.IdempotencyKey = ctx.Request().Header.Get("X-Idempotency-Key")

	req, err := c.requestService.ApplyAction(reqCtx, actor, ctx.Param("id"), payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, req, "Action applied", http.StatusOK)
}

func (c *RequestController) SendMessage(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	var payload dto.SendMessageDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	msg, err := c.requestService.SendMessage(reqCtx, actor, ctx.Param("id"), payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, msg, "Message sent", http.StatusCreated)
}

func (c *RequestController) MarkRead(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	var payload dto.MarkReadDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	if err := c.requestService.MarkRead(reqCtx, actor, ctx.Param("id"), payload.Side); err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, struct{}{}, "Thread marked as read", http.StatusOK)
}

func (c *RequestController) ListRequests(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	var filter dto.ListRequestsFilterDTO
	if err := ctx.Bind(&filter); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest)
	}
	if err := ctx.Validate(&filter); err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	summaries, total, err := c.requestService.ListRequests(reqCtx, actor, filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, map[string]interface{}{
		"list":  summaries,
		"total": total,
	}, "Requests listed", http.StatusOK)
}

func (c *RequestController) FindRequest(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	req, err := c.requestService.FindRequest(reqCtx, actor, ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, req, "Request found", http.StatusOK)
}

// GetHistory returns the audit trail; ?order=desc flips to newest
// first.
func (c *RequestController) GetHistory(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	newestFirst := ctx.QueryParam("order") == "desc"
	entries, err := c.requestService.GetHistory(reqCtx, actor, ctx.Param("id"), newestFirst)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, entries, "History loaded", http.StatusOK)
}

func (c *RequestController) PurgeRequest(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	if err := c.requestService.PurgeRequest(reqCtx, actor, ctx.Param("id")); err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, struct{}{}, "Request purged", http.StatusOK)
}
