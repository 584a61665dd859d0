package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fleet-system/internal/dto"
	"fleet-system/internal/entities"
	"fleet-system/internal/repositories"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
	"fleet-system/pkg/utils"
)

type InspectionController struct {
	inspectionRepository repositories.InspectionRepositoryInterface
	logger               *zap.Logger
}

func NewInspectionController(inspectionRepository repositories.InspectionRepositoryInterface, logger *zap.Logger) *InspectionController {
	return &InspectionController{inspectionRepository: inspectionRepository, logger: logger}
}

// RecordInspection registers a completed safety inspection. Staff only:
// requesters cannot clear their own vehicles for intake.
func (c *InspectionController) RecordInspection(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	actor, err := utils.ActorFromContext(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err)
	}
	if !constants.IsStaffRole(actor.Role) {
		return utils.ErrorResponse(ctx, apperrors.ErrRoleNotPermitted)
	}

	var payload dto.RecordInspectionDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	inspection := &entities.VehicleInspection{
		VehiclePlate: payload.VehiclePlate,
		Inspector:    payload.Inspector,
		Passed:       payload.Passed,
	}
	if err := c.inspectionRepository.RecordInspection(reqCtx, inspection); err != nil {
		c.logger.Error("failed to record inspection", zap.String("plate", payload.VehiclePlate), zap.Error(err))
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, inspection, "Inspection recorded", http.StatusCreated)
}
