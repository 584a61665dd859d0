package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fleet-system/internal/dto"
	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
	"fleet-system/pkg/service"
	"fleet-system/pkg/utils"
)

// AuthController mints actor tokens for trusted internal callers. User
// management lives in the fleet identity service; this endpoint only
// turns vetted claims into a signed token.
type AuthController struct {
	jwtService service.JWTService
	logger     *zap.Logger
}

func NewAuthController(jwtService service.JWTService, logger *zap.Logger) *AuthController {
	return &AuthController{jwtService: jwtService, logger: logger}
}

func (c *AuthController) IssueToken(ctx echo.Context) error {
	var payload dto.TokenRequestDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest)
	}
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err)
	}

	token, err := c.jwtService.GenerateToken(entities.Actor{
		ID:   payload.ActorID,
		Name: payload.ActorName,
		Role: constants.Role(payload.Role),
	})
	if err != nil {
		c.logger.Error("failed to sign token", zap.Error(err))
		return utils.ErrorResponse(ctx, err)
	}
	return utils.SuccessResponse(ctx, dto.TokenResponseDTO{Token: token}, "Token issued", http.StatusOK)
}
