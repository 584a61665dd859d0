package routes

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fleet-system/internal/controllers"
	"fleet-system/internal/repositories"
	"fleet-system/internal/services"
	"fleet-system/pkg/config"
	"fleet-system/pkg/eventbus"
	"fleet-system/pkg/middleware"
	"fleet-system/pkg/service"
	"fleet-system/pkg/websocket"
)

// Dependencies is everything the routers need wired in from main.
type Dependencies struct {
	DB     *pgxpool.Pool
	Cfg    *config.Config
	Logger *zap.Logger
	Bus    *eventbus.Bus
	Hub    *websocket.Hub
	Idem   repositories.IdempotencyRepositoryInterface
}

// Register wires repositories, services and controllers and mounts all
// routes.
func Register(e *echo.Echo, deps Dependencies) {
	jwtService := service.NewJWTService(deps.Cfg.JWT.SecretKey, deps.Cfg.JWT.TokenTTL)
	authMW := middleware.NewAuthMiddleware(jwtService, deps.Logger)

	requestRepository := repositories.NewRequestRepository(deps.DB)
	inspectionRepository := repositories.NewInspectionRepository(deps.DB)

	requestService := services.NewRequestService(
		requestRepository,
		deps.Idem,
		inspectionRepository,
		deps.Bus,
		deps.Logger,
		deps.Cfg.Workflow.CollaboratorTimeout,
		deps.Cfg.Workflow.IdempotencyKeyTTL,
		deps.Cfg.Workflow.RequoteLimit,
		deps.Cfg.Workflow.CommitRetries,
	)

	requestCtrl := controllers.NewRequestController(requestService, deps.Logger)
	inspectionCtrl := controllers.NewInspectionController(inspectionRepository, deps.Logger)
	authCtrl := controllers.NewAuthController(jwtService, deps.Logger)
	wsCtrl := controllers.NewWebsocketController(deps.Hub, deps.Logger)

	e.POST("/auth/token", authCtrl.IssueToken)

	api := e.Group("", authMW.Auth)
	api.GET("/ws", wsCtrl.Serve)

	api.POST("/requests", requestCtrl.CreateRequest)
	api.GET("/requests", requestCtrl.ListRequests)
	api.GET("/requests/:id", requestCtrl.FindRequest)
	api.GET("/requests/:id/history", requestCtrl.GetHistory)
	api.POST("/requests/:id/actions", requestCtrl.ApplyAction)
	api.POST("/requests/:id/messages", requestCtrl.SendMessage)
	api.POST("/requests/:id/read", requestCtrl.MarkRead)
	api.DELETE("/requests/:id", requestCtrl.PurgeRequest)

	api.POST("/inspections", inspectionCtrl.RecordInspection)
}
