package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"fleet-system/internal/listeners"
	"fleet-system/internal/repositories"
	"fleet-system/internal/routes"
	"fleet-system/migrations"
	"fleet-system/pkg/config"
	"fleet-system/pkg/customvalidator"
	"fleet-system/pkg/database/postgresql"
	"fleet-system/pkg/eventbus"
	applogger "fleet-system/pkg/logger"
	"fleet-system/pkg/utils"
	"fleet-system/pkg/websocket"
)

func main() {
	logger := applogger.NewLogger()
	defer logger.Sync()

	cfg := config.New()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := postgresql.Migrate(cfg.Postgres.DSN, migrations.FS); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	pool, err := postgresql.ConnectDB(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	hub := websocket.NewHub(logger)
	go hub.Run()

	bus := eventbus.New(logger, cfg.Workflow.CollaboratorTimeout)
	listeners.NewNotificationListener(hub, logger).Subscribe(bus)

	e := echo.New()
	e.HideBanner = true
	e.Validator = customvalidator.NewCustomValidator()

	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				utils.ErrorResponse(c, err)
			}
			return err
		},
	}))
	e.Use(echomw.CORS())

	routes.Register(e, routes.Dependencies{
		DB:     pool,
		Cfg:    cfg,
		Logger: logger,
		Bus:    bus,
		Hub:    hub,
		Idem:   repositories.NewIdempotencyRepository(redisClient),
	})

	logger.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
