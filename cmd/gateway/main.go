package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/staffdeck/realtime-api/internal/config"
	"github.com/staffdeck/realtime-api/internal/email"
	"github.com/staffdeck/realtime-api/internal/handler"
	calllogHandler "github.com/staffdeck/realtime-api/internal/handler/calllog"
	notificationHandler "github.com/staffdeck/realtime-api/internal/handler/notification"
	"github.com/staffdeck/realtime-api/internal/handler/ws"
	"github.com/staffdeck/realtime-api/internal/hub"
	"github.com/staffdeck/realtime-api/internal/middleware"
	"github.com/staffdeck/realtime-api/internal/repository/postgres"
	"github.com/staffdeck/realtime-api/internal/router"
	calllogService "github.com/staffdeck/realtime-api/internal/service/calllog"
	"github.com/staffdeck/realtime-api/internal/service/dispatch"
	notificationService "github.com/staffdeck/realtime-api/internal/service/notification"
	"github.com/staffdeck/realtime-api/pkg/logger"
	redisBroker "github.com/staffdeck/realtime-api/pkg/messaging/redis"
	"github.com/staffdeck/realtime-api/pkg/realtime"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(&logger.Config{Level: logger.InfoLevel})
	log.Logger = appLogger

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	notificationRepo := postgres.NewNotificationRepository(db)
	calllogRepo := postgres.NewCallLogRepository(db)

	broker, err := redisBroker.NewRedisBroker(redisBroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &appLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	emailSvc := email.NewService(cfg.SMTP, &appLogger)

	var connHub *hub.Hub
	connHub = hub.New(cfg.Realtime.QueueSize, func(userID uuid.UUID, online bool) {
		status := realtime.StatusOffline
		if online {
			status = realtime.StatusOnline
		}
		ev, err := realtime.NewEnvelope(realtime.EventEmployeeStatusUpdate, realtime.StatusUpdatePayload{
			UserID: userID,
			Status: status,
			At:     time.Now().UTC(),
		})
		if err != nil {
			return
		}
		connHub.Broadcast(ev)
	}, &appLogger)

	notificationSvc := notificationService.NewService(notificationRepo, broker, cfg.Redis.EventChannel, &appLogger)
	calllogSvc := calllogService.NewService(calllogRepo, &appLogger)
	dispatcher := dispatch.NewDispatcher(broker, connHub, emailSvc, cfg.Redis.EventChannel, &appLogger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	h := handler.NewHandler(db)
	wsH := ws.NewHandler(connHub, cfg.Realtime, &appLogger)
	notificationH := notificationHandler.NewHandler(notificationSvc)
	calllogH := calllogHandler.NewHandler(calllogSvc)

	r := router.NewRouter(authMiddleware, wsH, notificationH, calllogH, h, router.Config{
		RateLimit:  rate.Limit(cfg.Realtime.RateLimit),
		RateBurst:  cfg.Realtime.RateBurst,
		CORSConfig: middleware.DefaultCORSConfig(),
	})
	r.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("dispatcher stopped")
			cancel()
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
		// Read/write timeouts stay unset: they would sever long-lived
		// websocket connections. The ws handler enforces its own deadlines.
		ReadHeaderTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	cancel()
	connHub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
