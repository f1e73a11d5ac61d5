package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"comment-map/cache"
	"comment-map/config"
	"comment-map/constant"
	"comment-map/dto"
	"comment-map/pkg/rabbitmq"
	"comment-map/repository"
	"comment-map/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	repo, err := repository.NewRepo(cfg.DB)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to open database")
		return
	}
	if err := repo.Migrate(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to migrate database")
		return
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		return
	}
	publisher := rabbitmq.NewPublisher[dto.JobMessage](conn, cfg.Queue)
	defer publisher.Close()

	videoCache := cache.New(ctx, cfg.RedisURL)
	defer videoCache.Close()

	gateway := service.NewGateway(repo, publisher, videoCache, cfg.Gateway.ReuseCompleted)
	r := NewAPI(repo, gateway, videoCache).Router(*zerolog.Ctx(ctx), cfg.Server.CORSOrigins)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("port", cfg.Server.HttpPort).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
