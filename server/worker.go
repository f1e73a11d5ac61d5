package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"comment-map/archive"
	"comment-map/cache"
	"comment-map/config"
	"comment-map/dto"
	"comment-map/engine"
	jobHandler "comment-map/handler"
	"comment-map/metrics"
	"comment-map/pkg/rabbitmq"
	"comment-map/repository"
	"comment-map/service"
	"comment-map/source"
)

// RunWorker consumes analysis jobs and runs the recovery sweeper until
// SIGINT or SIGTERM.
func RunWorker(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	snapshots := archive.New(cfg.Storage, cfg.MinIOBucket)
	var snapshotStore service.SnapshotStore = snapshots
	if err := snapshots.EnsureBucket(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("snapshot archive unavailable, continuing without it")
		snapshotStore = nil
	}

	videoCache := cache.New(ctx, cfg.RedisURL)
	defer videoCache.Close()

	analysisService := service.NewAnalysisService(
		repo,
		source.NewYouTube(cfg.Source.APIKey, cfg.Source.BaseURL, cfg.Source.MaxComments),
		engine.NewHTTPEngine(cfg.Engine.URL, cfg.Engine.Timeout),
		snapshotStore,
		videoCache,
		cfg.Pipeline.MinComments,
	)
	serviceDeps := jobHandler.ServiceDependencies{
		AnalysisService: analysisService,
	}

	sweeper := service.NewSweeper(repo, publisher, cfg.Sweeper.Lease, cfg.Sweeper.OrphanGrace, cfg.Sweeper.QueueTimeout, cfg.Sweeper.Interval)
	go sweeper.Run(ctx)

	if cfg.Server.MetricsPort != "" {
		go serveMetrics(ctx, ":"+cfg.Server.MetricsPort)
	}

	analysisConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.JobHandler, jobHandler.JobDeadLetter)
	zerolog.Ctx(ctx).Info().Int("workers", cfg.Server.Workers).Msg("start analysis worker")
	if err := analysisConsumer.Consume(ctx, serviceDeps); err != nil && ctx.Err() == nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("analysis consumer error")
	}
	zerolog.Ctx(ctx).Info().Msg("worker shutdown")
}

// RunSweep performs a single recovery sweep and exits.
func RunSweep(cfg *config.Config) error {
	ctx := setupLogger(cfg)

	repo, err := repository.NewRepo(cfg.DB)
	if err != nil {
		return err
	}
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer conn.Close()
	publisher := rabbitmq.NewPublisher[dto.JobMessage](conn, cfg.Queue)
	defer publisher.Close()

	result, err := service.NewSweeper(repo, publisher, cfg.Sweeper.Lease, cfg.Sweeper.OrphanGrace, cfg.Sweeper.QueueTimeout, cfg.Sweeper.Interval).Sweep(ctx)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Int("failed", result.Failed).Int("republished", result.Republished).Msg("recovery sweep done")
	return nil
}

// serveMetrics exposes the worker's Prometheus collectors until ctx ends.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zerolog.Ctx(ctx).Info().Str("addr", addr).Msg("serving worker metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zerolog.Ctx(ctx).Error().Err(err).Msg("metrics listener failed")
	}
}
