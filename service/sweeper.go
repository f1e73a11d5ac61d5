package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"comment-map/constant"
	"comment-map/dto"
	"comment-map/metrics"
	"comment-map/repository"
)

const (
	staleJobMessage   = "stale: worker lease expired"
	expiredJobMessage = "stale: job never picked up from queue"
)

// Sweeper recovers jobs that would otherwise never reach a terminal state:
// processing jobs whose worker stopped heartbeating, queued jobs whose
// message never made it onto the queue, and queued jobs whose message was
// lost after the queue accepted it.
type Sweeper struct {
	repo         repository.Repository
	publisher    Publisher
	lease        time.Duration
	orphanGrace  time.Duration
	queueTimeout time.Duration
	interval     time.Duration
	now          func() time.Time
}

const DefaultQueueTimeout = time.Hour

type SweepResult struct {
	Failed      int
	Republished int
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	stale, err := s.repo.FindStaleJobs(ctx, now.Add(-s.lease))
	if err != nil {
		return result, err
	}
	for _, job := range stale {
		msg := staleJobMessage
		err := s.repo.TransitionJob(ctx, job.ID, constant.JobStatusFailed, &msg)
		if errors.Is(err, repository.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return result, err
		}
		zerolog.Ctx(ctx).Warn().Str("job_id", job.ID.String()).Time("last_seen", job.UpdatedAt).Msg("failed stale job")
		metrics.SweptJobsTotal.WithLabelValues("failed").Inc()
		result.Failed++
	}

	expired, err := s.repo.FindExpiredQueuedJobs(ctx, now.Add(-s.queueTimeout))
	if err != nil {
		return result, err
	}
	for _, job := range expired {
		err := s.repo.FailQueuedJob(ctx, job.ID, expiredJobMessage)
		if errors.Is(err, repository.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return result, err
		}
		zerolog.Ctx(ctx).Warn().Str("job_id", job.ID.String()).Time("enqueued_at", *job.EnqueuedAt).Msg("failed expired queued job")
		metrics.SweptJobsTotal.WithLabelValues("expired").Inc()
		result.Failed++
	}

	orphans, err := s.repo.FindOrphanedJobs(ctx, now.Add(-s.orphanGrace))
	if err != nil {
		return result, err
	}
	for _, job := range orphans {
		if err := s.publisher.Publish(ctx, dto.JobMessage{JobId: job.ID, VideoId: job.VideoID}); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to republish job")
			continue
		}
		if err := s.repo.MarkJobEnqueued(ctx, job.ID); err != nil {
			return result, err
		}
		zerolog.Ctx(ctx).Info().Str("job_id", job.ID.String()).Msg("republished orphaned job")
		metrics.SweptJobsTotal.WithLabelValues("republished").Inc()
		result.Republished++
	}
	return result, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.Sweep(ctx)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("recovery sweep failed")
				continue
			}
			if result.Failed > 0 || result.Republished > 0 {
				zerolog.Ctx(ctx).Info().Int("failed", result.Failed).Int("republished", result.Republished).Msg("recovery sweep")
			}
		}
	}
}

func NewSweeper(repo repository.Repository, publisher Publisher, lease, orphanGrace, queueTimeout, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if queueTimeout <= 0 {
		queueTimeout = DefaultQueueTimeout
	}
	return &Sweeper{
		repo:         repo,
		publisher:    publisher,
		lease:        lease,
		orphanGrace:  orphanGrace,
		queueTimeout: queueTimeout,
		interval:     interval,
		now:          time.Now,
	}
}
