package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"comment-map/constant"
	"comment-map/dto"
	"comment-map/entities"
	"comment-map/metrics"
	"comment-map/repository"
)

const submitAttempts = 3

type Gateway interface {
	Submit(ctx context.Context, reference string) (uuid.UUID, error)
}

type gateway struct {
	repo           repository.Repository
	publisher      Publisher
	cache          VideoCache
	reuseCompleted bool
}

// Submit resolves a source reference to a job handle. A video never has more
// than one queued or processing job: resubmitting while one is active returns
// the existing handle.
func (g *gateway) Submit(ctx context.Context, reference string) (uuid.UUID, error) {
	sourceKey, err := ParseReference(reference)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		zerolog.Ctx(ctx).Info().Err(err).Msg("rejected source reference")
		return uuid.Nil, err
	}

	var (
		job     *entities.Job
		created bool
	)
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		job, created, err = g.resolve(ctx, sourceKey)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) || attempt == submitAttempts {
			zerolog.Ctx(ctx).Error().Err(err).Str("source_key", sourceKey).Msg("failed to submit analysis")
			return uuid.Nil, err
		}
		zerolog.Ctx(ctx).Debug().Int("attempt", attempt).Str("source_key", sourceKey).Msg("concurrent submission, retrying")
	}

	logger := zerolog.Ctx(ctx).With().Str("job_id", job.ID.String()).Str("video_id", job.VideoID.String()).Logger()
	if !created {
		metrics.SubmissionsTotal.WithLabelValues("existing").Inc()
		logger.Info().Str("status", job.Status.String()).Msg("returning existing job")
		return job.ID, nil
	}
	metrics.SubmissionsTotal.WithLabelValues("created").Inc()
	if g.cache != nil {
		if err := g.cache.InvalidateVideo(ctx, job.VideoID); err != nil {
			logger.Warn().Err(err).Msg("failed to invalidate video cache")
		}
	}

	message := dto.JobMessage{JobId: job.ID, VideoId: job.VideoID}
	if err := g.publisher.Publish(ctx, message); err != nil {
		logger.Warn().Err(err).Msg("failed to publish job, left for recovery sweep")
		return job.ID, nil
	}
	if err := g.repo.MarkJobEnqueued(ctx, job.ID); err != nil {
		logger.Warn().Err(err).Msg("failed to mark job enqueued")
	}
	logger.Info().Msg("job queued")
	return job.ID, nil
}

func (g *gateway) resolve(ctx context.Context, sourceKey string) (job *entities.Job, created bool, err error) {
	err = g.repo.Transaction(ctx, func(ctx context.Context) error {
		video, err := g.repo.UpsertVideo(ctx, sourceKey)
		if err != nil {
			return err
		}

		active, err := g.repo.FindActiveJob(ctx, video.ID)
		if err == nil {
			job = active
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if g.reuseCompleted && video.Status == constant.JobStatusDone && video.VideoSummaryStatus != constant.SummaryStatusPending {
			latest, err := g.repo.FindLatestJob(ctx, video.ID, constant.JobStatusDone)
			if err == nil {
				job = latest
				return nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		job = &entities.Job{VideoID: video.ID, Status: constant.JobStatusQueued}
		if err := g.repo.CreateJob(ctx, job); err != nil {
			return err
		}
		if err := g.repo.UpdateVideoStatus(ctx, video.ID, constant.JobStatusQueued); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, created, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}

func NewGateway(repo repository.Repository, publisher Publisher, cache VideoCache, reuseCompleted bool) Gateway {
	return &gateway{
		repo:           repo,
		publisher:      publisher,
		cache:          cache,
		reuseCompleted: reuseCompleted,
	}
}
