package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"comment-map/dto"
	"comment-map/service"
)

type ServiceDependencies struct {
	AnalysisService service.AnalysisService
}

// JobHandler decodes an analysis message and runs it. Malformed messages are
// not retried.
func JobHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var job dto.JobMessage
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal job message")
		return backoff.Permanent(err)
	}
	if job.JobId == uuid.Nil {
		zerolog.Ctx(ctx).Error().Msg("job message without job id")
		return backoff.Permanent(fmt.Errorf("job message without job id"))
	}

	return deps.AnalysisService.Process(ctx, job)
}

// JobDeadLetter fails the job behind a message that is about to be
// dead-lettered, so the video is not left with a queued job nobody runs.
func JobDeadLetter(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies, cause error) {
	var job dto.JobMessage
	if err := json.Unmarshal(msg.Body, &job); err != nil || job.JobId == uuid.Nil {
		return
	}
	if err := deps.AnalysisService.Abandon(ctx, job, cause); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.JobId.String()).Msg("failed to abandon dead-lettered job")
	}
}
