package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"comment-map/constant"
	"comment-map/dto"
)

const DefaultPollInterval = 1500 * time.Millisecond

const (
	msgRequestFailed  = "Request failed"
	msgAnalysisFailed = "Analysis failed"
)

type StatusAPI interface {
	JobStatus(ctx context.Context, jobId uuid.UUID) (*dto.JobStatusResponse, error)
	Video(ctx context.Context, videoId uuid.UUID) (*dto.VideoResponse, error)
}

type Phase string

const (
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// Outcome is how a poll ended. Video is set only for PhaseDone; Message is a
// user-facing explanation for PhaseFailed and PhaseError.
type Outcome struct {
	Phase   Phase
	Video   *dto.VideoResponse
	Message string
}

// Poller follows one job at a time. Requests are issued from a single
// goroutine, so a slow response delays the next poll instead of overlapping
// with it.
type Poller struct {
	api      StatusAPI
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(api StatusAPI, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{api: api, interval: interval}
}

// Run polls until the job is terminal, a request fails or ctx is cancelled.
// onStatus, if set, sees every status response in order.
func (p *Poller) Run(ctx context.Context, jobId uuid.UUID, onStatus func(dto.JobStatusResponse)) Outcome {
	logger := zerolog.Ctx(ctx).With().Str("job_id", jobId.String()).Logger()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.api.JobStatus(ctx, jobId)
		if ctx.Err() != nil {
			return Outcome{Phase: PhaseCancelled}
		}
		if err != nil {
			logger.Warn().Err(err).Msg("status poll failed")
			return Outcome{Phase: PhaseError, Message: msgRequestFailed}
		}
		if onStatus != nil {
			onStatus(*status)
		}

		switch status.Status {
		case constant.JobStatusDone:
			if status.VideoId == nil {
				return Outcome{Phase: PhaseError, Message: msgRequestFailed}
			}
			video, err := p.api.Video(ctx, *status.VideoId)
			if ctx.Err() != nil {
				return Outcome{Phase: PhaseCancelled}
			}
			if err != nil {
				logger.Warn().Err(err).Msg("video fetch failed")
				return Outcome{Phase: PhaseError, Message: msgRequestFailed}
			}
			return Outcome{Phase: PhaseDone, Video: video}
		case constant.JobStatusFailed:
			msg := msgAnalysisFailed
			if status.ErrorMessage != nil && *status.ErrorMessage != "" {
				msg = *status.ErrorMessage
			}
			return Outcome{Phase: PhaseFailed, Message: msg}
		}

		select {
		case <-ctx.Done():
			return Outcome{Phase: PhaseCancelled}
		case <-ticker.C:
		}
	}
}

// Start runs the poll in the background, replacing any poll already running.
// The replaced poll is stopped before the new one issues its first request.
// onDone is not called when the poll is cancelled or replaced.
func (p *Poller) Start(ctx context.Context, jobId uuid.UUID, onStatus func(dto.JobStatusResponse), onDone func(Outcome)) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	prevCancel, prevDone := p.cancel, p.done
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go func() {
		defer close(done)
		defer cancel()
		outcome := p.Run(ctx, jobId, onStatus)

		p.mu.Lock()
		current := p.done == done
		if current {
			p.cancel, p.done = nil, nil
		}
		p.mu.Unlock()

		if current && outcome.Phase != PhaseCancelled && onDone != nil {
			onDone(outcome)
		}
	}()
}

// Cancel stops the background poll and waits for its goroutine to exit. It is
// safe to call at any time, any number of times.
func (p *Poller) Cancel() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether a background poll is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}
