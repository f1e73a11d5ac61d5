package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"comment-map/constant"
	"comment-map/dto"
	"comment-map/engine"
	"comment-map/entities"
	"comment-map/metrics"
	"comment-map/repository"
	"comment-map/source"
)

const (
	DefaultMinComments = 3
	maxRepComments     = 5
	maxErrorMessage    = 500
	maxLabelLength     = 255
)

type AnalysisService interface {
	Process(ctx context.Context, message dto.JobMessage) error
	// Abandon fails a job that will never be processed. Jobs already claimed
	// or terminal are left alone.
	Abandon(ctx context.Context, message dto.JobMessage, cause error) error
}

type analysisService struct {
	repo        repository.Repository
	source      CommentSource
	engine      Engine
	archive     SnapshotStore
	cache       VideoCache
	minComments int
}

// Process runs one analysis job to a terminal state. Errors are only
// returned while the job has not been claimed yet, so the queue can redeliver
// the message; once claimed, any failure is recorded on the job instead.
func (s *analysisService) Process(ctx context.Context, message dto.JobMessage) error {
	logger := zerolog.Ctx(ctx).With().
		Str("job_id", message.JobId.String()).
		Str("video_id", message.VideoId.String()).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("processing job")

	job, err := s.repo.FindJobById(ctx, message.JobId)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn().Msg("job not found, dropping message")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to find job by id")
		return err
	}

	if job.Status != constant.JobStatusQueued {
		logger.Info().Str("status", job.Status.String()).Msg("job is not queued")
		return nil
	}

	video, err := s.repo.FindVideoById(ctx, job.VideoID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to find video")
		return err
	}

	if err := s.repo.TransitionJob(ctx, job.ID, constant.JobStatusProcessing, nil); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			logger.Info().Msg("job claimed elsewhere")
			return nil
		}
		logger.Error().Err(err).Msg("failed to claim job")
		return err
	}

	result, err := s.run(ctx, job, video)
	if err != nil {
		metrics.JobsTotal.WithLabelValues(constant.JobStatusFailed.String()).Inc()
		s.fail(ctx, job.ID, err)
		return nil
	}
	if result.cached {
		metrics.JobsTotal.WithLabelValues("cached").Inc()
	} else {
		metrics.JobsTotal.WithLabelValues(constant.JobStatusDone.String()).Inc()
	}
	s.invalidate(ctx, video.ID)
	logger.Info().Int("clusters", result.clusters).Bool("cached", result.cached).Msg("job completed")

	if video.VideoSummaryStatus != constant.SummaryStatusDone {
		s.summarizeVideo(ctx, video.ID, video.SourceKey, result.title)
	}
	return nil
}

type runResult struct {
	title    string
	clusters int
	cached   bool
}

func (s *analysisService) run(ctx context.Context, job *entities.Job, video *entities.Video) (result runResult, err error) {
	var (
		stage      constant.Stage
		stageStart time.Time
	)
	enter := func(next constant.Stage) error {
		if stage != "" {
			metrics.ObserveStage(stage.String(), stageStart)
		}
		stage, stageStart = next, time.Now()
		zerolog.Ctx(ctx).Debug().Str("stage", next.String()).Msg("entering stage")
		if err := s.repo.TouchJob(ctx, job.ID, next); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				return ErrJobLost
			}
			return err
		}
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if stage != "" {
			metrics.ObserveStage(stage.String(), stageStart)
		}
		if err != nil {
			err = stageErr(stage, err)
		}
	}()

	if err = enter(constant.StageFetch); err != nil {
		return result, err
	}
	if video.Title != nil {
		result.title = *video.Title
	}
	info, err := s.source.FetchVideoInfo(ctx, video.SourceKey)
	switch {
	case errors.Is(err, source.ErrVideoNotFound):
		return result, err
	case err != nil:
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to fetch video info")
	case info.Title != "":
		result.title = info.Title
	}

	comments, err := s.source.FetchComments(ctx, video.SourceKey)
	if err != nil {
		return result, err
	}
	if len(comments) == 0 {
		return result, ErrNoComments
	}
	hash := commentsHash(comments)

	if video.CommentsHash != nil && *video.CommentsHash == hash {
		existing, err := s.repo.ListClusters(ctx, video.ID)
		if err != nil {
			return result, err
		}
		if hasValidClusters(existing) {
			result.cached = true
			result.clusters = len(existing)
			return result, s.finishCached(ctx, job.ID, video.ID, result.title)
		}
	}

	if s.archive != nil {
		if err := s.archive.SaveComments(ctx, video.SourceKey, job.ID, comments); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to archive comment snapshot")
		}
	}
	// Rows are written at persist so a failed attempt keeps the previous set.
	rows := make([]*entities.Comment, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, newComment(c))
	}

	kept := usableComments(comments)
	analysis := repository.VideoAnalysis{CommentsHash: &hash}
	if result.title != "" {
		analysis.Title = &result.title
	}
	if len(kept) < s.minComments {
		zerolog.Ctx(ctx).Info().Int("usable", len(kept)).Int("min", s.minComments).Msg("too few comments to cluster")
		if err = enter(constant.StagePersist); err != nil {
			return result, err
		}
		return result, s.persist(ctx, job.ID, video.ID, rows, nil, analysis)
	}
	texts := make([]string, len(kept))
	for i, c := range kept {
		texts[i] = c.Text
	}

	if err = enter(constant.StageCluster); err != nil {
		return result, err
	}
	groups, err := s.engine.Cluster(ctx, texts)
	if err != nil {
		return result, err
	}
	if err = validateGroups(groups, len(texts)); err != nil {
		return result, err
	}

	if err = enter(constant.StageOrdinate); err != nil {
		return result, err
	}
	var points []engine.Point
	if len(groups) > 0 {
		raw, err := s.engine.Ordinate(ctx, texts, groups)
		if err != nil {
			return result, err
		}
		if len(raw) != len(groups) {
			return result, fmt.Errorf("engine returned %d ordinates for %d clusters", len(raw), len(groups))
		}
		points = NormalizeOrdinates(raw)
	}

	if err = enter(constant.StageSummarize); err != nil {
		return result, err
	}
	clusters := buildClusters(groups, points, kept)
	if len(clusters) > 0 {
		digests := make([]engine.Digest, len(clusters))
		for i, c := range clusters {
			digests[i] = engine.Digest{Label: c.Label, Summary: deref(c.Summary), Size: c.Size}
			if c.Stance != nil {
				digests[i].Stance = c.Stance.String()
			}
		}
		summary, err := s.engine.Summarize(ctx, result.title, digests)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("summarization failed, leaving summaries empty")
		} else if summary != nil {
			analysis.OverallSummary = nonEmpty(summary.Overall)
			analysis.IssueOutline = nonEmpty(summary.Outline)
		}
	}

	if err = enter(constant.StagePersist); err != nil {
		return result, err
	}
	result.clusters = len(clusters)
	return result, s.persist(ctx, job.ID, video.ID, rows, clusters, analysis)
}

func (s *analysisService) persist(ctx context.Context, jobId, videoId uuid.UUID, comments []*entities.Comment, clusters []*entities.Cluster, analysis repository.VideoAnalysis) error {
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.ReplaceComments(ctx, videoId, comments); err != nil {
			return err
		}
		if err := s.repo.ReplaceClusters(ctx, videoId, clusters); err != nil {
			return err
		}
		if err := s.repo.UpdateVideoAnalysis(ctx, videoId, analysis); err != nil {
			return err
		}
		return s.repo.TransitionJob(ctx, jobId, constant.JobStatusDone, nil)
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		return ErrJobLost
	}
	return err
}

func (s *analysisService) finishCached(ctx context.Context, jobId, videoId uuid.UUID, title string) error {
	zerolog.Ctx(ctx).Info().Msg("comments unchanged, reusing existing clusters")
	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		if title != "" {
			if err := s.repo.UpdateVideoTitle(ctx, videoId, title); err != nil {
				return err
			}
		}
		return s.repo.TransitionJob(ctx, jobId, constant.JobStatusDone, nil)
	})
	if errors.Is(err, repository.ErrInvalidTransition) {
		return ErrJobLost
	}
	return err
}

func (s *analysisService) Abandon(ctx context.Context, message dto.JobMessage, cause error) error {
	ctx = context.WithoutCancel(ctx)
	msg := truncate("queue: "+cause.Error(), maxErrorMessage)
	err := s.repo.FailQueuedJob(ctx, message.JobId, msg)
	if errors.Is(err, repository.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Warn().Str("job_id", message.JobId.String()).Err(cause).Msg("abandoned queued job")
	metrics.JobsTotal.WithLabelValues("abandoned").Inc()
	if job, err := s.repo.FindJobById(ctx, message.JobId); err == nil {
		s.invalidate(ctx, job.VideoID)
	}
	return nil
}

// fail records a terminal failure. The write survives cancellation of the
// worker context so a shutdown does not strand the job in processing.
func (s *analysisService) fail(ctx context.Context, jobId uuid.UUID, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := zerolog.Ctx(ctx)
	logger.Error().Err(cause).Msg("job failed")

	msg := truncate(cause.Error(), maxErrorMessage)
	if err := s.repo.TransitionJob(ctx, jobId, constant.JobStatusFailed, &msg); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			logger.Warn().Msg("job already terminal, failure not recorded")
			return
		}
		logger.Error().Err(err).Msg("failed to update job status")
		return
	}
	if job, err := s.repo.FindJobById(ctx, jobId); err == nil {
		s.invalidate(ctx, job.VideoID)
	}
}

// summarizeVideo fills the video content summary. Its outcome is tracked in
// video_summary_status and never affects the job.
func (s *analysisService) summarizeVideo(ctx context.Context, videoId uuid.UUID, sourceKey, title string) {
	logger := zerolog.Ctx(ctx)
	summary, err := s.engine.SummarizeVideo(ctx, sourceKey, title)
	if err != nil || strings.TrimSpace(summary) == "" {
		logger.Warn().Err(err).Msg("video summary unavailable")
		if err := s.repo.UpdateVideoSummary(ctx, videoId, nil, constant.SummaryStatusFailed); err != nil {
			logger.Error().Err(err).Msg("failed to update video summary status")
		}
	} else if err := s.repo.UpdateVideoSummary(ctx, videoId, &summary, constant.SummaryStatusDone); err != nil {
		logger.Error().Err(err).Msg("failed to store video summary")
	}
	s.invalidate(ctx, videoId)
}

func (s *analysisService) invalidate(ctx context.Context, videoId uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateVideo(ctx, videoId); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to invalidate video cache")
	}
}

func commentsHash(comments []source.Comment) string {
	keys := make([]string, len(comments))
	for i, c := range comments {
		keys[i] = c.ID
		if keys[i] == "" {
			keys[i] = c.Text
		}
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(strings.Join(keys, "\n")))
	return hex.EncodeToString(sum[:])
}

func hasValidClusters(clusters []*entities.Cluster) bool {
	if len(clusters) == 0 {
		return false
	}
	for _, c := range clusters {
		if c.Label == "" || c.Summary == nil || *c.Summary == "" {
			return false
		}
	}
	return true
}

// usableComments drops comments with no letters or digits in them.
func usableComments(comments []source.Comment) []source.Comment {
	out := make([]source.Comment, 0, len(comments))
	for _, c := range comments {
		c.Text = strings.TrimSpace(c.Text)
		if strings.IndexFunc(c.Text, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) < 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

func validateGroups(groups []engine.Group, n int) error {
	for i, g := range groups {
		for _, idx := range append(append([]int(nil), g.Members...), g.Representatives...) {
			if idx < 0 || idx >= n {
				return fmt.Errorf("cluster %d references comment %d of %d", i, idx, n)
			}
		}
	}
	return nil
}

func buildClusters(groups []engine.Group, points []engine.Point, comments []source.Comment) []*entities.Cluster {
	clusters := make([]*entities.Cluster, 0, len(groups))
	for i, g := range groups {
		c := &entities.Cluster{
			Label:   truncate(strings.TrimSpace(g.Label), maxLabelLength),
			Summary: nonEmpty(g.Summary),
			Size:    len(g.Members),
		}
		if c.Label == "" {
			c.Label = fmt.Sprintf("Cluster %d", i+1)
		}
		if i < len(points) {
			c.OrdX, c.OrdY = points[i].X, points[i].Y
		}
		if stance, ok := constant.ParseStance(g.Stance); ok {
			c.Stance = &stance
		}

		reps := g.Representatives
		if len(reps) == 0 {
			reps = g.Members
		}
		for _, idx := range reps {
			if len(c.RepComments) == maxRepComments {
				break
			}
			c.RepComments = append(c.RepComments, entities.RepComment{
				Text:   comments[idx].Text,
				Author: nonEmpty(comments[idx].Author),
			})
		}
		clusters = append(clusters, c)
	}
	return clusters
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func newComment(c source.Comment) *entities.Comment {
	return &entities.Comment{
		ExternalID:  c.ID,
		Author:      nonEmpty(c.Author),
		Text:        c.Text,
		LikeCount:   c.LikeCount,
		PublishedAt: c.PublishedAt,
	}
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func NewAnalysisService(repo repository.Repository, src CommentSource, eng Engine, archive SnapshotStore, cache VideoCache, minComments int) AnalysisService {
	if minComments < 1 {
		minComments = DefaultMinComments
	}
	return &analysisService{
		repo:        repo,
		source:      src,
		engine:      eng,
		archive:     archive,
		cache:       cache,
		minComments: minComments,
	}
}
