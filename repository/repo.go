package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"comment-map/constant"
	"comment-map/entities"
)

var (
	ErrNotFound          = gorm.ErrRecordNotFound
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// VideoAnalysis carries the fields the worker writes when a job finalizes.
type VideoAnalysis struct {
	Title          *string
	OverallSummary *string
	IssueOutline   *string
	CommentsHash   *string
}

type Repository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB(ctx context.Context) *gorm.DB
	Migrate(ctx context.Context) error

	UpsertVideo(ctx context.Context, sourceKey string) (*entities.Video, error)
	FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error)
	UpdateVideoStatus(ctx context.Context, id uuid.UUID, status constant.JobStatus) error
	UpdateVideoTitle(ctx context.Context, id uuid.UUID, title string) error
	UpdateVideoAnalysis(ctx context.Context, id uuid.UUID, analysis VideoAnalysis) error
	UpdateVideoSummary(ctx context.Context, id uuid.UUID, summary *string, status constant.SummaryStatus) error
	DeleteVideo(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *entities.Job) error
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	FindActiveJob(ctx context.Context, videoId uuid.UUID) (*entities.Job, error)
	FindLatestJob(ctx context.Context, videoId uuid.UUID, status constant.JobStatus) (*entities.Job, error)
	TransitionJob(ctx context.Context, id uuid.UUID, to constant.JobStatus, errorMessage *string) error
	FailQueuedJob(ctx context.Context, id uuid.UUID, errorMessage string) error
	TouchJob(ctx context.Context, id uuid.UUID, stage constant.Stage) error
	MarkJobEnqueued(ctx context.Context, id uuid.UUID) error
	FindStaleJobs(ctx context.Context, updatedBefore time.Time) ([]*entities.Job, error)
	FindOrphanedJobs(ctx context.Context, createdBefore time.Time) ([]*entities.Job, error)
	FindExpiredQueuedJobs(ctx context.Context, enqueuedBefore time.Time) ([]*entities.Job, error)

	ReplaceComments(ctx context.Context, videoId uuid.UUID, comments []*entities.Comment) error
	CountComments(ctx context.Context, videoId uuid.UUID) (int64, error)
	ReplaceClusters(ctx context.Context, videoId uuid.UUID, clusters []*entities.Cluster) error
	ListClusters(ctx context.Context, videoId uuid.UUID) ([]*entities.Cluster, error)
	FindClusterById(ctx context.Context, id uuid.UUID) (*entities.Cluster, error)
}

type txKey struct{}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) (Repository, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			NowFunc:        Now,
			TranslateError: true,
		},
	)
	if err != nil {
		return nil, err
	}
	return New(gormDB), nil
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB) Repository {
	return &repo{
		db: db,
	}
}

// Now is the clock used for every timestamp written by the store.
func Now() time.Time {
	return time.Now().UTC()
}

func (r *repo) GetDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.GetDB(ctx).AutoMigrate(&entities.Video{}, &entities.Comment{}, &entities.Cluster{}, &entities.Job{})
}

func (r *repo) UpsertVideo(ctx context.Context, sourceKey string) (*entities.Video, error) {
	db := r.GetDB(ctx)
	candidate := &entities.Video{
		ID:                 uuid.New(),
		SourceKey:          sourceKey,
		Status:             constant.JobStatusQueued,
		VideoSummaryStatus: constant.SummaryStatusPending,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_key"}},
		DoNothing: true,
	}).Create(candidate).Error
	if err != nil {
		return nil, err
	}

	video := &entities.Video{}
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).First(video, "source_key = ?", sourceKey).Error
	if err != nil {
		return nil, err
	}
	return video, nil
}

func (r *repo) FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	video := &entities.Video{}
	err := r.GetDB(ctx).First(video, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return video, nil
}

func (r *repo) UpdateVideoStatus(ctx context.Context, id uuid.UUID, status constant.JobStatus) error {
	return r.GetDB(ctx).Model(&entities.Video{}).Where("id = ?", id).Update("status", status).Error
}

func (r *repo) UpdateVideoTitle(ctx context.Context, id uuid.UUID, title string) error {
	return r.GetDB(ctx).Model(&entities.Video{}).Where("id = ?", id).Update("title", title).Error
}

func (r *repo) UpdateVideoAnalysis(ctx context.Context, id uuid.UUID, analysis VideoAnalysis) error {
	updates := map[string]interface{}{
		"overall_summary": analysis.OverallSummary,
		"issue_outline":   analysis.IssueOutline,
		"comments_hash":   analysis.CommentsHash,
	}
	if analysis.Title != nil {
		updates["title"] = analysis.Title
	}
	return r.GetDB(ctx).Model(&entities.Video{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) UpdateVideoSummary(ctx context.Context, id uuid.UUID, summary *string, status constant.SummaryStatus) error {
	updates := map[string]interface{}{
		"video_summary":        summary,
		"video_summary_status": status,
	}
	return r.GetDB(ctx).Model(&entities.Video{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteVideo removes a video and everything it owns. Children are deleted
// explicitly so the cascade does not depend on the driver enforcing foreign keys.
func (r *repo) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		db := r.GetDB(ctx)
		for _, child := range []interface{}{&entities.Comment{}, &entities.Cluster{}, &entities.Job{}} {
			if err := db.Where("video_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		res := db.Where("id = ?", id).Delete(&entities.Video{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *repo) CreateJob(ctx context.Context, job *entities.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.GetDB(ctx).Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.GetDB(ctx).First(job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *repo) FindActiveJob(ctx context.Context, videoId uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.GetDB(ctx).
		Where("video_id = ? AND status IN ?", videoId, []constant.JobStatus{constant.JobStatusQueued, constant.JobStatusProcessing}).
		Order("created_at DESC").
		First(job).Error
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) FindLatestJob(ctx context.Context, videoId uuid.UUID, status constant.JobStatus) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.GetDB(ctx).
		Where("video_id = ? AND status = ?", videoId, status).
		Order("created_at DESC").
		First(job).Error
	if err != nil {
		return nil, err
	}
	return job, nil
}

// TransitionJob moves a job to status `to` only if its current status is a
// legal predecessor, and mirrors the new status onto the video when the job
// is the video's most recent one. A job already in a terminal state is never
// touched.
func (r *repo) TransitionJob(ctx context.Context, id uuid.UUID, to constant.JobStatus, errorMessage *string) error {
	return r.transition(ctx, id, constant.AllowedFrom(to), to, errorMessage)
}

// FailQueuedJob fails a job that was never claimed. A job in any other
// status yields ErrInvalidTransition.
func (r *repo) FailQueuedJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return r.transition(ctx, id, []constant.JobStatus{constant.JobStatusQueued}, constant.JobStatusFailed, &errorMessage)
}

func (r *repo) transition(ctx context.Context, id uuid.UUID, from []constant.JobStatus, to constant.JobStatus, errorMessage *string) error {
	if len(from) == 0 {
		return ErrInvalidTransition
	}

	return r.Transaction(ctx, func(ctx context.Context) error {
		db := r.GetDB(ctx)
		updates := map[string]interface{}{
			"status":     to,
			"updated_at": Now(),
		}
		if to == constant.JobStatusFailed {
			updates["error_message"] = errorMessage
		}

		res := db.Model(&entities.Job{}).Where("id = ? AND status IN ?", id, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		job, err := r.FindJobById(ctx, id)
		if err != nil {
			return err
		}
		latest := &entities.Job{}
		if err := db.Where("video_id = ?", job.VideoID).Order("created_at DESC").First(latest).Error; err != nil {
			return err
		}
		if latest.ID != job.ID {
			return nil
		}
		return db.Model(&entities.Video{}).Where("id = ?", job.VideoID).Update("status", to).Error
	})
}

// TouchJob records the stage a processing job entered and refreshes its lease.
func (r *repo) TouchJob(ctx context.Context, id uuid.UUID, stage constant.Stage) error {
	res := r.GetDB(ctx).Model(&entities.Job{}).
		Where("id = ? AND status = ?", id, constant.JobStatusProcessing).
		Updates(map[string]interface{}{"stage": stage, "updated_at": Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *repo) MarkJobEnqueued(ctx context.Context, id uuid.UUID) error {
	return r.GetDB(ctx).Model(&entities.Job{}).Where("id = ?", id).Update("enqueued_at", Now()).Error
}

func (r *repo) FindStaleJobs(ctx context.Context, updatedBefore time.Time) ([]*entities.Job, error) {
	var jobs []*entities.Job
	err := r.GetDB(ctx).
		Where("status = ? AND updated_at < ?", constant.JobStatusProcessing, updatedBefore.UTC()).
		Order("updated_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) FindOrphanedJobs(ctx context.Context, createdBefore time.Time) ([]*entities.Job, error) {
	var jobs []*entities.Job
	err := r.GetDB(ctx).
		Where("status = ? AND enqueued_at IS NULL AND created_at < ?", constant.JobStatusQueued, createdBefore.UTC()).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindExpiredQueuedJobs returns queued jobs the queue accepted before
// enqueuedBefore that no worker has claimed since.
func (r *repo) FindExpiredQueuedJobs(ctx context.Context, enqueuedBefore time.Time) ([]*entities.Job, error) {
	var jobs []*entities.Job
	err := r.GetDB(ctx).
		Where("status = ? AND enqueued_at IS NOT NULL AND enqueued_at < ?", constant.JobStatusQueued, enqueuedBefore.UTC()).
		Order("enqueued_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ReplaceComments(ctx context.Context, videoId uuid.UUID, comments []*entities.Comment) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		db := r.GetDB(ctx)
		if err := db.Where("video_id = ?", videoId).Delete(&entities.Comment{}).Error; err != nil {
			return err
		}
		if len(comments) == 0 {
			return nil
		}
		for _, c := range comments {
			c.VideoID = videoId
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
		}
		return db.CreateInBatches(comments, 200).Error
	})
}

func (r *repo) CountComments(ctx context.Context, videoId uuid.UUID) (int64, error) {
	var count int64
	err := r.GetDB(ctx).Model(&entities.Comment{}).Where("video_id = ?", videoId).Count(&count).Error
	return count, err
}

func (r *repo) ReplaceClusters(ctx context.Context, videoId uuid.UUID, clusters []*entities.Cluster) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		db := r.GetDB(ctx)
		if err := db.Where("video_id = ?", videoId).Delete(&entities.Cluster{}).Error; err != nil {
			return err
		}
		if len(clusters) == 0 {
			return nil
		}
		for i, c := range clusters {
			c.VideoID = videoId
			c.Position = i
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
		}
		return db.Create(clusters).Error
	})
}

func (r *repo) ListClusters(ctx context.Context, videoId uuid.UUID) ([]*entities.Cluster, error) {
	var clusters []*entities.Cluster
	err := r.GetDB(ctx).Where("video_id = ?", videoId).Order("position ASC").Order("id ASC").Find(&clusters).Error
	if err != nil {
		return nil, err
	}
	return clusters, nil
}

func (r *repo) FindClusterById(ctx context.Context, id uuid.UUID) (*entities.Cluster, error) {
	cluster := &entities.Cluster{}
	err := r.GetDB(ctx).First(cluster, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return cluster, nil
}
