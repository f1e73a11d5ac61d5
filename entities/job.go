package entities

import (
	"time"

	"github.com/google/uuid"

	"comment-map/constant"
)

// Job is one analysis attempt for a Video. The partial unique index keeps at
// most one non-terminal job per video.
type Job struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	VideoID      uuid.UUID          `json:"video_id" gorm:"type:uuid;not null;index:idx_jobs_video_id;uniqueIndex:idx_jobs_one_active,where:status <> 'done' AND status <> 'failed'"`
	Video        *Video             `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Status       constant.JobStatus `json:"status" gorm:"type:varchar(20);not null;default:'queued';index:idx_jobs_status"`
	Stage        *constant.Stage    `json:"stage" gorm:"type:varchar(20)"`
	ErrorMessage *string            `json:"error_message" gorm:"type:text"`
	EnqueuedAt   *time.Time         `json:"enqueued_at"`
	CreatedAt    time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time          `json:"updated_at" gorm:"not null;index:idx_jobs_updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
