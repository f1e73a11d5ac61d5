package entities

import (
	"time"

	"github.com/google/uuid"

	"comment-map/constant"
)

type Video struct {
	ID                 uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	SourceKey          string                 `json:"source_key" gorm:"type:varchar(64);not null;uniqueIndex:idx_videos_source_key"`
	Title              *string                `json:"title" gorm:"type:varchar(500)"`
	Status             constant.JobStatus     `json:"status" gorm:"type:varchar(20);not null;default:'queued';index:idx_videos_status"`
	OverallSummary     *string                `json:"overall_summary" gorm:"type:text"`
	IssueOutline       *string                `json:"issue_outline" gorm:"type:text"`
	VideoSummary       *string                `json:"video_summary" gorm:"type:text"`
	VideoSummaryStatus constant.SummaryStatus `json:"video_summary_status" gorm:"type:varchar(20);not null;default:'pending'"`
	CommentsHash       *string                `json:"-" gorm:"type:varchar(64)"`
	CreatedAt          time.Time              `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time              `json:"updated_at" gorm:"not null"`
}

func (Video) TableName() string {
	return "videos"
}
