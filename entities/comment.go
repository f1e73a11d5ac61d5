package entities

import (
	"time"

	"github.com/google/uuid"
)

type Comment struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	VideoID     uuid.UUID  `json:"video_id" gorm:"type:uuid;not null;index:idx_comments_video_id"`
	Video       *Video     `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	ExternalID  string     `json:"external_id" gorm:"type:varchar(128)"`
	Author      *string    `json:"author" gorm:"type:varchar(255)"`
	Text        string     `json:"text" gorm:"type:text;not null"`
	LikeCount   int        `json:"like_count" gorm:"not null;default:0"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null"`
}

func (Comment) TableName() string {
	return "comments"
}
