package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"comment-map/constant"
)

// RepComment is one representative comment shown in the cluster drill-down.
type RepComment struct {
	Text   string  `json:"text"`
	Author *string `json:"author,omitempty"`
}

type Cluster struct {
	ID          uuid.UUID                       `json:"id" gorm:"type:uuid;primaryKey"`
	VideoID     uuid.UUID                       `json:"video_id" gorm:"type:uuid;not null;index:idx_clusters_video_position,priority:1"`
	Video       *Video                          `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Position    int                             `json:"-" gorm:"not null;default:0;index:idx_clusters_video_position,priority:2"`
	Label       string                          `json:"label" gorm:"type:varchar(255);not null"`
	Summary     *string                         `json:"summary" gorm:"type:text"`
	Size        int                             `json:"size" gorm:"not null;default:0;check:size >= 0"`
	OrdX        float64                         `json:"ord_x" gorm:"not null;default:0"`
	OrdY        float64                         `json:"ord_y" gorm:"not null;default:0"`
	Stance      *constant.Stance                `json:"stance" gorm:"type:varchar(20)"`
	RepComments datatypes.JSONSlice[RepComment] `json:"rep_comments" gorm:"type:jsonb"`
	CreatedAt   time.Time                       `json:"created_at" gorm:"not null"`
}

func (Cluster) TableName() string {
	return "clusters"
}
