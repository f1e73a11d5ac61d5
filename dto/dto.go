package dto

import (
	"time"

	"github.com/google/uuid"

	"comment-map/constant"
	"comment-map/entities"
)

// JobMessage is the body published to the analysis queue.
type JobMessage struct {
	JobId   uuid.UUID `json:"jobId"`
	VideoId uuid.UUID `json:"videoId"`
}

type AnalyzeRequest struct {
	URL             string `json:"url"`
	SourceReference string `json:"source_reference"`
}

// Reference returns whichever of the two accepted fields was supplied.
func (r AnalyzeRequest) Reference() string {
	if r.URL != "" {
		return r.URL
	}
	return r.SourceReference
}

type AnalyzeResponse struct {
	JobId uuid.UUID `json:"job_id"`
}

type JobStatusResponse struct {
	Status       constant.JobStatus `json:"status"`
	VideoId      *uuid.UUID         `json:"video_id,omitempty"`
	ErrorMessage *string            `json:"error_message,omitempty"`
}

type ClusterResponse struct {
	Id          uuid.UUID             `json:"id"`
	VideoId     uuid.UUID             `json:"video_id"`
	Label       string                `json:"label"`
	Summary     *string               `json:"summary,omitempty"`
	Stance      *constant.Stance      `json:"stance,omitempty"`
	Size        int                   `json:"size"`
	OrdX        float64               `json:"ord_x"`
	OrdY        float64               `json:"ord_y"`
	RepComments []entities.RepComment `json:"rep_comments,omitempty"`
}

type VideoResponse struct {
	Id                 uuid.UUID              `json:"id"`
	SourceKey          string                 `json:"source_key"`
	Title              *string                `json:"title,omitempty"`
	Status             constant.JobStatus     `json:"status"`
	OverallSummary     *string                `json:"overall_summary,omitempty"`
	IssueOutline       *string                `json:"issue_outline,omitempty"`
	VideoSummary       *string                `json:"video_summary,omitempty"`
	VideoSummaryStatus constant.SummaryStatus `json:"video_summary_status"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	Clusters           []ClusterResponse      `json:"clusters"`
}

func NewJobStatusResponse(job *entities.Job) JobStatusResponse {
	resp := JobStatusResponse{Status: job.Status}
	switch job.Status {
	case constant.JobStatusDone:
		videoId := job.VideoID
		resp.VideoId = &videoId
	case constant.JobStatusFailed:
		resp.ErrorMessage = job.ErrorMessage
	}
	return resp
}

func NewClusterResponse(c *entities.Cluster) ClusterResponse {
	return ClusterResponse{
		Id:          c.ID,
		VideoId:     c.VideoID,
		Label:       c.Label,
		Summary:     c.Summary,
		Stance:      c.Stance,
		Size:        c.Size,
		OrdX:        c.OrdX,
		OrdY:        c.OrdY,
		RepComments: c.RepComments,
	}
}

func NewVideoResponse(v *entities.Video, clusters []*entities.Cluster) VideoResponse {
	resp := VideoResponse{
		Id:                 v.ID,
		SourceKey:          v.SourceKey,
		Title:              v.Title,
		Status:             v.Status,
		OverallSummary:     v.OverallSummary,
		IssueOutline:       v.IssueOutline,
		VideoSummary:       v.VideoSummary,
		VideoSummaryStatus: v.VideoSummaryStatus,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
		Clusters:           make([]ClusterResponse, 0, len(clusters)),
	}
	for _, c := range clusters {
		resp.Clusters = append(resp.Clusters, NewClusterResponse(c))
	}
	return resp
}
