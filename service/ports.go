package service

import (
	"context"

	"github.com/google/uuid"

	"comment-map/dto"
	"comment-map/engine"
	"comment-map/source"
)

type CommentSource interface {
	FetchComments(ctx context.Context, sourceKey string) ([]source.Comment, error)
	FetchVideoInfo(ctx context.Context, sourceKey string) (*source.VideoInfo, error)
}

type Engine interface {
	Cluster(ctx context.Context, texts []string) ([]engine.Group, error)
	Ordinate(ctx context.Context, texts []string, groups []engine.Group) ([]engine.Point, error)
	Summarize(ctx context.Context, title string, digests []engine.Digest) (*engine.Summary, error)
	SummarizeVideo(ctx context.Context, sourceKey, title string) (string, error)
}

// SnapshotStore archives the raw comments fetched by one job attempt.
type SnapshotStore interface {
	SaveComments(ctx context.Context, sourceKey string, jobId uuid.UUID, comments []source.Comment) error
}

type Publisher interface {
	Publish(ctx context.Context, message dto.JobMessage) error
}

type VideoCache interface {
	InvalidateVideo(ctx context.Context, videoId uuid.UUID) error
}
