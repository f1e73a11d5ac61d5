// Package archive keeps the raw comment snapshot fetched by each analysis
// attempt in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"comment-map/repository"
	"comment-map/source"
)

type Snapshot struct {
	SourceKey string           `json:"source_key"`
	JobId     uuid.UUID        `json:"job_id"`
	FetchedAt time.Time        `json:"fetched_at"`
	Comments  []source.Comment `json:"comments"`
}

type Archive struct {
	client *minio.Client
	bucket string
}

func New(client *minio.Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	zerolog.Ctx(ctx).Info().Str("bucket", a.bucket).Msg("creating snapshot bucket")
	return a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
}

func (a *Archive) SaveComments(ctx context.Context, sourceKey string, jobId uuid.UUID, comments []source.Comment) error {
	body, err := json.Marshal(Snapshot{
		SourceKey: sourceKey,
		JobId:     jobId,
		FetchedAt: repository.Now(),
		Comments:  comments,
	})
	if err != nil {
		return err
	}

	objectName := ObjectName(sourceKey, jobId)
	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Str("object", objectName).Int("comments", len(comments)).Msg("archived comment snapshot")
	return nil
}

func ObjectName(sourceKey string, jobId uuid.UUID) string {
	return fmt.Sprintf("comments/%s/%s.json", sourceKey, jobId)
}
