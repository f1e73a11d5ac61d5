package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"comment-map/dto"
	"comment-map/engine"
	"comment-map/source"
)

type fakeSource struct {
	info     *source.VideoInfo
	infoErr  error
	comments []source.Comment
	err      error
}

func (f *fakeSource) FetchComments(ctx context.Context, sourceKey string) ([]source.Comment, error) {
	return f.comments, f.err
}

func (f *fakeSource) FetchVideoInfo(ctx context.Context, sourceKey string) (*source.VideoInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info == nil {
		return &source.VideoInfo{Title: "A video"}, nil
	}
	return f.info, nil
}

type fakeEngine struct {
	groups       []engine.Group
	clusterErr   error
	points       []engine.Point
	ordinateErr  error
	summary      *engine.Summary
	summarizeErr error
	videoSummary string
	videoErr     error
	panicOn      string

	onCluster    func()
	clusterCalls int
}

func (f *fakeEngine) Cluster(ctx context.Context, texts []string) ([]engine.Group, error) {
	f.clusterCalls++
	if f.panicOn == "cluster" {
		panic("index out of range")
	}
	if f.onCluster != nil {
		f.onCluster()
	}
	return f.groups, f.clusterErr
}

func (f *fakeEngine) Ordinate(ctx context.Context, texts []string, groups []engine.Group) ([]engine.Point, error) {
	return f.points, f.ordinateErr
}

func (f *fakeEngine) Summarize(ctx context.Context, title string, digests []engine.Digest) (*engine.Summary, error) {
	if f.summarizeErr != nil {
		return nil, f.summarizeErr
	}
	return f.summary, nil
}

func (f *fakeEngine) SummarizeVideo(ctx context.Context, sourceKey, title string) (string, error) {
	return f.videoSummary, f.videoErr
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []dto.JobMessage
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, message dto.JobMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeArchive struct {
	saved []uuid.UUID
}

func (f *fakeArchive) SaveComments(ctx context.Context, sourceKey string, jobId uuid.UUID, comments []source.Comment) error {
	f.saved = append(f.saved, jobId)
	return nil
}

type fakeCache struct {
	invalidated []uuid.UUID
}

func (f *fakeCache) InvalidateVideo(ctx context.Context, videoId uuid.UUID) error {
	f.invalidated = append(f.invalidated, videoId)
	return nil
}

func makeComments(n int) []source.Comment {
	comments := make([]source.Comment, n)
	for i := range comments {
		comments[i] = source.Comment{
			ID:        fmt.Sprintf("c%02d", i),
			Author:    fmt.Sprintf("user%d", i),
			Text:      fmt.Sprintf("comment number %d", i),
			LikeCount: i,
		}
	}
	return comments
}

// twoGroupEngine returns an engine that splits eight comments into a
// supporting and a skeptical cluster.
func twoGroupEngine() *fakeEngine {
	return &fakeEngine{
		groups: []engine.Group{
			{Members: []int{0, 1, 2, 3, 4, 5}, Label: "Fans", Summary: "People like it", Stance: "support", Representatives: []int{0, 1, 2, 3, 4, 5}},
			{Members: []int{6, 7}, Label: "Doubters", Summary: "People doubt it", Stance: "SKEPTIC"},
		},
		points:       []engine.Point{{X: 10, Y: 0}, {X: 20, Y: 5}},
		summary:      &engine.Summary{Overall: "Mostly positive", Outline: "- pricing"},
		videoSummary: "A video about things",
	}
}
