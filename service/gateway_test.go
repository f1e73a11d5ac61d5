package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"comment-map/constant"
	"comment-map/entities"
	"comment-map/repository/repotest"
)

func TestSubmit_IsIdempotentWhileActive(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	publisher := &fakePublisher{}
	gw := NewGateway(repo, publisher, nil, false)

	first, err := gw.Submit(ctx, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	second, err := gw.Submit(ctx, "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("handles differ: %s vs %s", first, second)
	}
	if publisher.count() != 1 {
		t.Errorf("published %d messages, want 1", publisher.count())
	}

	var jobs int64
	repo.GetDB(ctx).Model(&entities.Job{}).Count(&jobs)
	if jobs != 1 {
		t.Errorf("jobs = %d, want 1", jobs)
	}
	job, _ := repo.FindJobById(ctx, first)
	if job.EnqueuedAt == nil {
		t.Error("enqueued_at not stamped after publish")
	}

	if err := repo.TransitionJob(ctx, first, constant.JobStatusProcessing, nil); err != nil {
		t.Fatal(err)
	}
	third, _ := gw.Submit(ctx, "dQw4w9WgXcQ")
	if third != first {
		t.Errorf("processing job not reused: %s vs %s", third, first)
	}
}

func TestSubmit_InvalidReferenceWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	publisher := &fakePublisher{}
	gw := NewGateway(repo, publisher, nil, false)

	if _, err := gw.Submit(ctx, "https://example.com/not-a-video"); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("err = %v, want ErrInvalidReference", err)
	}
	var videos, jobs int64
	repo.GetDB(ctx).Model(&entities.Video{}).Count(&videos)
	repo.GetDB(ctx).Model(&entities.Job{}).Count(&jobs)
	if videos != 0 || jobs != 0 || publisher.count() != 0 {
		t.Errorf("state written: videos=%d jobs=%d published=%d", videos, jobs, publisher.count())
	}
}

func TestSubmit_NewJobAfterTerminal(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	gw := NewGateway(repo, &fakePublisher{}, nil, false)

	first, _ := gw.Submit(ctx, "dQw4w9WgXcQ")
	msg := "boom"
	if err := repo.TransitionJob(ctx, first, constant.JobStatusFailed, &msg); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := gw.Submit(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Fatal("failed job was handed out again")
	}
	job, _ := repo.FindJobById(ctx, second)
	video, _ := repo.FindVideoById(ctx, job.VideoID)
	if video.Status != constant.JobStatusQueued {
		t.Errorf("video status = %s, want queued", video.Status)
	}
}

func TestSubmit_NewJobInvalidatesCachedVideo(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, &fakeSource{comments: makeComments(8)}, twoGroupEngine())

	done := p.submitAndProcess(t, "dQw4w9WgXcQ")
	p.cache.invalidated = nil

	again, err := p.gateway.Submit(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if again == done.ID {
		t.Fatal("expected a new job for a completed video")
	}
	if len(p.cache.invalidated) != 1 || p.cache.invalidated[0] != done.VideoID {
		t.Errorf("invalidated = %v, want [%s]", p.cache.invalidated, done.VideoID)
	}

	p.cache.invalidated = nil
	if _, err := p.gateway.Submit(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatal(err)
	}
	if len(p.cache.invalidated) != 0 {
		t.Errorf("resubmitting an active job invalidated the cache: %v", p.cache.invalidated)
	}
}

func TestSubmit_ReuseCompleted(t *testing.T) {
	ctx := context.Background()
	eng := twoGroupEngine()
	p := newPipeline(t, &fakeSource{comments: makeComments(8)}, eng)
	p.gateway = NewGateway(p.repo, p.publisher, p.cache, true)

	done := p.submitAndProcess(t, "dQw4w9WgXcQ")
	again, err := p.gateway.Submit(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if again != done.ID {
		t.Errorf("completed job not reused: %s vs %s", again, done.ID)
	}
	if p.publisher.count() != 1 {
		t.Errorf("published %d messages, want 1", p.publisher.count())
	}
}

func TestSubmit_PublishFailureLeavesOrphan(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	publisher := &fakePublisher{err: errors.New("broker unreachable")}
	gw := NewGateway(repo, publisher, nil, false)

	jobId, err := gw.Submit(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, _ := repo.FindJobById(ctx, jobId)
	if job.Status != constant.JobStatusQueued || job.EnqueuedAt != nil {
		t.Errorf("job = %s enqueued_at=%v, want queued orphan", job.Status, job.EnqueuedAt)
	}
}
