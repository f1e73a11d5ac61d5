package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"comment-map/constant"
	"comment-map/entities"
	"comment-map/repository"
	"comment-map/repository/repotest"
)

func newJob(t *testing.T, repo repository.Repository, videoId uuid.UUID) *entities.Job {
	t.Helper()
	job := &entities.Job{VideoID: videoId, Status: constant.JobStatusQueued}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestUpsertVideo_ResolvesExistingSourceKey(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)

	first, err := repo.UpsertVideo(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("UpsertVideo: %v", err)
	}
	second, err := repo.UpsertVideo(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("UpsertVideo again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("same source key produced two videos: %s and %s", first.ID, second.ID)
	}
	if first.VideoSummaryStatus != constant.SummaryStatusPending {
		t.Errorf("video_summary_status = %s, want pending", first.VideoSummaryStatus)
	}
}

func TestTransitionJob_TerminalStatesAreImmutable(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	video, _ := repo.UpsertVideo(ctx, "abcdefghijk")
	job := newJob(t, repo, video.ID)

	if err := repo.TransitionJob(ctx, job.ID, constant.JobStatusProcessing, nil); err != nil {
		t.Fatalf("queued->processing: %v", err)
	}
	if err := repo.TransitionJob(ctx, job.ID, constant.JobStatusDone, nil); err != nil {
		t.Fatalf("processing->done: %v", err)
	}

	msg := "late failure"
	for _, to := range []constant.JobStatus{constant.JobStatusFailed, constant.JobStatusProcessing, constant.JobStatusDone, constant.JobStatusQueued} {
		if err := repo.TransitionJob(ctx, job.ID, to, &msg); !errors.Is(err, repository.ErrInvalidTransition) {
			t.Errorf("done->%s: err = %v, want ErrInvalidTransition", to, err)
		}
	}

	got, _ := repo.FindJobById(ctx, job.ID)
	if got.Status != constant.JobStatusDone || got.ErrorMessage != nil {
		t.Errorf("job = %s / %v, want done with no error", got.Status, got.ErrorMessage)
	}
	v, _ := repo.FindVideoById(ctx, video.ID)
	if v.Status != constant.JobStatusDone {
		t.Errorf("video status = %s, want done (mirrors job)", v.Status)
	}
}

func TestTransitionJob_QueuedCanFailDirectly(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	video, _ := repo.UpsertVideo(ctx, "abcdefghijk")
	job := newJob(t, repo, video.ID)

	msg := "abandoned"
	if err := repo.TransitionJob(ctx, job.ID, constant.JobStatusFailed, &msg); err != nil {
		t.Fatalf("queued->failed: %v", err)
	}
	got, _ := repo.FindJobById(ctx, job.ID)
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Errorf("error_message = %v, want %q", got.ErrorMessage, msg)
	}
}

func TestTransitionJob_OnlyLatestJobDrivesVideoStatus(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	video, _ := repo.UpsertVideo(ctx, "abcdefghijk")

	old := newJob(t, repo, video.ID)
	msg := "boom"
	if err := repo.TransitionJob(ctx, old.ID, constant.JobStatusFailed, &msg); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	current := newJob(t, repo, video.ID)
	if err := repo.TransitionJob(ctx, current.ID, constant.JobStatusProcessing, nil); err != nil {
		t.Fatal(err)
	}

	v, _ := repo.FindVideoById(ctx, video.ID)
	if v.Status != constant.JobStatusProcessing {
		t.Errorf("video status = %s, want processing", v.Status)
	}
}

func TestCreateJob_RejectsSecondActiveJob(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	video, _ := repo.UpsertVideo(ctx, "abcdefghijk")
	newJob(t, repo, video.ID)

	dup := &entities.Job{VideoID: video.ID, Status: constant.JobStatusQueued}
	if err := repo.CreateJob(ctx, dup); err == nil {
		t.Fatal("expected unique index to reject a second non-terminal job")
	}
}

func TestDeleteVideo_Cascades(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	video, _ := repo.UpsertVideo(ctx, "abcdefghijk")
	job := newJob(t, repo, video.ID)

	if err := repo.ReplaceComments(ctx, video.ID, []*entities.Comment{{Text: "a"}, {Text: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.ReplaceClusters(ctx, video.ID, []*entities.Cluster{{Label: "x", Size: 2}}); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteVideo(ctx, video.ID); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if n, _ := repo.CountComments(ctx, video.ID); n != 0 {
		t.Errorf("comments left = %d", n)
	}
	if cs, _ := repo.ListClusters(ctx, video.ID); len(cs) != 0 {
		t.Errorf("clusters left = %d", len(cs))
	}
	if _, err := repo.FindJobById(ctx, job.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("job lookup err = %v, want not found", err)
	}
	if err := repo.DeleteVideo(ctx, video.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestReplaceClusters_KeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	video, _ := repo.UpsertVideo(ctx, "abcdefghijk")

	labels := []string{"c", "a", "b"}
	var clusters []*entities.Cluster
	for _, l := range labels {
		clusters = append(clusters, &entities.Cluster{Label: l, RepComments: []entities.RepComment{{Text: "rep " + l}}})
	}
	if err := repo.ReplaceClusters(ctx, video.ID, clusters); err != nil {
		t.Fatal(err)
	}
	// A second attempt replaces rather than appends.
	if err := repo.ReplaceClusters(ctx, video.ID, clusters[:2]); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListClusters(ctx, video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Label != "c" || got[1].Label != "a" {
		t.Fatalf("clusters = %+v", got)
	}
	if len(got[0].RepComments) != 1 || got[0].RepComments[0].Text != "rep c" {
		t.Errorf("rep_comments = %+v", got[0].RepComments)
	}
}

func TestFindStaleAndOrphanedJobs(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)

	v1, _ := repo.UpsertVideo(ctx, "aaaaaaaaaaa")
	v2, _ := repo.UpsertVideo(ctx, "bbbbbbbbbbb")
	processing := newJob(t, repo, v1.ID)
	_ = repo.TransitionJob(ctx, processing.ID, constant.JobStatusProcessing, nil)
	orphan := newJob(t, repo, v2.ID)

	future := time.Now().Add(time.Hour)
	stale, err := repo.FindStaleJobs(ctx, future)
	if err != nil || len(stale) != 1 || stale[0].ID != processing.ID {
		t.Fatalf("stale = %v, %v", stale, err)
	}
	orphans, err := repo.FindOrphanedJobs(ctx, future)
	if err != nil || len(orphans) != 1 || orphans[0].ID != orphan.ID {
		t.Fatalf("orphans = %v, %v", orphans, err)
	}

	if err := repo.MarkJobEnqueued(ctx, orphan.ID); err != nil {
		t.Fatal(err)
	}
	orphans, _ = repo.FindOrphanedJobs(ctx, future)
	if len(orphans) != 0 {
		t.Errorf("enqueued job still reported as orphan")
	}

	past := time.Now().Add(-time.Hour)
	if stale, _ := repo.FindStaleJobs(ctx, past); len(stale) != 0 {
		t.Errorf("fresh job reported stale")
	}
}

func TestFailQueuedJobAndExpiredQueuedJobs(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)

	v1, _ := repo.UpsertVideo(ctx, "aaaaaaaaaaa")
	v2, _ := repo.UpsertVideo(ctx, "bbbbbbbbbbb")
	enqueued := newJob(t, repo, v1.ID)
	if err := repo.MarkJobEnqueued(ctx, enqueued.ID); err != nil {
		t.Fatal(err)
	}
	claimed := newJob(t, repo, v2.ID)
	_ = repo.MarkJobEnqueued(ctx, claimed.ID)
	if err := repo.TransitionJob(ctx, claimed.ID, constant.JobStatusProcessing, nil); err != nil {
		t.Fatal(err)
	}

	expired, err := repo.FindExpiredQueuedJobs(ctx, time.Now().Add(time.Hour))
	if err != nil || len(expired) != 1 || expired[0].ID != enqueued.ID {
		t.Fatalf("expired = %v, %v", expired, err)
	}
	if fresh, _ := repo.FindExpiredQueuedJobs(ctx, time.Now().Add(-time.Hour)); len(fresh) != 0 {
		t.Errorf("recently enqueued job reported expired")
	}

	if err := repo.FailQueuedJob(ctx, claimed.ID, "lost"); !errors.Is(err, repository.ErrInvalidTransition) {
		t.Errorf("processing job: err = %v, want ErrInvalidTransition", err)
	}
	if err := repo.FailQueuedJob(ctx, enqueued.ID, "lost"); err != nil {
		t.Fatalf("FailQueuedJob: %v", err)
	}
	got, _ := repo.FindJobById(ctx, enqueued.ID)
	if got.Status != constant.JobStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != "lost" {
		t.Errorf("job = %s / %v", got.Status, got.ErrorMessage)
	}
	if v, _ := repo.FindVideoById(ctx, v1.ID); v.Status != constant.JobStatusFailed {
		t.Errorf("video status = %s, want failed", v.Status)
	}
}
