package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"comment-map/constant"
	"comment-map/repository/repotest"
)

func TestSweep_FailsStaleAndRepublishesOrphans(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	publisher := &fakePublisher{err: errors.New("broker unreachable")}
	gw := NewGateway(repo, publisher, nil, false)

	stale, _ := gw.Submit(ctx, "aaaaaaaaaaa")
	if err := repo.TransitionJob(ctx, stale, constant.JobStatusProcessing, nil); err != nil {
		t.Fatal(err)
	}
	orphan, _ := gw.Submit(ctx, "bbbbbbbbbbb")

	publisher.err = nil
	sweeper := NewSweeper(repo, publisher, time.Hour, time.Minute, 24*time.Hour, time.Minute)

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result != (SweepResult{}) {
		t.Errorf("fresh jobs swept: %+v", result)
	}

	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	result, err = sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Republished != 1 {
		t.Errorf("result = %+v, want 1 failed and 1 republished", result)
	}

	job, _ := repo.FindJobById(ctx, stale)
	if job.Status != constant.JobStatusFailed || job.ErrorMessage == nil || *job.ErrorMessage != staleJobMessage {
		t.Errorf("stale job = %s / %v", job.Status, job.ErrorMessage)
	}
	if publisher.count() != 1 || publisher.messages[0].JobId != orphan {
		t.Errorf("republished = %+v", publisher.messages)
	}
	requeued, _ := repo.FindJobById(ctx, orphan)
	if requeued.Status != constant.JobStatusQueued || requeued.EnqueuedAt == nil {
		t.Errorf("orphan = %s enqueued_at=%v", requeued.Status, requeued.EnqueuedAt)
	}

	result, _ = sweeper.Sweep(ctx)
	if result != (SweepResult{}) {
		t.Errorf("second sweep = %+v, want nothing to do", result)
	}
}

func TestSweeperRun_StopsOnCancel(t *testing.T) {
	repo := repotest.New(t)
	sweeper := NewSweeper(repo, &fakePublisher{}, time.Hour, time.Hour, time.Hour, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweep_FailsQueuedJobLostAfterEnqueue(t *testing.T) {
	ctx := context.Background()
	repo := repotest.New(t)
	publisher := &fakePublisher{}
	gw := NewGateway(repo, publisher, nil, false)
	analysis := NewAnalysisService(repo, &fakeSource{comments: makeComments(8)}, twoGroupEngine(), nil, nil, DefaultMinComments)

	jobId, err := gw.Submit(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := analysis.Process(cancelled, publisher.messages[0]); err == nil {
		t.Fatal("Process with a cancelled context should report an error")
	}
	if job, _ := repo.FindJobById(ctx, jobId); job.Status != constant.JobStatusQueued || job.EnqueuedAt == nil {
		t.Fatalf("job = %s enqueued_at=%v, want queued and enqueued", job.Status, job.EnqueuedAt)
	}

	sweeper := NewSweeper(repo, publisher, time.Hour, time.Minute, 0, time.Minute)
	if result, _ := sweeper.Sweep(ctx); result != (SweepResult{}) {
		t.Errorf("fresh queued job swept: %+v", result)
	}

	sweeper.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Republished != 0 {
		t.Errorf("result = %+v, want 1 failed", result)
	}
	job, _ := repo.FindJobById(ctx, jobId)
	if job.Status != constant.JobStatusFailed || job.ErrorMessage == nil || *job.ErrorMessage != expiredJobMessage {
		t.Errorf("job = %s / %v", job.Status, job.ErrorMessage)
	}

	again, err := gw.Submit(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if again == jobId {
		t.Error("resubmit returned the failed job instead of a new one")
	}
}
