package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"callscope/internal/jobs"
	"callscope/internal/logging"
)

func TestDrainJobsWaitsForCancelledJobs(t *testing.T) {
	var unwound atomic.Bool
	started := make(chan struct{})
	runner := jobs.RunnerFunc(func(ctx context.Context, _ string, _ jobs.Spec, _ jobs.Observer) (string, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		unwound.Store(true)
		return "", ctx.Err()
	})
	jobCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler := jobs.NewScheduler(jobCtx, runner, logging.NewNop())
	scheduler.Start(jobs.Spec{CallID: "call-1"})
	<-started

	err := drainJobs(logging.NewNop(), scheduler, cancel, 10*time.Millisecond, 5*time.Second)
	if err == nil {
		t.Fatal("expected error for jobs still running after grace")
	}
	if !unwound.Load() {
		t.Fatal("drainJobs returned before the cancelled job unwound")
	}
}

func TestDrainJobsReturnsWhenIdle(t *testing.T) {
	jobCtx, cancel := context.WithCancel(context.Background())
	scheduler := jobs.NewScheduler(jobCtx, jobs.RunnerFunc(func(context.Context, string, jobs.Spec, jobs.Observer) (string, error) {
		return "done", nil
	}), logging.NewNop())
	id := scheduler.Start(jobs.Spec{CallID: "call-2"})
	waitCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if _, err := scheduler.Wait(waitCtx, id); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if err := drainJobs(logging.NewNop(), scheduler, cancel, time.Second, time.Second); err != nil {
		t.Fatalf("drainJobs: %v", err)
	}
	if jobCtx.Err() == nil {
		t.Fatal("expected job context to be cancelled")
	}
}
