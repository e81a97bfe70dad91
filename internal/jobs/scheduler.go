package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"callscope/internal/logging"
	"callscope/internal/services"
)

// ErrNotFound is returned for unknown or dismissed job IDs.
var ErrNotFound = fmt.Errorf("job %w", services.ErrNotFound)

const subscriberBuffer = 32

// Observer receives progress from a running job.
type Observer interface {
	// Progress records the stage, overall percentage, and segment counters.
	Progress(status Status, percent, current, total int)
}

// Runner executes one job and returns its transcript.
type Runner interface {
	Run(ctx context.Context, id string, spec Spec, observer Observer) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, id string, spec Spec, observer Observer) (string, error)

func (f RunnerFunc) Run(ctx context.Context, id string, spec Spec, observer Observer) (string, error) {
	return f(ctx, id, spec, observer)
}

type entry struct {
	job  Job
	done chan struct{}
}

// Scheduler runs and tracks jobs.
type Scheduler struct {
	ctx    context.Context
	runner Runner
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	entries     map[string]*entry
	subscribers map[int]chan Job
	nextSub     int
	wg          sync.WaitGroup
}

// NewScheduler returns a scheduler whose jobs run under ctx.
func NewScheduler(ctx context.Context, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ctx:         ctx,
		runner:      runner,
		logger:      logging.NewComponentLogger(logger, "jobs"),
		now:         time.Now,
		entries:     make(map[string]*entry),
		subscribers: make(map[int]chan Job),
	}
}

// Start registers the job and runs it asynchronously. It returns the job ID.
func (s *Scheduler) Start(spec Spec) string {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	now := s.now()
	e := &entry{
		job: Job{
			ID:          spec.ID,
			CallID:      spec.CallID,
			OwnerID:     spec.OwnerID,
			DisplayName: spec.DisplayName,
			Status:      StatusQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.entries[spec.ID] = e
	snapshot := e.job
	s.broadcastLocked(snapshot)
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("job queued",
		logging.String(logging.FieldJobID, spec.ID),
		logging.String(logging.FieldCallID, spec.CallID),
		logging.String("display_name", spec.DisplayName),
	)
	go s.run(e, spec)
	return spec.ID
}

func (s *Scheduler) run(e *entry, spec Spec) {
	defer s.wg.Done()
	defer close(e.done)

	ctx := services.WithJobID(s.ctx, spec.ID)
	ctx = services.WithCallID(ctx, spec.CallID)
	transcript, err := s.runner.Run(ctx, spec.ID, spec, jobObserver{s: s, id: spec.ID})
	if err != nil {
		message := err.Error()
		if message == "" {
			message = FallbackError
		}
		s.update(spec.ID, func(j *Job) {
			j.Status = StatusError
			j.Error = message
		})
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "job failed", "job_failed",
			logging.String("reason", message),
			logging.String(logging.FieldErrorHint, "re-run the call after addressing the reported cause"),
		)
		if spec.OnError != nil {
			spec.OnError(message)
		}
		return
	}

	s.update(spec.ID, func(j *Job) {
		j.Status = StatusComplete
		j.Progress = 100
		j.Transcript = transcript
	})
	logging.WithContext(ctx, s.logger).Info("job complete", logging.Int("transcript_chars", len(transcript)))
	if spec.OnComplete != nil {
		spec.OnComplete(transcript)
	}
}

// update applies fn to a copy of the tracked job and stores it when the
// result respects the lifecycle. Progress never decreases. Updates for
// dismissed jobs are dropped.
func (s *Scheduler) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	next := e.job
	fn(&next)
	if next.Status != e.job.Status && !e.job.Status.CanTransition(next.Status) {
		s.logger.Warn("dropping invalid job transition",
			logging.String(logging.FieldJobID, id),
			logging.String("from", string(e.job.Status)),
			logging.String("to", string(next.Status)),
			logging.String(logging.FieldEventType, "job_transition_invalid"),
		)
		return
	}
	if next.Progress < e.job.Progress {
		next.Progress = e.job.Progress
	}
	next.Progress = min(max(next.Progress, 0), 100)
	next.UpdatedAt = s.now()
	e.job = next
	s.broadcastLocked(next)
}

func (s *Scheduler) broadcastLocked(job Job) {
	for _, ch := range s.subscribers {
		select {
		case ch <- job:
		default:
		}
	}
}

// Dismiss stops reporting the job. The job keeps running.
func (s *Scheduler) Dismiss(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.entries, id)
	return nil
}

// Observe returns copies of the tracked jobs ordered by creation.
func (s *Scheduler) Observe() []Job {
	s.mu.Lock()
	out := make([]Job, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.job)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns a copy of one tracked job.
func (s *Scheduler) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.job, nil
}

// Subscribe returns a channel of job snapshots. Slow subscribers miss
// updates rather than blocking jobs. cancel closes the channel.
func (s *Scheduler) Subscribe() (<-chan Job, func()) {
	ch := make(chan Job, subscriberBuffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Wait blocks until the job finishes and returns its final snapshot.
func (s *Scheduler) Wait(ctx context.Context, id string) (Job, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case <-e.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.job, nil
}

// Shutdown waits for running jobs or until ctx ends.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("jobs still running"), ctx.Err())
	}
}

// Counts returns the number of tracked jobs per status.
func (s *Scheduler) Counts() map[Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[Status]int)
	for _, e := range s.entries {
		counts[e.job.Status]++
	}
	return counts
}

type jobObserver struct {
	s  *Scheduler
	id string
}

func (o jobObserver) Progress(status Status, percent, current, total int) {
	o.s.update(o.id, func(j *Job) {
		j.Status = status
		j.Progress = percent
		if total > 0 {
			j.CurrentSegment = current
			j.TotalSegments = total
		}
	})
}
