// Package pipeline drives one call from stored segments to a persisted
// analysis. Segments are transcribed strictly in manifest order, each under
// a bounded retry; transcription occupies the 0-80 progress band and
// analysis 85-100.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"callscope/internal/analysis"
	"callscope/internal/calls"
	"callscope/internal/jobs"
	"callscope/internal/logging"
	"callscope/internal/retry"
	"callscope/internal/segstore"
	"callscope/internal/services"
	"callscope/internal/transcribe"
)

const (
	transcriptionBand = 80
	analysisStart     = 85
	segmentMIME       = "audio/wav"
	stageTranscribing = "transcribing"
	stageAnalyzing    = "analyzing"

	defaultStoreTimeout = 2 * time.Minute
)

// Transcriber converts one segment to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mime string, pc transcribe.PromptContext) (string, error)
}

// Analyzer scores a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (analysis.Result, error)
}

// CallStore persists call status and analyses.
type CallStore interface {
	UpdateStatus(ctx context.Context, id string, next calls.Status) error
	Complete(ctx context.Context, record *calls.Analysis) error
}

// Options configures retries and segment store deadlines.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// StoreTimeout bounds each manifest or segment download attempt.
	StoreTimeout time.Duration
	// Sleep overrides the wait between attempts.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator implements jobs.Runner.
type Orchestrator struct {
	segments    segstore.Store
	calls       CallStore
	transcriber Transcriber
	analyzer    Analyzer
	opts        Options
	logger      *slog.Logger
}

// New wires an orchestrator.
func New(segments segstore.Store, store CallStore, transcriber Transcriber, analyzer Analyzer, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	return &Orchestrator{
		segments:    segments,
		calls:       store,
		transcriber: transcriber,
		analyzer:    analyzer,
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
}

// SegmentProgress is the percentage reported before segment i of n starts.
func SegmentProgress(i, n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Round((float64(i) + 0.5) / float64(n) * transcriptionBand))
}

// JoinTranscripts trims parts, drops empty ones, and separates the rest with
// a blank line.
func JoinTranscripts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n\n")
}

// Run transcribes and analyzes the call behind spec.
func (o *Orchestrator) Run(ctx context.Context, id string, spec jobs.Spec, observer jobs.Observer) (string, error) {
	ctx = services.WithJobID(ctx, id)
	ctx = services.WithCallID(ctx, spec.CallID)
	logger := logging.WithContext(ctx, o.logger)

	if err := o.calls.UpdateStatus(ctx, spec.CallID, calls.StatusProcessing); err != nil {
		o.markFailed(ctx, logger, spec.CallID)
		return "", fmt.Errorf("start call %s: %w", spec.CallID, err)
	}

	transcript, err := o.transcribeAll(services.WithStage(ctx, stageTranscribing), spec, observer)
	if err != nil {
		o.markFailed(ctx, logger, spec.CallID)
		return "", err
	}

	analysisCtx := services.WithStage(ctx, stageAnalyzing)
	observer.Progress(jobs.StatusAnalyzing, analysisStart, 0, 0)
	logging.WithContext(analysisCtx, o.logger).Info("analysis started", logging.Int("transcript_chars", len(transcript)))
	result, err := o.analyzer.Analyze(analysisCtx, transcript)
	if err != nil {
		o.markFailed(ctx, logger, spec.CallID)
		return "", err
	}

	record := &calls.Analysis{
		CallID:     spec.CallID,
		OwnerID:    spec.OwnerID,
		Transcript: transcript,
		Result:     result,
	}
	if err := o.calls.Complete(context.WithoutCancel(ctx), record); err != nil {
		o.markFailed(ctx, logger, spec.CallID)
		return "", fmt.Errorf("persist analysis: %w", err)
	}
	logger.Info("call completed",
		logging.String("analysis_id", record.ID),
		logging.String("outcome", result.Outcome),
		logging.Int("outcome_score", result.OutcomeScore),
	)
	return transcript, nil
}

func (o *Orchestrator) transcribeAll(ctx context.Context, spec jobs.Spec, observer jobs.Observer) (string, error) {
	logger := logging.WithContext(ctx, o.logger)
	var paths []string
	err := o.fetch(ctx, logger, "load segments", func(ctx context.Context) error {
		var fetchErr error
		paths, fetchErr = segstore.SegmentPaths(ctx, o.segments, spec.Source)
		return fetchErr
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageTranscribing, "load segments", "", err)
	}
	total := len(paths)
	observer.Progress(jobs.StatusTranscribing, 0, 0, total)

	sampler := logging.NewProgressSampler(25)
	parts := make([]string, 0, total)
	for i, path := range paths {
		percent := SegmentProgress(i, total)
		observer.Progress(jobs.StatusTranscribing, percent, i+1, total)
		if sampler.ShouldLog(percent, stageTranscribing) {
			logger.Info("transcribing segment",
				logging.Int("segment", i+1),
				logging.Int("segments", total),
				logging.Int("progress", percent),
			)
		}

		var data []byte
		err := o.fetch(ctx, logger, "download segment", func(ctx context.Context) error {
			var fetchErr error
			data, fetchErr = o.segments.Get(ctx, path)
			return fetchErr
		})
		if err != nil {
			return "", services.Wrap(services.ErrExternalTool, stageTranscribing, "download segment", path, err)
		}
		text, err := o.transcribeSegment(ctx, logger, data, transcribe.PromptContext{Index: i, Count: total})
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}

	transcript := JoinTranscripts(parts)
	if transcript == "" {
		return "", &transcribe.Error{Kind: transcribe.EmptyResult, Hint: "transcription provider returned no text"}
	}
	return transcript, nil
}

// fetch runs a segment store read with a deadline per attempt, retrying
// timeouts and transient backend failures.
func (o *Orchestrator) fetch(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	policy := retry.Policy{
		MaxAttempts: o.opts.MaxAttempts,
		Backoff:     retry.Linear(o.opts.BaseDelay),
		Retryable:   segstore.Retryable,
		Sleep:       o.opts.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logging.WarnWithContext(logger, "segment store read failed, retrying", "segment_store_retry",
				logging.String("operation", op),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check segment store connectivity"),
				logging.String(logging.FieldImpact, "read will be retried"),
			)
		},
	}
	return retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.opts.StoreTimeout)
		defer cancel()
		err := fn(attemptCtx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s timed out after %s: %w", op, o.opts.StoreTimeout, err)
		}
		return err
	})
}

func (o *Orchestrator) transcribeSegment(ctx context.Context, logger *slog.Logger, data []byte, pc transcribe.PromptContext) (string, error) {
	var text string
	policy := retry.Policy{
		MaxAttempts: o.opts.MaxAttempts,
		Backoff:     retry.Linear(o.opts.BaseDelay),
		Retryable:   transcribe.Retryable,
		Sleep:       o.opts.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logging.WarnWithContext(logger, "segment transcription failed, retrying", "transcription_retry",
				logging.Int("segment", pc.Index+1),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "transient provider failure"),
				logging.String(logging.FieldImpact, "segment will be retried"),
			)
		},
	}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		var callErr error
		text, callErr = o.transcriber.Transcribe(ctx, data, segmentMIME, pc)
		return callErr
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			logging.ErrorWithContext(logger, "segment transcription exhausted retries", "transcription_exhausted",
				logging.Int("segment", pc.Index+1),
				logging.Int("attempts", exhausted.Attempts),
				logging.Error(exhausted.Err),
			)
		}
		return "", err
	}
	return text, nil
}

func (o *Orchestrator) markFailed(ctx context.Context, logger *slog.Logger, callID string) {
	err := o.calls.UpdateStatus(context.WithoutCancel(ctx), callID, calls.StatusFailed)
	if err != nil && !errors.Is(err, calls.ErrInvalidTransition) {
		logging.WarnWithContext(logger, "failed to mark call failed", "call_status_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the call database"),
			logging.String(logging.FieldImpact, "call may remain in processing until restart"),
		)
	}
}
