package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"callscope/internal/analysis"
	"callscope/internal/audio"
	"callscope/internal/calls"
	"callscope/internal/config"
	"callscope/internal/ingest"
	"callscope/internal/jobs"
	"callscope/internal/logging"
	"callscope/internal/pipeline"
	"callscope/internal/segstore"
	"callscope/internal/services/providers"
	"callscope/internal/transcribe"
)

// shutdownGrace bounds how long serve/watch wait for running jobs on exit.
const shutdownGrace = 30 * time.Second

// cancelGrace bounds the wait for cancelled jobs before the store closes.
const cancelGrace = 5 * time.Second

func logFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "callscope.log")
}

// app holds the collaborators shared by the processing commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *calls.Store
	segments  segstore.Store
	segmenter *audio.Segmenter
	scheduler *jobs.Scheduler
	ingest    *ingest.Service
	cancel    context.CancelFunc
}

func newSegmenter(cfg *config.Config, logger *slog.Logger) *audio.Segmenter {
	return audio.NewSegmenter(audio.Options{
		TargetSegmentBytes: cfg.Audio.TargetSegmentBytes,
		SampleRate:         cfg.Audio.SampleRate,
		MinSegmentSeconds:  cfg.Audio.MinSegmentSeconds,
		MaxSegmentSeconds:  cfg.Audio.MaxSegmentSeconds,
		FFmpegBinary:       cfg.Audio.FFmpegBinary,
	}, logger)
}

// newApp wires config, store, segment store, providers, pipeline, scheduler
// and ingest. Jobs run under ctx; Close waits for them.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	framework, err := analysis.LoadFramework(cfg.Analysis.FrameworkPath)
	if err != nil {
		return nil, err
	}
	transcriptionProvider, err := providers.New(cfg.TranscriptionProvider())
	if err != nil {
		return nil, err
	}
	analysisProvider, err := providers.New(cfg.AnalysisProvider())
	if err != nil {
		return nil, err
	}
	segments, err := segstore.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, err := calls.Open(cfg)
	if err != nil {
		return nil, err
	}

	transcriber := transcribe.NewClient(transcriptionProvider, transcribe.Options{
		MaxSegmentBytes: cfg.MaxSegmentBytes(),
		Timeout:         time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
		Language:        cfg.Transcription.Language,
	}, logger)
	analyzer := analysis.NewClient(analysisProvider, analysis.Options{
		Timeout:   time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
		Framework: framework,
	}, logger)
	orchestrator := pipeline.New(segments, store, transcriber, analyzer, pipeline.Options{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		BaseDelay:    cfg.RetryBaseDelay(),
		StoreTimeout: cfg.Storage.RequestTimeout(),
	}, logger)

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	scheduler := jobs.NewScheduler(jobCtx, orchestrator, logger)
	segmenter := newSegmenter(cfg, logger)

	logger.Debug("app wired",
		logging.String("database", store.Path()),
		logging.String("storage", segments.Describe()),
		logging.String("transcription", transcriptionProvider.Name()+"/"+transcriptionProvider.Model()),
		logging.String("analysis", analysisProvider.Name()+"/"+analysisProvider.Model()),
	)
	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		segments:  segments,
		segmenter: segmenter,
		scheduler: scheduler,
		ingest:    ingest.NewService(cfg, segmenter, segments, store, scheduler, logger),
		cancel:    cancel,
	}, nil
}

// Close waits up to shutdownGrace for running jobs, then cancels them and
// closes the store once they have unwound.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	waitErr := drainJobs(a.logger, a.scheduler, a.cancel, shutdownGrace, cancelGrace)
	return errors.Join(waitErr, a.store.Close())
}

// drainJobs waits up to grace for running jobs, cancels the rest, and then
// waits up to settle for them to record their failure.
func drainJobs(logger *slog.Logger, scheduler *jobs.Scheduler, cancel context.CancelFunc, grace, settle time.Duration) error {
	waitCtx, stop := context.WithTimeout(context.Background(), grace)
	defer stop()
	waitErr := scheduler.Shutdown(waitCtx)
	cancel()
	if waitErr == nil {
		return nil
	}
	logger.Warn("jobs still running at shutdown; cancelling",
		logging.Error(waitErr),
		logging.String(logging.FieldEventType, "shutdown_jobs_cancelled"),
		logging.String(logging.FieldImpact, "interrupted calls are marked failed"),
	)
	settleCtx, stopSettle := context.WithTimeout(context.Background(), settle)
	defer stopSettle()
	if err := scheduler.Shutdown(settleCtx); err != nil {
		logging.WarnWithContext(logger, "jobs did not stop after cancel", "shutdown_jobs_abandoned",
			logging.Error(err),
			logging.String(logging.FieldImpact, "abandoned calls stay processing until the next start marks them failed"),
			logging.String(logging.FieldErrorHint, "check provider and storage connectivity"),
		)
	}
	return waitErr
}

// failStale marks calls left mid-flight by a previous process as failed.
// Jobs live in memory, so nothing will resume them.
func (a *app) failStale(ctx context.Context) error {
	n, err := a.store.FailStale(ctx)
	if err != nil {
		return fmt.Errorf("fail stale calls: %w", err)
	}
	if n > 0 {
		logging.WarnWithContext(a.logger, "marked interrupted calls as failed", "stale_calls_failed",
			logging.Int64("count", n),
			logging.String(logging.FieldImpact, "those calls must be uploaded again"),
		)
	}
	return nil
}

// acquireLock takes the single-instance lock for serve/watch.
func acquireLock(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", cfg.LockPath(), err)
	}
	if !ok {
		return nil, fmt.Errorf("another callscope serve/watch is already running (lock %s)", cfg.LockPath())
	}
	return lock, nil
}
