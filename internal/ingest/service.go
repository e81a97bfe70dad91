// Package ingest turns an uploaded recording into a running job: segment,
// store, record the call, start. The CLI, the HTTP API and the watch folder
// all go through Service.Submit.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"callscope/internal/audio"
	"callscope/internal/calls"
	"callscope/internal/config"
	"callscope/internal/jobs"
	"callscope/internal/logging"
	"callscope/internal/segstore"
	"callscope/internal/services"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = fmt.Errorf("%w: upload exceeds size limit", services.ErrValidation)

// CallCreator records new calls.
type CallCreator interface {
	Create(ctx context.Context, in calls.NewCall) (*calls.Call, error)
}

// Starter launches jobs.
type Starter interface {
	Start(spec jobs.Spec) string
}

// Request describes one upload.
type Request struct {
	OwnerID     string
	FileName    string
	DisplayName string
	Body        io.Reader
	// Progress receives segmentation progress.
	Progress audio.ProgressFunc
	// OnComplete and OnError are forwarded to the job.
	OnComplete func(transcript string)
	OnError    func(message string)
}

// Submission is the outcome of a successful Submit.
type Submission struct {
	JobID        string          `json:"job_id"`
	Call         *calls.Call     `json:"call"`
	Kind         audio.Kind      `json:"kind"`
	Segments     int             `json:"segments"`
	ChunkSeconds int             `json:"chunk_seconds"`
	TotalSeconds float64         `json:"total_seconds"`
	TotalBytes   int             `json:"total_bytes"`
	Source       segstore.Source `json:"source"`
}

// Service implements the shared upload flow.
type Service struct {
	segmenter    *audio.Segmenter
	segments     segstore.Store
	calls        CallCreator
	starter      Starter
	defaultOwner string
	extensions   []string
	maxBytes     int64
	logger       *slog.Logger
}

// NewService wires the upload flow from configuration.
func NewService(cfg *config.Config, segmenter *audio.Segmenter, segments segstore.Store, store CallCreator, starter Starter, logger *slog.Logger) *Service {
	return &Service{
		segmenter:    segmenter,
		segments:     segments,
		calls:        store,
		starter:      starter,
		defaultOwner: cfg.Ingest.DefaultOwner,
		extensions:   append([]string(nil), cfg.Ingest.Extensions...),
		maxBytes:     int64(cfg.Ingest.MaxUploadMiB) << 20,
		logger:       logging.NewComponentLogger(logger, "ingest"),
	}
}

// Accepts reports whether the file name has a supported extension.
func (s *Service) Accepts(name string) bool {
	return slices.Contains(s.extensions, strings.ToLower(filepath.Ext(name)))
}

// MaxBytes returns the upload size limit.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Submit segments and stores the upload, records a pending call, and starts
// its job. Input problems fail here, before any job exists.
func (s *Service) Submit(ctx context.Context, req Request) (*Submission, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		owner = s.defaultOwner
	}
	if err := segstore.ValidateComponent("owner", owner); err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "submit", "invalid owner", err)
	}
	name := filepath.Base(strings.TrimSpace(req.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, services.Wrap(services.ErrValidation, "ingest", "submit", "file name is required", nil)
	}
	if !s.Accepts(name) {
		return nil, services.Wrap(services.ErrValidation, "ingest", "submit",
			fmt.Sprintf("unsupported file type %q (accepted: %s)", filepath.Ext(name), strings.Join(s.extensions, ", ")), nil)
	}
	if req.Body == nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "submit", "file body is required", nil)
	}
	display := strings.TrimSpace(req.DisplayName)
	if display == "" {
		display = DisplayName(name)
	}

	body := req.Body
	if s.maxBytes > 0 {
		body = &limitedReader{r: req.Body, remaining: s.maxBytes}
	}
	result, err := s.segmenter.Prepare(ctx, body, name, req.Progress)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, fmt.Errorf("%w (limit %s)", ErrTooLarge, humanize.IBytes(uint64(s.maxBytes)))
		}
		if errors.Is(err, audio.ErrDecode) {
			return nil, services.Wrap(services.ErrValidation, "ingest", "decode", "re-upload the recording in another format", err)
		}
		return nil, err
	}

	jobID := uuid.NewString()
	source, err := segstore.SaveResult(ctx, s.segments, owner, jobID, name, result)
	if err != nil {
		return nil, err
	}
	call, err := s.calls.Create(ctx, calls.NewCall{
		OwnerID:         owner,
		FilePath:        source.Path,
		SourceKind:      string(source.Kind),
		FileName:        name,
		DisplayName:     display,
		SegmentCount:    len(result.Segments),
		DurationSeconds: result.TotalSeconds,
	})
	if err != nil {
		if rmErr := segstore.RemoveSource(context.WithoutCancel(ctx), s.segments, source); rmErr != nil {
			logging.WarnWithContext(s.logger, "failed to remove orphaned segments", "segment_cleanup_failed",
				logging.String("path", source.Path),
				logging.Error(rmErr),
				logging.String(logging.FieldImpact, "segments remain in the store without a call"),
			)
		}
		return nil, err
	}

	s.starter.Start(jobs.Spec{
		ID:          jobID,
		CallID:      call.ID,
		OwnerID:     owner,
		DisplayName: display,
		Source:      source,
		OnComplete:  req.OnComplete,
		OnError:     req.OnError,
	})
	s.logger.Info("call submitted",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldCallID, call.ID),
		logging.String("owner", owner),
		logging.String("file", name),
		logging.String("kind", string(result.Kind)),
		logging.Int("segments", len(result.Segments)),
		logging.String("size", humanize.Bytes(uint64(result.TotalBytes()))),
	)
	return &Submission{
		JobID:        jobID,
		Call:         call,
		Kind:         result.Kind,
		Segments:     len(result.Segments),
		ChunkSeconds: result.ChunkSeconds,
		TotalSeconds: result.TotalSeconds,
		TotalBytes:   result.TotalBytes(),
		Source:       source,
	}, nil
}

// SubmitFile opens path and submits it.
func (s *Service) SubmitFile(ctx context.Context, path, owner, displayName string, progress audio.ProgressFunc) (*Submission, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "open", path, err)
	}
	defer f.Close()
	return s.Submit(ctx, Request{
		OwnerID:     owner,
		FileName:    filepath.Base(path),
		DisplayName: displayName,
		Body:        f,
		Progress:    progress,
	})
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, l.checkExhausted()
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// maxEmptyReads matches bufio's tolerance for readers that return no data
// and no error.
const maxEmptyReads = 100

// checkExhausted reads one byte past the limit to tell a body that ends
// exactly at the limit from one that exceeds it.
func (l *limitedReader) checkExhausted() error {
	var extra [1]byte
	for range maxEmptyReads {
		n, err := l.r.Read(extra[:])
		if n > 0 {
			return ErrTooLarge
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}
