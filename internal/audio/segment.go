package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"

	"callscope/internal/logging"
	"callscope/internal/payload"
)

// HeaderBytes is the size of the canonical PCM WAV header every segment carries.
const HeaderBytes = payload.WAVHeaderBytes

const bytesPerSample = 2

// Kind distinguishes recordings that fit one segment from split ones.
type Kind string

const (
	KindSingle  Kind = "single"
	KindChunked Kind = "chunked"
)

// Segment is one self-contained WAV file cut from the source recording.
type Segment struct {
	Index           int
	Data            []byte
	DurationSeconds float64
	Size            int
}

// Result is the output of Prepare. Segments are in playback order.
type Result struct {
	Kind         Kind
	Segments     []Segment
	SampleRate   int
	ChunkSeconds int
	TotalSeconds float64
}

// TotalBytes sums the raw size of every segment.
func (r Result) TotalBytes() int {
	total := 0
	for _, seg := range r.Segments {
		total += seg.Size
	}
	return total
}

// Options controls segmentation.
type Options struct {
	// TargetSegmentBytes is the raw budget per segment, header included.
	TargetSegmentBytes int
	SampleRate         int
	MinSegmentSeconds  int
	MaxSegmentSeconds  int
	FFmpegBinary       string
}

// ProgressFunc receives monotonically non-decreasing percentages in [0,100].
type ProgressFunc func(percent int)

// ErrBudget reports a byte budget too small to hold even one second of audio.
var ErrBudget = errors.New("segment budget too small")

// ChunkSeconds returns the segment length for opts: the largest whole number
// of seconds whose WAV fits the byte budget, clamped to [Min, Max]. The lower
// clamp never pushes a segment over budget.
func ChunkSeconds(opts Options) (int, error) {
	if opts.SampleRate <= 0 {
		return 0, fmt.Errorf("%w: sample rate %d", ErrBudget, opts.SampleRate)
	}
	fit := (opts.TargetSegmentBytes - HeaderBytes) / (opts.SampleRate * bytesPerSample)
	if fit < 1 {
		return 0, fmt.Errorf("%w: %d bytes at %d Hz", ErrBudget, opts.TargetSegmentBytes, opts.SampleRate)
	}
	seconds := fit
	if opts.MaxSegmentSeconds > 0 && seconds > opts.MaxSegmentSeconds {
		seconds = opts.MaxSegmentSeconds
	}
	if opts.MinSegmentSeconds > 0 && seconds < opts.MinSegmentSeconds {
		seconds = min(opts.MinSegmentSeconds, fit)
	}
	return seconds, nil
}

// Segmenter prepares recordings for transcription.
type Segmenter struct {
	opts    Options
	decoder Decoder
	logger  *slog.Logger
}

// Option customizes a Segmenter.
type Option func(*Segmenter)

// WithDecoder replaces the default WAV/ffmpeg decoder chain.
func WithDecoder(decoder Decoder) Option {
	return func(s *Segmenter) {
		if decoder != nil {
			s.decoder = decoder
		}
	}
}

// NewSegmenter constructs a Segmenter.
func NewSegmenter(opts Options, logger *slog.Logger, options ...Option) *Segmenter {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	s := &Segmenter{
		opts:    opts,
		decoder: NewDecoder(opts.FFmpegBinary),
		logger:  logging.NewComponentLogger(logger, "segmenter"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Prepare reads src fully, decodes it, and splits it into segments. name is
// used for format detection and diagnostics.
func (s *Segmenter) Prepare(ctx context.Context, src io.Reader, name string, progress ProgressFunc) (Result, error) {
	report := monotonic(progress)
	report(0)

	chunkSeconds, err := ChunkSeconds(s.opts)
	if err != nil {
		return Result{}, err
	}

	raw, err := io.ReadAll(src)
	if err != nil {
		return Result{}, &DecodeError{Name: name, Reason: "read source", Err: err}
	}
	if len(raw) == 0 {
		return Result{}, &DecodeError{Name: name, Reason: "empty file"}
	}
	report(5)

	pcm, err := s.decoder.Decode(ctx, raw, name, s.opts.SampleRate)
	if err != nil {
		return Result{}, err
	}
	if len(pcm.Samples) == 0 {
		return Result{}, &DecodeError{Name: name, Reason: "no audio samples"}
	}
	report(40)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	samples := pcm.Samples
	if pcm.SampleRate != s.opts.SampleRate {
		samples = Resample(samples, pcm.SampleRate, s.opts.SampleRate)
	}
	report(50)

	rate := s.opts.SampleRate
	perChunk := chunkSeconds * rate
	total := len(samples)
	count := 1
	kind := KindSingle
	if total > perChunk {
		kind = KindChunked
		count = int(math.Ceil(float64(total) / float64(perChunk)))
	}

	result := Result{
		Kind:         kind,
		SampleRate:   rate,
		ChunkSeconds: chunkSeconds,
		TotalSeconds: float64(total) / float64(rate),
		Segments:     make([]Segment, 0, count),
	}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		start := i * perChunk
		end := min(start+perChunk, total)
		data, err := EncodeWAV(samples[start:end], rate)
		if err != nil {
			return Result{}, fmt.Errorf("encode segment %d: %w", i, err)
		}
		result.Segments = append(result.Segments, Segment{
			Index:           i,
			Data:            data,
			DurationSeconds: float64(end-start) / float64(rate),
			Size:            len(data),
		})
		report(50 + (i+1)*50/count)
		runtime.Gosched()
	}

	s.logger.Debug("recording segmented",
		logging.String("file", name),
		logging.String("kind", string(result.Kind)),
		logging.Int("segments", len(result.Segments)),
		logging.Int("chunk_seconds", chunkSeconds),
		logging.Float64("total_seconds", result.TotalSeconds),
	)
	return result, nil
}

// PrepareBytes is Prepare over an in-memory buffer.
func (s *Segmenter) PrepareBytes(ctx context.Context, data []byte, name string, progress ProgressFunc) (Result, error) {
	return s.Prepare(ctx, bytes.NewReader(data), name, progress)
}

func monotonic(progress ProgressFunc) func(int) {
	last := -1
	return func(percent int) {
		if progress == nil {
			return
		}
		percent = max(0, min(100, percent))
		if percent <= last {
			return
		}
		last = percent
		progress(percent)
	}
}
