package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/youpy/go-wav"
)

// ErrDecode marks recordings that could not be turned into PCM samples.
var ErrDecode = errors.New("audio decode failed")

// DecodeError describes why a recording could not be decoded.
type DecodeError struct {
	Name   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode audio"
	if e.Name != "" {
		msg += " " + strconv.Quote(e.Name)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// PCM is mono signed 16-bit audio.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Decoder converts an encoded recording into mono PCM. targetRate is a hint;
// decoders that resample internally return it as SampleRate.
type Decoder interface {
	Decode(ctx context.Context, data []byte, name string, targetRate int) (PCM, error)
}

// NewDecoder returns the default chain: WAV files are read natively and
// everything else is handed to ffmpeg.
func NewDecoder(ffmpegBinary string) Decoder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return chainDecoder{ffmpeg: FFmpegDecoder{Binary: ffmpegBinary}}
}

type chainDecoder struct {
	ffmpeg FFmpegDecoder
}

func (c chainDecoder) Decode(ctx context.Context, data []byte, name string, targetRate int) (PCM, error) {
	if IsWAV(data) {
		pcm, err := DecodeWAV(data)
		if err == nil {
			return pcm, nil
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) || decodeErr.Reason != reasonUnsupportedLayout {
			return PCM{}, withName(err, name)
		}
	}
	return c.ffmpeg.Decode(ctx, data, name, targetRate)
}

func withName(err error, name string) error {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Name == "" {
		decodeErr.Name = name
	}
	return err
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

const reasonUnsupportedLayout = "unsupported wav layout"

// DecodeWAV reads integer PCM WAV data with one or two channels and downmixes
// it to mono 16-bit samples. Other layouts report reasonUnsupportedLayout so
// the caller can fall back to ffmpeg.
func DecodeWAV(data []byte) (PCM, error) {
	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	if err != nil {
		return PCM{}, &DecodeError{Reason: "read wav header", Err: err}
	}
	if format.AudioFormat != wav.AudioFormatPCM || format.NumChannels == 0 || format.NumChannels > 2 {
		return PCM{}, &DecodeError{Reason: reasonUnsupportedLayout,
			Err: fmt.Errorf("format=%d channels=%d", format.AudioFormat, format.NumChannels)}
	}
	shift := 0
	switch format.BitsPerSample {
	case 8, 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		return PCM{}, &DecodeError{Reason: reasonUnsupportedLayout,
			Err: fmt.Errorf("bits per sample %d", format.BitsPerSample)}
	}
	if format.SampleRate == 0 {
		return PCM{}, &DecodeError{Reason: "zero sample rate"}
	}

	channels := int(format.NumChannels)
	var out []int16
	if format.BlockAlign > 0 {
		out = make([]int16, 0, len(data)/int(format.BlockAlign))
	}
	for {
		samples, err := reader.ReadSamples(8192)
		for _, sample := range samples {
			sum := 0
			for ch := 0; ch < channels; ch++ {
				sum += normalizeSample(sample.Values[ch], format.BitsPerSample, shift)
			}
			out = append(out, int16(sum/channels))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(out) > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return PCM{}, &DecodeError{Reason: "read wav samples", Err: err}
		}
	}
	return PCM{Samples: out, SampleRate: int(format.SampleRate)}, nil
}

func normalizeSample(value int, bits uint16, shift int) int {
	if bits == 8 {
		// 8-bit WAV is unsigned.
		return (value - 128) << 8
	}
	return value >> shift
}

// FFmpegDecoder shells out to ffmpeg to produce raw s16le mono samples.
type FFmpegDecoder struct {
	Binary string
}

// Decode pipes data through ffmpeg and returns samples at targetRate.
func (d FFmpegDecoder) Decode(ctx context.Context, data []byte, name string, targetRate int) (PCM, error) {
	if targetRate <= 0 {
		targetRate = 16000
	}
	binaryPath := d.Binary
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(targetRate),
		"-f", "s16le",
		"-c:a", "pcm_s16le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, binaryPath, args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return PCM{}, ctx.Err()
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return PCM{}, &DecodeError{Name: name, Reason: "ffmpeg unavailable for " + formatLabel(name), Err: err}
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return PCM{}, &DecodeError{Name: name, Reason: "ffmpeg could not decode " + formatLabel(name), Err: err}
	}
	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return PCM{Samples: samples, SampleRate: targetRate}, nil
}

func formatLabel(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "input"
	}
	return ext + " input"
}
