package audio

import (
	"bytes"

	"github.com/youpy/go-wav"
)

// EncodeWAV writes mono 16-bit samples as a complete WAV file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderBytes + len(samples)*bytesPerSample)
	writer := wav.NewWriter(&buf, uint32(len(samples)), 1, uint32(sampleRate), 16)
	frames := make([]wav.Sample, 0, 4096)
	for start := 0; start < len(samples); start += cap(frames) {
		end := min(start+cap(frames), len(samples))
		frames = frames[:0]
		for _, v := range samples[start:end] {
			frames = append(frames, wav.Sample{Values: [2]int{int(v), 0}})
		}
		if err := writer.WriteSamples(frames); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
