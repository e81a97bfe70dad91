package testsupport

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"callscope/internal/audio"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = 0x42
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Tone returns a mono 440 Hz sine wave of the given length.
func Tone(seconds float64, sampleRate int) []int16 {
	n := int(seconds * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return samples
}

// ToneWAV returns a 16-bit mono WAV file of the given length.
func ToneWAV(t testing.TB, seconds float64, sampleRate int) []byte {
	t.Helper()
	data, err := audio.EncodeWAV(Tone(seconds, sampleRate), sampleRate)
	if err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return data
}

// WriteToneWAV writes ToneWAV output to path.
func WriteToneWAV(t testing.TB, path string, seconds float64, sampleRate int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, ToneWAV(t, seconds, sampleRate), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
