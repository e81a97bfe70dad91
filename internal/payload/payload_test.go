package payload

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncodeRoundTripAcrossUnalignedSizes(t *testing.T) {
	// Sizes straddle the 3-byte alignment and the 32 KiB boundary where
	// naive chunked encoders would emit padding mid-stream.
	for _, size := range []int{0, 1, 2, 3, 4, 32767, 32768, 32769, 100_000} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i*31 + 7)
		}
		encoded := Encode(data)
		if len(encoded) != EncodedLen(size) {
			t.Fatalf("size %d: encoded length %d want %d", size, len(encoded), EncodedLen(size))
		}
		if idx := strings.IndexByte(encoded, '='); idx >= 0 && idx < len(encoded)-2 {
			t.Fatalf("size %d: interior padding at %d", size, idx)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("size %d: decode: %v", size, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Fatalf("size %d: round trip mismatch", size)
		}
		if want := base64.StdEncoding.EncodeToString(data); encoded != want {
			t.Fatalf("size %d: output differs from standard encoding", size)
		}
	}
}

func TestMaxRawLenFitsLimit(t *testing.T) {
	for _, limit := range []int{4, 10, 8 << 20, 20_000_001} {
		raw := MaxRawLen(limit)
		if EncodedLen(raw) > limit {
			t.Fatalf("limit %d: raw %d encodes to %d", limit, raw, EncodedLen(raw))
		}
	}
	if MaxRawLen(0) != 0 {
		t.Fatal("expected zero for non-positive limit")
	}
}
