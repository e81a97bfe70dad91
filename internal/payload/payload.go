// Package payload converts raw segment bytes into the text-safe transport
// encoding accepted by inline-audio provider APIs.
package payload

import "encoding/base64"

// WAVHeaderBytes is the fixed size of the canonical PCM WAV header at the
// front of every segment payload.
const WAVHeaderBytes = 44

// Encode returns the standard base64 encoding of data. The whole buffer is
// encoded in one pass so the output never contains interior padding.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}

// EncodedLen reports the encoded size of n raw bytes.
func EncodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

// MaxRawLen reports the largest raw size whose encoding fits within limit.
func MaxRawLen(limit int) int {
	if limit <= 0 {
		return 0
	}
	return limit / 4 * 3
}
