// Package audio turns an uploaded recording into provider-safe WAV segments.
//
// Prepare decodes the source (WAV natively, other containers through ffmpeg),
// downmixes and resamples it to mono PCM at the configured rate, and splits
// the samples into self-contained WAV files whose size stays within the raw
// byte budget. Recordings that fit one segment produce a single result; longer
// recordings produce an ordered, chunked result.
package audio
