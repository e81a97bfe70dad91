package segstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"callscope/internal/audio"
	"callscope/internal/services"
)

// ManifestVersion is the only manifest layout this package reads or writes.
const ManifestVersion = 1

const (
	contentTypeWAV  = "audio/wav"
	contentTypeJSON = "application/json"
)

// Manifest lists the chunks of a split recording. Chunk order is playback order.
type Manifest struct {
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	OriginalFileName string    `json:"originalFileName"`
	SampleRate       int       `json:"sampleRate"`
	ChunkSeconds     int       `json:"chunkSeconds"`
	Chunks           []string  `json:"chunks"`
}

// Source identifies stored audio for one job: either a single WAV or a manifest.
type Source struct {
	Kind audio.Kind `json:"kind"`
	Path string     `json:"path"`
}

// SaveResult uploads every segment of result and, for chunked results, the
// manifest. Partial uploads are removed when a later upload fails.
func SaveResult(ctx context.Context, store Store, owner, jobID, originalName string, result audio.Result) (Source, error) {
	if err := ValidateComponent("owner", owner); err != nil {
		return Source{}, services.Wrap(services.ErrValidation, "storage", "save", "reject key", err)
	}
	if err := ValidateComponent("job id", jobID); err != nil {
		return Source{}, services.Wrap(services.ErrValidation, "storage", "save", "reject key", err)
	}
	if len(result.Segments) == 0 {
		return Source{}, services.Wrap(services.ErrValidation, "storage", "save", "no segments to store", nil)
	}

	if result.Kind == audio.KindSingle {
		path := SinglePath(owner, jobID)
		if err := store.Put(ctx, path, result.Segments[0].Data, contentTypeWAV); err != nil {
			return Source{}, fmt.Errorf("store segment: %w", err)
		}
		return Source{Kind: audio.KindSingle, Path: path}, nil
	}

	manifest := Manifest{
		Version:          ManifestVersion,
		CreatedAt:        time.Now().UTC(),
		OriginalFileName: originalName,
		SampleRate:       result.SampleRate,
		ChunkSeconds:     result.ChunkSeconds,
		Chunks:           make([]string, 0, len(result.Segments)),
	}
	for _, seg := range result.Segments {
		path := ChunkPath(owner, jobID, seg.Index)
		if err := store.Put(ctx, path, seg.Data, contentTypeWAV); err != nil {
			removeAll(context.WithoutCancel(ctx), store, manifest.Chunks)
			return Source{}, fmt.Errorf("store chunk %d: %w", seg.Index, err)
		}
		manifest.Chunks = append(manifest.Chunks, path)
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Source{}, fmt.Errorf("encode manifest: %w", err)
	}
	manifestPath := ManifestPath(owner, jobID)
	if err := store.Put(ctx, manifestPath, encoded, contentTypeJSON); err != nil {
		removeAll(context.WithoutCancel(ctx), store, manifest.Chunks)
		return Source{}, fmt.Errorf("store manifest: %w", err)
	}
	return Source{Kind: audio.KindChunked, Path: manifestPath}, nil
}

// LoadManifest reads and validates a manifest.
func LoadManifest(ctx context.Context, store Store, path string) (Manifest, error) {
	data, err := store.Get(ctx, path)
	if err != nil {
		return Manifest{}, fmt.Errorf("load manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, services.Wrap(services.ErrValidation, "storage", "manifest", "decode manifest", err)
	}
	if manifest.Version != ManifestVersion {
		return Manifest{}, services.Wrap(services.ErrValidation, "storage", "manifest",
			fmt.Sprintf("unsupported manifest version %d", manifest.Version), nil)
	}
	if len(manifest.Chunks) == 0 {
		return Manifest{}, services.Wrap(services.ErrValidation, "storage", "manifest", "manifest lists no chunks", nil)
	}
	for _, chunk := range manifest.Chunks {
		if err := validateKey(chunk); err != nil || !strings.HasSuffix(chunk, ".wav") {
			return Manifest{}, services.Wrap(services.ErrValidation, "storage", "manifest",
				fmt.Sprintf("invalid chunk path %q", chunk), err)
		}
	}
	return manifest, nil
}

// SegmentPaths resolves source into the ordered list of WAV object paths.
func SegmentPaths(ctx context.Context, store Store, source Source) ([]string, error) {
	switch source.Kind {
	case audio.KindSingle:
		return []string{source.Path}, nil
	case audio.KindChunked:
		manifest, err := LoadManifest(ctx, store, source.Path)
		if err != nil {
			return nil, err
		}
		return append([]string(nil), manifest.Chunks...), nil
	default:
		return nil, services.Wrap(services.ErrValidation, "storage", "resolve",
			fmt.Sprintf("unknown source kind %q", source.Kind), nil)
	}
}

// RemoveSource deletes every object belonging to source.
func RemoveSource(ctx context.Context, store Store, source Source) error {
	paths, err := SegmentPaths(ctx, store, source)
	if err != nil {
		return err
	}
	if source.Kind == audio.KindChunked {
		paths = append(paths, source.Path)
	}
	return removeAll(ctx, store, paths)
}

func removeAll(ctx context.Context, store Store, paths []string) error {
	var firstErr error
	for _, path := range paths {
		if err := store.Delete(ctx, path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
