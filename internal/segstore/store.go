// Package segstore persists prepared audio segments and chunk manifests in an
// object store keyed by owner and job.
package segstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"callscope/internal/config"
	"callscope/internal/services"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = fmt.Errorf("segment object %w", services.ErrNotFound)

const defaultRequestTimeout = 2 * time.Minute

// Store is the minimal object API the pipeline needs.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, path string) error
	// Describe names the backend and location for logs and status output.
	Describe() string
}

// New builds the backend selected in cfg.
func New(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case "", config.StorageLocal:
		return NewLocal(cfg.LocalDir)
	case config.StorageS3:
		return NewS3(ctx, S3Options{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
			Timeout:        cfg.RequestTimeout(),
		})
	case config.StorageSupabase:
		return NewSupabase(SupabaseOptions{
			URL:     cfg.SupabaseURL,
			Bucket:  cfg.SupabaseBucket,
			Key:     cfg.SupabaseKey,
			Timeout: cfg.RequestTimeout(),
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", fmt.Sprintf("unknown backend %q", cfg.Backend), nil)
	}
}

// Retryable reports whether a failed store call could succeed on another
// attempt: deadlines, network timeouts, throttling and 5xx answers. Missing
// objects and invalid keys are permanent.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *services.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var coded interface{ HTTPStatusCode() int }
	if errors.As(err, &coded) {
		code := coded.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return false
}

// validateKey rejects keys that could escape the owner prefix.
func validateKey(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("empty object path")
	}
	if strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return fmt.Errorf("invalid object path %q", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object path %q", path)
		}
	}
	return nil
}
