package preflight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"callscope/internal/config"
	"callscope/internal/deps"
	"callscope/internal/segstore"
	"callscope/internal/services/providers"
)

// providerTimeout bounds a provider health check. It is a single attempt.
const providerTimeout = 30 * time.Second

// CheckProviderConfig verifies that a provider connection is fully configured
// without contacting it.
func CheckProviderConfig(name string, cfg config.ProviderConfig) Result {
	if _, err := providers.New(cfg); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s API key missing", cfg.Provider)}
	}
	if cfg.Model == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s model missing", cfg.Provider)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", cfg.Provider, cfg.Model)}
}

// CheckProvider verifies that the provider API is reachable and the key is valid.
func CheckProvider(ctx context.Context, name string, cfg config.ProviderConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	client, err := providers.New(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (%s)", client.Name(), client.Model())}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStorage validates the segment store settings. The local backend is
// checked on disk; remote backends only for completeness.
func CheckStorage(cfg config.Storage) Result {
	const name = "Segment store"
	switch cfg.Backend {
	case config.StorageLocal:
		return CheckDirectoryAccess(name, cfg.LocalDir)
	case config.StorageS3:
		if cfg.S3Bucket == "" {
			return Result{Name: name, Detail: "s3 bucket missing"}
		}
		return Result{Name: name, Passed: true, Detail: "s3://" + cfg.S3Bucket}
	case config.StorageSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return Result{Name: name, Detail: "supabase url or key missing"}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("supabase %s/%s", strings.TrimRight(cfg.SupabaseURL, "/"), cfg.SupabaseBucket)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

// CheckStorageRoundTrip writes, reads back and deletes a check object.
func CheckStorageRoundTrip(ctx context.Context, store segstore.Store) Result {
	const name = "Segment store access"
	key := "preflight/" + uuid.NewString() + ".txt"
	payload := []byte("callscope preflight")

	checkCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	if err := store.Put(checkCtx, key, payload, "text/plain"); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("write failed: %v", err)}
	}
	defer func() { _ = store.Delete(context.WithoutCancel(checkCtx), key) }()
	got, err := store.Get(checkCtx, key)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("read failed: %v", err)}
	}
	if !bytes.Equal(got, payload) {
		return Result{Name: name, Detail: "read back different content"}
	}
	return Result{Name: name, Passed: true, Detail: store.Describe() + " (read/write ok)"}
}

// CheckFFmpeg reports whether non-WAV uploads can be decoded.
func CheckFFmpeg(binary string) Result {
	status := deps.CheckBinaries([]deps.Requirement{deps.FFmpeg(binary)})[0]
	if !status.Available {
		return Result{Name: status.Name, Optional: true, Detail: status.Detail + "; only .wav uploads will decode"}
	}
	return Result{Name: status.Name, Optional: true, Passed: true, Detail: status.Path}
}

// summarizeProviderError produces a human-readable summary for health check failures.
func summarizeProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (provider API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (provider API unreachable)"
	}
	return err.Error()
}
