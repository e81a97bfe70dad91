package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"callscope/internal/payload"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Audio controls how uploads are decoded and split before transcription.
type Audio struct {
	// SampleRate is the mono rate every segment is resampled to. Default: 16000.
	SampleRate int `toml:"sample_rate"`
	// TargetSegmentBytes is the raw WAV size budget per segment, header included.
	TargetSegmentBytes int `toml:"target_segment_bytes"`
	// ProviderLimitBytes is the largest transport-encoded payload the
	// transcription provider accepts inline.
	ProviderLimitBytes int    `toml:"provider_limit_bytes"`
	MinSegmentSeconds  int    `toml:"min_segment_seconds"`
	MaxSegmentSeconds  int    `toml:"max_segment_seconds"`
	FFmpegBinary       string `toml:"ffmpeg_binary"`
}

// Transcription contains connection settings for the speech-to-text provider.
type Transcription struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Analysis contains connection settings for the scoring model.
type Analysis struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// FrameworkPath optionally replaces the built-in framework context.
	FrameworkPath string `toml:"framework_path"`
}

// Retry controls per-segment transcription retries.
type Retry struct {
	MaxAttempts     int `toml:"max_attempts"`
	BaseDelayMillis int `toml:"base_delay_ms"`
}

// Storage selects and configures the segment store backend.
type Storage struct {
	Backend          string `toml:"backend"`
	LocalDir         string `toml:"local_dir"`
	S3Bucket         string `toml:"s3_bucket"`
	S3Region         string `toml:"s3_region"`
	S3Endpoint       string `toml:"s3_endpoint"`
	S3AccessKey      string `toml:"s3_access_key"`
	S3SecretKey      string `toml:"s3_secret_key"`
	S3ForcePathStyle bool   `toml:"s3_force_path_style"`
	SupabaseURL      string `toml:"supabase_url"`
	SupabaseBucket   string `toml:"supabase_bucket"`
	SupabaseKey      string `toml:"supabase_key"`
	// TimeoutSeconds bounds each segment store request, uploads and
	// downloads alike.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// RequestTimeout returns the per-request segment store deadline.
func (s Storage) RequestTimeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Ingest contains settings shared by the CLI, HTTP uploads, and the watch folder.
type Ingest struct {
	DefaultOwner  string   `toml:"default_owner"`
	Extensions    []string `toml:"extensions"`
	SettleSeconds int      `toml:"settle_seconds"`
	MaxUploadMiB  int      `toml:"max_upload_mib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for callscope.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Audio: segmentation budget and sample rate
//   - Transcription: speech-to-text provider connection
//   - Analysis: scoring provider connection and framework override
//   - Retry: per-segment retry policy
//   - Storage: segment store backend (local, s3, supabase)
//   - Ingest: owner defaults, accepted extensions, watch folder settling
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Audio         Audio         `toml:"audio"`
	Transcription Transcription `toml:"transcription"`
	Analysis      Analysis      `toml:"analysis"`
	Retry         Retry         `toml:"retry"`
	Storage       Storage       `toml:"storage"`
	Ingest        Ingest        `toml:"ingest"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/callscope/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("callscope.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for CLI and server operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding call and analysis records.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "callscope.db")
}

// LockPath returns the lock file guarding single-instance server/watch runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "callscope.lock")
}

// MaxSegmentBytes returns the largest raw segment whose transport encoding
// still fits the provider limit.
func (c *Config) MaxSegmentBytes() int {
	return payload.MaxRawLen(c.Audio.ProviderLimitBytes)
}

// RetryBaseDelay returns the per-attempt backoff unit as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ProviderConfig is the connection shape shared by transcription and analysis
// provider clients.
type ProviderConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// TranscriptionProvider returns the speech-to-text connection settings.
func (c *Config) TranscriptionProvider() ProviderConfig {
	return ProviderConfig{
		Provider:       c.Transcription.Provider,
		APIKey:         strings.TrimSpace(c.Transcription.APIKey),
		BaseURL:        strings.TrimSpace(c.Transcription.BaseURL),
		Model:          strings.TrimSpace(c.Transcription.Model),
		TimeoutSeconds: c.Transcription.TimeoutSeconds,
	}
}

// AnalysisProvider returns the scoring model connection settings. Empty
// connection fields fall back to [transcription] when both sections point at
// the same provider.
func (c *Config) AnalysisProvider() ProviderConfig {
	cfg := ProviderConfig{
		Provider:       c.Analysis.Provider,
		APIKey:         strings.TrimSpace(c.Analysis.APIKey),
		BaseURL:        strings.TrimSpace(c.Analysis.BaseURL),
		Model:          strings.TrimSpace(c.Analysis.Model),
		TimeoutSeconds: c.Analysis.TimeoutSeconds,
	}
	if cfg.Provider == c.Transcription.Provider {
		if cfg.APIKey == "" {
			cfg.APIKey = strings.TrimSpace(c.Transcription.APIKey)
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
		}
	}
	return cfg
}
