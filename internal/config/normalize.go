package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"callscope/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAudio()
	c.normalizeTranscription()
	c.normalizeAnalysis()
	c.normalizeRetry()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeIngest()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CALLSCOPE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeAudio() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.TargetSegmentBytes <= 0 {
		c.Audio.TargetSegmentBytes = defaultTargetSegmentBytes
	}
	if c.Audio.ProviderLimitBytes <= 0 {
		c.Audio.ProviderLimitBytes = defaultProviderLimitBytes
	}
	if c.Audio.MinSegmentSeconds <= 0 {
		c.Audio.MinSegmentSeconds = defaultMinSegmentSeconds
	}
	if c.Audio.MaxSegmentSeconds <= 0 {
		c.Audio.MaxSegmentSeconds = defaultMaxSegmentSeconds
	}
	c.Audio.FFmpegBinary = strings.TrimSpace(c.Audio.FFmpegBinary)
	if c.Audio.FFmpegBinary == "" {
		c.Audio.FFmpegBinary = defaultFFmpegBinary
	}
}

func providerKeyFromEnv(provider string) string {
	var name string
	switch provider {
	case ProviderOpenAI:
		name = "OPENAI_API_KEY"
	case ProviderGemini:
		name = "GEMINI_API_KEY"
	default:
		return ""
	}
	if value, ok := os.LookupEnv(name); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.Provider = strings.ToLower(strings.TrimSpace(t.Provider))
	if t.Provider == "" {
		t.Provider = defaultTranscriptionProvider
	}
	if strings.TrimSpace(t.APIKey) == "" {
		t.APIKey = providerKeyFromEnv(t.Provider)
	}
	t.BaseURL = strings.TrimSpace(t.BaseURL)
	t.Model = strings.TrimSpace(t.Model)
	switch t.Provider {
	case ProviderGemini:
		if t.BaseURL == "" {
			t.BaseURL = defaultGeminiBaseURL
		}
		if t.Model == "" {
			t.Model = defaultGeminiModel
		}
	case ProviderOpenAI:
		if t.BaseURL == "" {
			t.BaseURL = defaultOpenAIBaseURL
		}
		if t.Model == "" {
			t.Model = defaultOpenAITranscribeModel
		}
	}
	t.Language = strings.TrimSpace(t.Language)
	if code := language.Normalize(t.Language); code != "" {
		t.Language = code
	}
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = defaultTranscriptionTimeout
	}
}

func (c *Config) normalizeAnalysis() {
	a := &c.Analysis
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	if a.Provider == "" {
		a.Provider = c.Transcription.Provider
	}
	if strings.TrimSpace(a.APIKey) == "" {
		a.APIKey = providerKeyFromEnv(a.Provider)
	}
	a.BaseURL = strings.TrimSpace(a.BaseURL)
	a.Model = strings.TrimSpace(a.Model)
	switch a.Provider {
	case ProviderGemini:
		if a.BaseURL == "" {
			a.BaseURL = defaultGeminiBaseURL
		}
		if a.Model == "" {
			a.Model = defaultGeminiModel
		}
	case ProviderOpenAI:
		if a.BaseURL == "" {
			a.BaseURL = defaultOpenAIBaseURL
		}
		if a.Model == "" {
			a.Model = defaultOpenAIAnalysisModel
		}
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = defaultAnalysisTimeout
	}
	if strings.TrimSpace(a.FrameworkPath) != "" {
		if expanded, err := expandPath(a.FrameworkPath); err == nil {
			a.FrameworkPath = expanded
		}
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.BaseDelayMillis < 0 {
		c.Retry.BaseDelayMillis = 0
	}
}

func (c *Config) normalizeStorage() error {
	s := &c.Storage
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = defaultStorageBackend
	}
	if strings.TrimSpace(s.LocalDir) == "" {
		s.LocalDir = filepath.Join(c.Paths.DataDir, "segments")
	}
	var err error
	if s.LocalDir, err = expandPath(s.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	lookup := func(field *string, names ...string) {
		if strings.TrimSpace(*field) != "" {
			*field = strings.TrimSpace(*field)
			return
		}
		for _, name := range names {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				*field = strings.TrimSpace(value)
				return
			}
		}
	}
	lookup(&s.S3Region, "AWS_REGION", "AWS_DEFAULT_REGION")
	lookup(&s.S3AccessKey, "AWS_ACCESS_KEY_ID")
	lookup(&s.S3SecretKey, "AWS_SECRET_ACCESS_KEY")
	lookup(&s.S3Endpoint, "AWS_ENDPOINT_URL_S3")
	lookup(&s.SupabaseURL, "SUPABASE_URL")
	lookup(&s.SupabaseKey, "SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_KEY")
	s.S3Bucket = strings.TrimSpace(s.S3Bucket)
	s.SupabaseURL = strings.TrimRight(s.SupabaseURL, "/")
	s.SupabaseBucket = strings.TrimSpace(s.SupabaseBucket)
	if s.Backend == StorageSupabase && s.SupabaseBucket == "" {
		s.SupabaseBucket = defaultSupabaseSegmentsBucket
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = defaultStorageTimeout
	}
	return nil
}

func (c *Config) normalizeIngest() {
	c.Ingest.DefaultOwner = strings.TrimSpace(c.Ingest.DefaultOwner)
	if c.Ingest.DefaultOwner == "" {
		c.Ingest.DefaultOwner = defaultOwner
	}
	exts := make([]string, 0, len(c.Ingest.Extensions))
	seen := make(map[string]struct{}, len(c.Ingest.Extensions))
	for _, ext := range c.Ingest.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultExtensions...)
	}
	c.Ingest.Extensions = exts
	if c.Ingest.SettleSeconds < 0 {
		c.Ingest.SettleSeconds = 0
	}
	if c.Ingest.MaxUploadMiB <= 0 {
		c.Ingest.MaxUploadMiB = defaultMaxUploadMiB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
