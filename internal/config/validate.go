package config

import (
	"errors"
	"fmt"
	"strings"

	"callscope/internal/language"
	"callscope/internal/payload"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if lang := c.Transcription.Language; lang != "" && !language.Known(lang) {
		return fmt.Errorf("transcription.language %q is not recognized (use one of %s)", lang, strings.Join(language.Supported(), ", "))
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAudio() error {
	a := c.Audio
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 48000 (got %d)", a.SampleRate)
	}
	if a.MinSegmentSeconds > a.MaxSegmentSeconds {
		return errors.New("audio.min_segment_seconds must not exceed audio.max_segment_seconds")
	}
	if a.TargetSegmentBytes <= payload.WAVHeaderBytes {
		return fmt.Errorf("audio.target_segment_bytes must exceed the %d-byte WAV header", payload.WAVHeaderBytes)
	}
	if limit := c.MaxSegmentBytes(); a.TargetSegmentBytes > limit {
		return fmt.Errorf("audio.target_segment_bytes (%d) exceeds the largest raw segment the provider accepts (%d)", a.TargetSegmentBytes, limit)
	}
	// The clamp floor must still fit the byte budget.
	if bytes := payload.WAVHeaderBytes + a.MinSegmentSeconds*a.SampleRate*2; bytes > c.MaxSegmentBytes() {
		return fmt.Errorf("audio.min_segment_seconds (%d) produces %d-byte segments, above the provider limit", a.MinSegmentSeconds, bytes)
	}
	return nil
}

func (c *Config) validateProviders() error {
	if err := validateProvider("transcription", c.Transcription.Provider, c.Transcription.APIKey); err != nil {
		return err
	}
	return validateProvider("analysis", c.Analysis.Provider, c.AnalysisProvider().APIKey)
}

func validateProvider(section, provider, apiKey string) error {
	switch provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("%s.provider must be %q or %q (got %q)", section, ProviderGemini, ProviderOpenAI, provider)
	}
	if strings.TrimSpace(apiKey) == "" {
		envName := "GEMINI_API_KEY"
		if provider == ProviderOpenAI {
			envName = "OPENAI_API_KEY"
		}
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/callscope/config.toml"
		}
		return fmt.Errorf("%s.api_key is required. Set %s env var or edit %s (create with 'callscope config init')", section, envName, defaultPath)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be at most 10 (got %d)", c.Retry.MaxAttempts)
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	switch s.Backend {
	case StorageLocal:
		return nil
	case StorageS3:
		if s.S3Bucket == "" {
			return errors.New("storage.s3_bucket must be set when storage.backend is \"s3\"")
		}
		if s.S3Region == "" && s.S3Endpoint == "" {
			return errors.New("storage.s3_region (or AWS_REGION) must be set when storage.backend is \"s3\"")
		}
		return nil
	case StorageSupabase:
		if s.SupabaseURL == "" {
			return errors.New("storage.supabase_url (or SUPABASE_URL) must be set when storage.backend is \"supabase\"")
		}
		if s.SupabaseKey == "" {
			return errors.New("storage.supabase_key (or SUPABASE_SERVICE_ROLE_KEY) must be set when storage.backend is \"supabase\"")
		}
		return nil
	default:
		return fmt.Errorf("storage.backend must be one of local, s3, supabase (got %q)", s.Backend)
	}
}
