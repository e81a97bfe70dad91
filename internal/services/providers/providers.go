// Package providers builds the configured model client. Both wire shapes
// implement transcription, JSON completion, and a health check.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"callscope/internal/config"
	"callscope/internal/services"
	"callscope/internal/services/gemini"
	"callscope/internal/services/openai"
)

// Client is the capability surface callers consume.
type Client interface {
	Name() string
	Model() string
	TranscribeAudio(ctx context.Context, prompt, audioBase64, mimeType string) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

// New selects the wire shape named by cfg.Provider. The HTTP client timeout
// sits above the per-call context timeout so the context always fires first.
func New(cfg config.ProviderConfig) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds)*time.Second + 30*time.Second
	httpClient := &http.Client{Timeout: timeout}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, openai.WithHTTPClient(httpClient)), nil
	case config.ProviderGemini:
		return gemini.NewClient(gemini.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, gemini.WithHTTPClient(httpClient)), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "providers", "select", fmt.Sprintf("unknown provider %q", cfg.Provider), nil)
	}
}
