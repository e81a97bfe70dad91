// Package gemini talks to the Gemini generateContent REST API with inline
// audio parts and JSON response mode.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callscope/internal/services"
)

const (
	providerName       = "gemini"
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultHTTPTimeout = 3 * time.Minute
	maxResponseBytes   = 16 << 20
)

// Config captures the runtime settings required to talk to Gemini.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client wraps generateContent.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:   strings.TrimPrefix(strings.TrimSpace(cfg.Model), "models/"),
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

func (c *Client) Name() string { return providerName }

func (c *Client) Model() string { return c.cfg.Model }

// TranscribeAudio sends base64 audio as an inline_data part.
func (c *Client) TranscribeAudio(ctx context.Context, prompt, audioBase64, mimeType string) (string, error) {
	if audioBase64 == "" {
		return "", errors.New("gemini transcribe: audio required")
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	req := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: mimeType, Data: audioBase64}},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: 0},
	}
	return c.generate(ctx, req, "gemini transcribe")
}

// CompleteJSON asks for an application/json response.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", errors.New("gemini complete: system and user prompts required")
	}
	req := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: userPrompt}}}},
		GenerationConfig:  &generationConfig{Temperature: 0, ResponseMimeType: "application/json"},
	}
	return c.generate(ctx, req, "gemini complete")
}

// HealthCheck issues a tiny JSON request to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	text, err := c.CompleteJSON(ctx, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	if !strings.Contains(text, "true") {
		return fmt.Errorf("gemini health: unexpected response %s", services.Snippet(text, 80))
	}
	return nil
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) endpoint() (string, error) {
	if c.cfg.Model == "" {
		return "", errors.New("model required")
	}
	return c.cfg.BaseURL + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent", nil
}

func (c *Client) generate(ctx context.Context, payload generateRequest, op string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%s: %w", op, services.ErrMissingCredentials)
	}
	endpoint, err := c.endpoint()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: http error: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", services.NewHTTPStatusError(providerName, resp, body)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w (body: %s)", op, err, services.Snippet(string(body), 200))
	}
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%s: %w: blocked (%s)", op, services.ErrRejectedPrompt, parsed.PromptFeedback.BlockReason)
	}
	for _, candidate := range parsed.Candidates {
		var sb strings.Builder
		for _, p := range candidate.Content.Parts {
			sb.WriteString(p.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text, nil
		}
	}
	return "", nil
}
