// Package analysis scores a finished transcript against the persuasion
// framework and decodes the model's JSON scorecard.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callscope/internal/logging"
	"callscope/internal/services"
)

const defaultTimeout = 2 * time.Minute

// Provider is the JSON completion capability the client needs.
type Provider interface {
	Name() string
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Options tunes a Client.
type Options struct {
	Timeout   time.Duration
	Framework string
}

// Client runs the analysis pass.
type Client struct {
	provider Provider
	opts     Options
	logger   *slog.Logger
}

// NewClient wraps provider. An empty framework uses the built-in text.
func NewClient(provider Provider, opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if strings.TrimSpace(opts.Framework) == "" {
		opts.Framework = DefaultFramework()
	}
	return &Client{
		provider: provider,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "analysis"),
	}
}

// Analyze scores transcript.
func (c *Client) Analyze(ctx context.Context, transcript string) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Result{}, services.Wrap(services.ErrValidation, "analysis", "analyze", "transcript is empty", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	started := time.Now()
	content, err := c.provider.CompleteJSON(callCtx, SystemPrompt(c.opts.Framework), UserPrompt(transcript))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, classify(err)
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, &Error{Kind: ParseError, Hint: "analysis response was not valid JSON", Detail: "empty response"}
	}

	result, err := ParseResult(content)
	if err != nil {
		return Result{}, &Error{
			Kind:   ParseError,
			Hint:   "analysis response was not valid JSON",
			Detail: fmt.Sprintf("%v (payload: %s)", err, services.Snippet(content, 160)),
			Err:    errors.Join(services.ErrValidation, err),
		}
	}
	logging.WithContext(ctx, c.logger).Info("analysis complete",
		logging.String("provider", c.provider.Name()),
		logging.String("outcome", result.Outcome),
		logging.Int("outcome_score", result.OutcomeScore),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// SystemPrompt combines the framework with the output contract.
func SystemPrompt(framework string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(framework))
	sb.WriteString("\n\nRespond with a single JSON object and nothing else, using exactly these keys:\n")
	sb.WriteString(`{
  "outcome": "won | lost | follow_up | no_decision",
  "outcome_score": 0-100,
  "executive_summary": "string",
  "strengths": ["string"],
  "improvements": ["string"],
  "principle_scores": [{"principle": "string", "score": 0-100, "evidence": "string", "recommendation": "string"}],
  "objections": [{"objection": "string", "response": "string", "handled": true, "suggestion": "string"}],
  "revival_scripts": [{"channel": "email | call | sms", "script": "string"}]
}`)
	return sb.String()
}

// UserPrompt wraps the transcript.
func UserPrompt(transcript string) string {
	return "Call transcript:\n\n" + transcript
}
