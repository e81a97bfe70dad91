// Package transcribe turns one audio segment into text through the
// configured provider. It owns the prompt, the pre-flight size check, the
// per-call timeout, and the mapping of provider failures to typed errors.
// Retries are the caller's concern; see Retryable.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"callscope/internal/language"
	"callscope/internal/logging"
	"callscope/internal/payload"
)

const defaultTimeout = 3 * time.Minute

// Provider is the wire-shape capability the client needs.
type Provider interface {
	Name() string
	TranscribeAudio(ctx context.Context, prompt, audioBase64, mimeType string) (string, error)
}

// PromptContext places a segment within its recording.
type PromptContext struct {
	Index int
	Count int
}

// Options tunes a Client.
type Options struct {
	// MaxSegmentBytes rejects raw segments whose encoded form would exceed
	// the provider limit. Zero disables the check.
	MaxSegmentBytes int
	Timeout         time.Duration
	Language        string
}

// Client submits single segments.
type Client struct {
	provider Provider
	opts     Options
	logger   *slog.Logger
}

// NewClient wraps provider.
func NewClient(provider Provider, opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Client{
		provider: provider,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "transcribe"),
	}
}

// Transcribe sends one segment and returns its trimmed transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mime string, pc PromptContext) (string, error) {
	name := c.provider.Name()
	if len(audio) == 0 {
		return "", &Error{Kind: PayloadRejected, Provider: name, Hint: "audio encoding error, re-upload the recording", Detail: "segment is empty"}
	}
	if limit := c.opts.MaxSegmentBytes; limit > 0 && len(audio) > limit {
		return "", &Error{
			Kind:     PayloadRejected,
			Provider: name,
			Hint:     "segment exceeds the provider upload limit, re-upload the recording",
			Detail: fmt.Sprintf("segment %d is %s, limit %s",
				pc.Index+1, humanize.Bytes(uint64(len(audio))), humanize.Bytes(uint64(limit))),
		}
	}
	if mime == "" {
		mime = "audio/wav"
	}

	encoded := payload.Encode(audio)
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	started := time.Now()
	text, err := c.provider.TranscribeAudio(callCtx, BuildPrompt(pc, c.opts.Language), encoded, mime)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", classify(name, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &Error{Kind: EmptyResult, Provider: name, Hint: "transcription provider returned no text"}
	}
	logging.WithContext(ctx, c.logger).Debug("segment transcribed",
		logging.Int("segment_index", pc.Index),
		logging.Int("segment_count", pc.Count),
		logging.Int("characters", len(text)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return text, nil
}

// BuildPrompt returns the instruction text for a segment.
func BuildPrompt(pc PromptContext, lang string) string {
	var sb strings.Builder
	sb.WriteString("Transcribe this sales call recording verbatim. ")
	sb.WriteString("Label speaker turns as \"Rep:\" and \"Prospect:\" when they can be told apart. ")
	sb.WriteString("Return only the transcript text, without commentary or markdown.")
	if name := language.DisplayName(lang); name != "" {
		fmt.Fprintf(&sb, " The conversation is in %s.", name)
	}
	if pc.Count > 1 {
		fmt.Fprintf(&sb, "\n\nThis audio is segment %d of %d of one continuous call. ", pc.Index+1, pc.Count)
		sb.WriteString("Transcribe only what is spoken in this segment and do not repeat content from earlier segments.")
	}
	return sb.String()
}
