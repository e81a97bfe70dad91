package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"callscope/internal/services"
)

// Kind classifies a transcription failure.
type Kind string

const (
	RateLimited     Kind = "rate_limited"
	AuthError       Kind = "auth_error"
	PayloadRejected Kind = "payload_rejected"
	ProviderError   Kind = "provider_error"
	EmptyResult     Kind = "empty_result"
)

const snippetLimit = 200

// Error is the typed failure returned by Client.Transcribe. Hint is the
// user-facing explanation; Detail carries a bounded provider snippet.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Hint       string
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Hint
	}
	return fmt.Sprintf("%s: %s", e.Hint, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a transcription Error of kind k.
func IsKind(err error, k Kind) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Kind == k
}

// Retryable reports whether another attempt could succeed. Rate limits,
// blank transcripts, timeouts and 5xx responses qualify; credential, payload
// and content-policy problems do not.
func Retryable(err error) bool {
	var typed *Error
	if !errors.As(err, &typed) || errors.Is(err, services.ErrRejectedPrompt) {
		return false
	}
	switch typed.Kind {
	case RateLimited, EmptyResult:
		return true
	case ProviderError:
		return typed.StatusCode == 0 || typed.StatusCode >= http.StatusInternalServerError || typed.StatusCode == http.StatusRequestTimeout
	default:
		return false
	}
}

var (
	quotaHints   = []string{"quota", "resource_exhausted", "rate limit", "rate_limit", "too many requests"}
	payloadHints = []string{"too large", "payload", "request entity", "size", "exceeds", "base64", "invalid audio", "encoding", "decode", "unsupported format", "could not process"}
)

func classify(provider string, err error) error {
	var statusErr *services.HTTPStatusError
	if !errors.As(err, &statusErr) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return &Error{Kind: ProviderError, Provider: provider, Hint: "transcription request timed out", Err: err}
		case errors.Is(err, services.ErrMissingCredentials):
			return &Error{Kind: AuthError, Provider: provider, Hint: "transcription provider api key is not configured", Err: err}
		case errors.Is(err, services.ErrRejectedPrompt):
			return &Error{
				Kind:     ProviderError,
				Provider: provider,
				Hint:     "transcription provider refused the segment",
				Detail:   services.Snippet(err.Error(), snippetLimit),
				Err:      err,
			}
		}
		return &Error{
			Kind:     ProviderError,
			Provider: provider,
			Hint:     "transcription provider error",
			Detail:   services.Snippet(err.Error(), snippetLimit),
			Err:      err,
		}
	}

	body := strings.ToLower(statusErr.Body)
	detail := services.Snippet(statusErr.Body, snippetLimit)
	out := &Error{Provider: provider, StatusCode: statusErr.StatusCode, Detail: detail, Err: err}
	switch {
	case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
		out.Kind = AuthError
		out.Hint = "transcription provider rejected the credentials, check the api key"
	case statusErr.StatusCode == http.StatusTooManyRequests || containsAny(body, quotaHints):
		out.Kind = RateLimited
		out.Hint = "rate limit reached, try again later"
	case statusErr.StatusCode == http.StatusRequestEntityTooLarge ||
		(statusErr.StatusCode == http.StatusBadRequest && containsAny(body, payloadHints)):
		out.Kind = PayloadRejected
		out.Hint = "audio encoding error, re-upload the recording"
	default:
		out.Kind = ProviderError
		out.Hint = fmt.Sprintf("transcription provider error (http %d)", statusErr.StatusCode)
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
