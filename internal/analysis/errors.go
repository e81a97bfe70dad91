package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"callscope/internal/services"
)

// Kind classifies an analysis failure.
type Kind string

const (
	RateLimited   Kind = "rate_limited"
	AuthError     Kind = "auth_error"
	ParseError    Kind = "parse_error"
	ProviderError Kind = "provider_error"
)

// Error is the typed failure returned by Client.Analyze. None of the kinds
// are retried by the pipeline.
type Error struct {
	Kind       Kind
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

// IsKind reports whether err is an analysis Error of kind k.
func IsKind(err error, k Kind) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Kind == k
}

func classify(err error) error {
	var statusErr *services.HTTPStatusError
	if !errors.As(err, &statusErr) {
		if errors.Is(err, services.ErrMissingCredentials) {
			return &Error{Kind: AuthError, Hint: "analysis provider api key is not configured", Err: err}
		}
		hint := "analysis provider error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			hint = "analysis request timed out"
		case errors.Is(err, services.ErrRejectedPrompt):
			hint = "analysis provider refused the transcript"
		}
		return &Error{Kind: ProviderError, Hint: hint, Detail: services.Snippet(err.Error(), 200), Err: err}
	}
	out := &Error{StatusCode: statusErr.StatusCode, Detail: services.Snippet(statusErr.Body, 200), Err: err}
	body := strings.ToLower(statusErr.Body)
	switch {
	case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
		out.Kind = AuthError
		out.Hint = "analysis provider rejected the credentials, check the api key"
	case statusErr.StatusCode == http.StatusTooManyRequests || strings.Contains(body, "quota") || strings.Contains(body, "resource_exhausted"):
		out.Kind = RateLimited
		out.Hint = "rate limit reached, try again later"
	default:
		out.Kind = ProviderError
		out.Hint = fmt.Sprintf("analysis provider error (http %d)", statusErr.StatusCode)
	}
	return out
}
