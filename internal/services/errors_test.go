package services_test

import (
	"errors"
	"strings"
	"testing"

	"callscope/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "segment", "ffmpeg", "decode failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"segment", "ffmpeg", "decode failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestIsInputError(t *testing.T) {
	if !services.IsInputError(services.Wrap(services.ErrValidation, "ingest", "owner", "owner required", nil)) {
		t.Fatal("validation errors should be input errors")
	}
	if services.IsInputError(services.Wrap(services.ErrTransient, "transcribe", "call", "", errors.New("io"))) {
		t.Fatal("transient errors should not be input errors")
	}
}

func TestHTTPStatusErrorBoundsBody(t *testing.T) {
	body := strings.Repeat("secret-token ", 100)
	err := &services.HTTPStatusError{Provider: "gemini", StatusCode: 500, Body: body}
	msg := err.Error()
	if len(msg) > 300 {
		t.Fatalf("expected bounded error message, got %d bytes", len(msg))
	}
	if !strings.HasPrefix(msg, "gemini request: http 500") {
		t.Fatalf("unexpected prefix: %q", msg)
	}
	if !err.Temporary() {
		t.Fatal("500 should be temporary")
	}
	if (&services.HTTPStatusError{StatusCode: 403}).Temporary() {
		t.Fatal("403 should not be temporary")
	}
}

func TestSnippetCollapsesWhitespace(t *testing.T) {
	if got := services.Snippet("  a\n\tb   c ", 10); got != "a b c" {
		t.Fatalf("Snippet = %q", got)
	}
	if got := services.Snippet("", 10); got != "<empty>" {
		t.Fatalf("Snippet empty = %q", got)
	}
	if got := services.Snippet("abcdefghijkl", 4); got != "abcd..." {
		t.Fatalf("Snippet truncated = %q", got)
	}
}
