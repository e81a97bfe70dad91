package services

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	if d, ok := ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("delta seconds: got %v %v", d, ok)
	}
	for _, value := range []string{"", "  ", "-3", "soon"} {
		if _, ok := ParseRetryAfter(value); ok {
			t.Fatalf("expected %q to be rejected", value)
		}
	}

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	d, ok := ParseRetryAfter(future)
	if !ok || d <= 0 || d > 90*time.Second {
		t.Fatalf("http date: got %v %v", d, ok)
	}
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if _, ok := ParseRetryAfter(past); ok {
		t.Fatal("expected past date to be rejected")
	}
}

func TestNewHTTPStatusError(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"2"}}}
	err := NewHTTPStatusError("gemini", resp, []byte("  quota\n exceeded  "))
	if err.RetryAfter != 2*time.Second || !err.Temporary() {
		t.Fatalf("unexpected error %+v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "gemini request: http 429: quota exceeded") {
		t.Fatalf("unexpected message %q", msg)
	}

	notFound := NewHTTPStatusError("openai", &http.Response{StatusCode: http.StatusNotFound, Header: http.Header{}}, nil)
	if notFound.Temporary() {
		t.Fatal("404 must not be temporary")
	}
	if !strings.HasSuffix(notFound.Error(), "<empty>") {
		t.Fatalf("expected empty body marker, got %q", notFound.Error())
	}
}
