package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"callscope/internal/payload"
	"callscope/internal/services"
)

type fakeProvider struct {
	calls   int
	prompt  string
	encoded string
	mime    string
	text    string
	err     error
	block   bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) TranscribeAudio(ctx context.Context, prompt, audioBase64, mimeType string) (string, error) {
	f.calls++
	f.prompt = prompt
	f.encoded = audioBase64
	f.mime = mimeType
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func TestTranscribeEncodesWholeSegment(t *testing.T) {
	audio := []byte("RIFF....WAVEfmt some pcm bytes!")
	provider := &fakeProvider{text: "  hello world \n"}
	client := NewClient(provider, Options{MaxSegmentBytes: 1024}, nil)

	text, err := client.Transcribe(context.Background(), audio, "", PromptContext{Index: 0, Count: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text %q", text)
	}
	if provider.encoded != payload.Encode(audio) {
		t.Fatalf("provider received %q", provider.encoded)
	}
	if provider.mime != "audio/wav" {
		t.Fatalf("expected default mime, got %q", provider.mime)
	}
	if strings.Contains(provider.prompt, "segment 1 of") {
		t.Fatalf("single segment prompt should not mention continuity: %q", provider.prompt)
	}
}

func TestTranscribeRejectsOversizedSegmentWithoutCalling(t *testing.T) {
	provider := &fakeProvider{text: "never"}
	client := NewClient(provider, Options{MaxSegmentBytes: 10}, nil)

	_, err := client.Transcribe(context.Background(), make([]byte, 11), "audio/wav", PromptContext{Index: 2, Count: 4})
	if !IsKind(err, PayloadRejected) {
		t.Fatalf("expected PayloadRejected, got %v", err)
	}
	if Retryable(err) {
		t.Fatal("payload rejection must not be retryable")
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times", provider.calls)
	}
	if !strings.Contains(err.Error(), "re-upload") {
		t.Fatalf("expected re-upload hint, got %q", err.Error())
	}
}

func TestTranscribeBlankTextIsEmptyResult(t *testing.T) {
	client := NewClient(&fakeProvider{text: " \n\t"}, Options{}, nil)
	_, err := client.Transcribe(context.Background(), []byte("x"), "", PromptContext{Count: 1})
	if !IsKind(err, EmptyResult) || !Retryable(err) {
		t.Fatalf("expected retryable EmptyResult, got %v", err)
	}
}

func TestTranscribeTimeoutIsTransientProviderError(t *testing.T) {
	client := NewClient(&fakeProvider{block: true}, Options{Timeout: 10 * time.Millisecond}, nil)
	_, err := client.Transcribe(context.Background(), []byte("x"), "", PromptContext{Count: 1})
	if !IsKind(err, ProviderError) || !Retryable(err) {
		t.Fatalf("expected retryable ProviderError, got %v", err)
	}
}

func TestTranscribeParentCancellationPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(&fakeProvider{err: context.Canceled}, Options{}, nil)
	_, err := client.Transcribe(ctx, []byte("x"), "", PromptContext{Count: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyProviderStatuses(t *testing.T) {
	long := strings.Repeat("x", 500)
	cases := []struct {
		name      string
		status    int
		body      string
		kind      Kind
		retryable bool
	}{
		{"rate limit", http.StatusTooManyRequests, "slow down", RateLimited, true},
		{"quota body", http.StatusBadRequest, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, RateLimited, true},
		{"quota project credentials", http.StatusForbidden, "API requires a quota project, which is not set by default", AuthError, false},
		{"unauthorized", http.StatusUnauthorized, "bad key", AuthError, false},
		{"forbidden", http.StatusForbidden, "denied", AuthError, false},
		{"too large", http.StatusRequestEntityTooLarge, "", PayloadRejected, false},
		{"bad base64", http.StatusBadRequest, "Invalid value: base64 decoding failed", PayloadRejected, false},
		{"bad request", http.StatusBadRequest, "unknown field foo", ProviderError, false},
		{"server", http.StatusBadGateway, long, ProviderError, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &fakeProvider{err: &services.HTTPStatusError{Provider: "fake", StatusCode: tc.status, Body: tc.body}}
			client := NewClient(provider, Options{}, nil)
			_, err := client.Transcribe(context.Background(), []byte("x"), "", PromptContext{Count: 1})
			if !IsKind(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if Retryable(err) != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", Retryable(err), tc.retryable)
			}
			var typed *Error
			errors.As(err, &typed)
			if len([]rune(typed.Detail)) > snippetLimit+3 {
				t.Fatalf("detail not bounded: %d runes", len([]rune(typed.Detail)))
			}
		})
	}
}

func TestClassifyPermanentProviderFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"missing key", fmt.Errorf("gemini transcribe: %w", services.ErrMissingCredentials), AuthError},
		{"blocked prompt", fmt.Errorf("gemini transcribe: %w: blocked (SAFETY)", services.ErrRejectedPrompt), ProviderError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewClient(&fakeProvider{err: tc.err}, Options{}, nil)
			_, err := client.Transcribe(context.Background(), []byte("x"), "", PromptContext{Count: 1})
			if !IsKind(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if Retryable(err) {
				t.Fatalf("%v must not be retried", err)
			}
		})
	}
}

func TestBuildPromptAddsContinuityForChunks(t *testing.T) {
	prompt := BuildPrompt(PromptContext{Index: 1, Count: 3}, "English")
	if !strings.Contains(prompt, "segment 2 of 3") {
		t.Fatalf("missing position: %q", prompt)
	}
	if !strings.Contains(prompt, "do not repeat content from earlier segments") {
		t.Fatalf("missing continuity instruction: %q", prompt)
	}
	if !strings.Contains(prompt, "English") {
		t.Fatalf("missing language: %q", prompt)
	}
}

func TestBuildPromptNamesLanguageFromCode(t *testing.T) {
	prompt := BuildPrompt(PromptContext{Count: 1}, "deu")
	if !strings.Contains(prompt, "The conversation is in German.") {
		t.Fatalf("expected language name in prompt: %q", prompt)
	}
	if strings.Contains(BuildPrompt(PromptContext{Count: 1}, ""), "conversation is in") {
		t.Fatal("blank language must not add a language line")
	}
}
