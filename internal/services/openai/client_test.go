package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callscope/internal/services"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	}
}

func TestTranscribeAudioSendsInputAudioPart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type       string `json:"type"`
					Text       string `json:"text"`
					InputAudio struct {
						Data   string `json:"data"`
						Format string `json:"format"`
					} `json:"input_audio"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		parts := req.Messages[0].Content
		if len(parts) != 2 || parts[0].Text != "transcribe" || parts[1].InputAudio.Data != "UklGRg==" || parts[1].InputAudio.Format != "wav" {
			t.Errorf("unexpected parts %+v", parts)
		}
		json.NewEncoder(w).Encode(completionBody("  hello there  "))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "audio-model"})
	text, err := client.TranscribeAudio(context.Background(), "transcribe", "UklGRg==", "audio/wav")
	if err != nil {
		t.Fatalf("TranscribeAudio: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestNon2xxReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	_, err := client.CompleteJSON(context.Background(), "sys", "user")
	var statusErr *services.HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests || statusErr.RetryAfter != 7*time.Second {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if !strings.Contains(statusErr.Body, "Rate limit") {
		t.Fatalf("body not captured: %q", statusErr.Body)
	}
}

func TestCompleteJSONRequestsJSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		format, _ := req["response_format"].(map[string]any)
		if format["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", req["response_format"])
		}
		json.NewEncoder(w).Encode(completionBody(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestBlankContentIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("   "))
	}))
	defer server.Close()

	text, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}).TranscribeAudio(context.Background(), "p", "AAAA", "")
	if err != nil || text != "" {
		t.Fatalf("expected blank text without error, got %q %v", text, err)
	}
}

func TestMissingKeyFailsFast(t *testing.T) {
	if _, err := NewClient(Config{}).CompleteJSON(context.Background(), "s", "u"); !errors.Is(err, services.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}

func TestRefusalIsRejectedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "", "refusal": "cannot help"}}},
		})
	}))
	defer server.Close()

	_, err := NewClient(Config{APIKey: "k", BaseURL: server.URL}).CompleteJSON(context.Background(), "s", "u")
	if !errors.Is(err, services.ErrRejectedPrompt) {
		t.Fatalf("expected rejected prompt, got %v", err)
	}
}
