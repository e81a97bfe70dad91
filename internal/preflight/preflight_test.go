package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"callscope/internal/config"
	"callscope/internal/segstore"
	"callscope/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func openAIServer(t *testing.T, wantKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckProvider_OK(t *testing.T) {
	srv := openAIServer(t, "good-key")
	result := CheckProvider(context.Background(), "Analysis API", config.ProviderConfig{
		Provider: config.ProviderOpenAI,
		APIKey:   "good-key",
		BaseURL:  srv.URL,
		Model:    "gpt-test",
	})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckProvider_BadKey(t *testing.T) {
	srv := openAIServer(t, "good-key")
	result := CheckProvider(context.Background(), "Analysis API", config.ProviderConfig{
		Provider: config.ProviderOpenAI,
		APIKey:   "bad-key",
		BaseURL:  srv.URL,
		Model:    "gpt-test",
	})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckProvider_MissingKey(t *testing.T) {
	result := CheckProvider(context.Background(), "Analysis API", config.ProviderConfig{Provider: config.ProviderOpenAI})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckProviderConfig(t *testing.T) {
	if r := CheckProviderConfig("x", config.ProviderConfig{Provider: "mystery", APIKey: "k", Model: "m"}); r.Passed {
		t.Fatal("expected unknown provider to fail")
	}
	if r := CheckProviderConfig("x", config.ProviderConfig{Provider: config.ProviderGemini, Model: "m"}); r.Passed {
		t.Fatal("expected missing key to fail")
	}
	if r := CheckProviderConfig("x", config.ProviderConfig{Provider: config.ProviderGemini, APIKey: "k", Model: "m"}); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
}

func TestCheckStorageRoundTrip(t *testing.T) {
	store := segstore.NewMemory()
	result := CheckStorageRoundTrip(context.Background(), store)
	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("check object left behind: %v", keys)
	}
}

func TestCheckFFmpegIsOptional(t *testing.T) {
	result := CheckFFmpeg("clearly-not-present-ffmpeg")
	if result.Passed || !result.Optional {
		t.Fatalf("unexpected result %+v", result)
	}
	if failed := Failed([]Result{result}); len(failed) != 0 {
		t.Fatalf("optional failure must not block startup: %+v", failed)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, Options{})
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_OfflineConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Transcription.Model = "gemini-test"
	cfg.Analysis.Model = "gemini-test"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	results := RunAll(context.Background(), cfg, Options{})
	// data, logs, storage, ffmpeg, one shared provider
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_OnlineChecksDistinctAnalysisProvider(t *testing.T) {
	srv := openAIServer(t, "analysis-key")
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Model = "gemini-test"
	cfg.Transcription.APIKey = ""
	cfg.Analysis.Provider = config.ProviderOpenAI
	cfg.Analysis.APIKey = "analysis-key"
	cfg.Analysis.BaseURL = srv.URL
	cfg.Analysis.Model = "gpt-test"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	results := RunAll(context.Background(), cfg, Options{Online: true})
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	if r, ok := byName["Analysis API"]; !ok || !r.Passed {
		t.Fatalf("expected passing analysis check, got %+v", r)
	}
	if r, ok := byName["Transcription API"]; !ok || r.Passed {
		t.Fatalf("expected failing transcription check without key, got %+v", r)
	}
	if r, ok := byName["Segment store access"]; !ok || !r.Passed {
		t.Fatalf("expected passing storage round trip, got %+v", r)
	}

	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected transcription config and API to fail, got %+v", failed)
	}
}
