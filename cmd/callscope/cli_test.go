package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"callscope/internal/calls"
	"callscope/internal/testsupport"
)

const analysisJSON = `{"outcome":"Won","outcome_score":82,"executive_summary":"Closed the renewal.",` +
	`"strengths":["clear agenda"],"improvements":["ask for referrals"],` +
	`"principle_scores":[{"principle":"Reciprocity","score":70,"evidence":"offered a pilot","recommendation":"lead with value"}],` +
	`"objections":[{"objection":"price","response":"discount","handled":true,"suggestion":"anchor on ROI"}],` +
	`"revival_scripts":[]}`

type cliEnv struct {
	baseDir    string
	configPath string
	dataDir    string
	requests   *atomic.Int32
}

// setupCLIEnv writes a config pointing both providers at a fake OpenAI
// endpoint. status overrides the fake's HTTP status when non-zero.
func setupCLIEnv(t *testing.T, status int) *cliEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		content := analysisJSON
		if bytes.Contains(body, []byte("input_audio")) {
			content = "Rep: thanks for joining. Buyer: happy to renew."
		}
		resp := map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	dataDir := filepath.Join(base, "data")
	configPath := filepath.Join(base, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		"data_dir = " + quote(dataDir),
		"log_dir = " + quote(filepath.Join(base, "logs")),
		"api_bind = \"127.0.0.1:0\"",
		"[transcription]",
		"provider = \"openai\"",
		"api_key = \"test-key\"",
		"base_url = " + quote(srv.URL),
		"model = \"gpt-audio-test\"",
		"[analysis]",
		"provider = \"openai\"",
		"model = \"gpt-test\"",
		"[retry]",
		"max_attempts = 2",
		"base_delay_ms = 0",
		"[storage]",
		"backend = \"local\"",
		"local_dir = " + quote(filepath.Join(dataDir, "segments")),
		"[logging]",
		"level = \"error\"",
		"",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliEnv{baseDir: base, configPath: configPath, dataDir: dataDir, requests: &requests}
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func runCLI(t *testing.T, env *cliEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLIEnv(t, 0)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "********")
	if strings.Contains(out, "test-key") {
		t.Fatalf("config show leaked the api key:\n%s", out)
	}

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestSegmentCommandWritesSegments(t *testing.T) {
	env := setupCLIEnv(t, 0)
	input := filepath.Join(env.baseDir, "discovery.wav")
	testsupport.WriteToneWAV(t, input, 3, 16000)
	outDir := filepath.Join(env.baseDir, "segments-out")

	out, _, err := runCLI(t, env, "segment", input, "--out", outDir, "--json")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	var report segmentReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Kind != "single" || len(report.Segments) != 1 || report.Stored == nil {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(report.Stored.Path))); err != nil {
		t.Fatalf("segment not written: %v", err)
	}
	if env.requests.Load() != 0 {
		t.Fatal("segment must not call providers")
	}
}

func TestProcessCommandPersistsAnalysis(t *testing.T) {
	env := setupCLIEnv(t, 0)
	input := filepath.Join(env.baseDir, "acme_renewal.wav")
	testsupport.WriteToneWAV(t, input, 4, 16000)

	out, _, err := runCLI(t, env, "process", input, "--owner", "alice", "--json")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var detail struct {
		Call     calls.Call     `json:"call"`
		Analysis calls.Analysis `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(out), &detail); err != nil {
		t.Fatalf("decode detail: %v\n%s", err, out)
	}
	if detail.Call.Status != calls.StatusCompleted || detail.Call.DisplayName != "Acme Renewal" {
		t.Fatalf("unexpected call %+v", detail.Call)
	}
	if detail.Analysis.Outcome != "won" || detail.Analysis.OutcomeScore != 82 {
		t.Fatalf("unexpected analysis %+v", detail.Analysis.Result)
	}
	requireContains(t, detail.Analysis.Transcript, "happy to renew")

	out, _, err = runCLI(t, env, "calls", "list", "--owner", "alice")
	if err != nil {
		t.Fatalf("calls list: %v", err)
	}
	requireContains(t, out, detail.Call.ID)
	requireContains(t, out, "completed")

	out, _, err = runCLI(t, env, "calls", "show", detail.Call.ID, "--transcript")
	if err != nil {
		t.Fatalf("calls show: %v", err)
	}
	requireContains(t, out, "Outcome: won (82/100)")
	requireContains(t, out, "Reciprocity")
	requireContains(t, out, "happy to renew")
}

func TestProcessCommandReportsProviderFailure(t *testing.T) {
	env := setupCLIEnv(t, http.StatusUnauthorized)
	input := filepath.Join(env.baseDir, "call.wav")
	testsupport.WriteToneWAV(t, input, 2, 16000)

	_, _, err := runCLI(t, env, "process", input, "-q")
	if err == nil {
		t.Fatal("expected process to fail")
	}
	requireContains(t, err.Error(), "failed")
	if got := env.requests.Load(); got != 1 {
		t.Fatalf("auth errors must not be retried, got %d requests", got)
	}

	out, _, err := runCLI(t, env, "calls", "list", "--status", "failed", "--json")
	if err != nil {
		t.Fatalf("calls list: %v", err)
	}
	var list []calls.Call
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one failed call, got %+v", list)
	}
}

func TestProcessCommandRejectsUnsupportedFile(t *testing.T) {
	env := setupCLIEnv(t, 0)
	input := filepath.Join(env.baseDir, "notes.txt")
	if err := os.WriteFile(input, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, env, "process", input); err == nil {
		t.Fatal("expected unsupported file to fail")
	}
	if env.requests.Load() != 0 {
		t.Fatal("rejected uploads must not reach providers")
	}
}

func TestCallsListValidatesStatus(t *testing.T) {
	env := setupCLIEnv(t, 0)
	if _, _, err := runCLI(t, env, "calls", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	out, _, err := runCLI(t, env, "calls", "list")
	if err != nil {
		t.Fatalf("calls list: %v", err)
	}
	requireContains(t, out, "No calls found")
}

func TestPreflightOffline(t *testing.T) {
	env := setupCLIEnv(t, 0)
	out, _, err := runCLI(t, env, "preflight")
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "Data directory")
	requireContains(t, out, "Transcription provider")
}
