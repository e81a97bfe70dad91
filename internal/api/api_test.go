package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"callscope/internal/api"
	"callscope/internal/audio"
	"callscope/internal/calls"
	"callscope/internal/config"
	"callscope/internal/ingest"
	"callscope/internal/jobs"
	"callscope/internal/segstore"
	"callscope/internal/testsupport"
)

type harness struct {
	server    *httptest.Server
	store     *calls.Store
	scheduler *jobs.Scheduler
	release   func()
}

// newHarness wires the real store, scheduler and ingest flow. Jobs block in
// the transcribing stage until release is called.
func newHarness(t *testing.T, token string, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)

	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	runner := jobs.RunnerFunc(func(ctx context.Context, _ string, _ jobs.Spec, obs jobs.Observer) (string, error) {
		obs.Progress(jobs.StatusTranscribing, 40, 1, 1)
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		obs.Progress(jobs.StatusAnalyzing, 85, 1, 1)
		return "hello", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := jobs.NewScheduler(ctx, runner, nil)

	segments := segstore.NewMemory()
	segmenter := audio.NewSegmenter(audio.Options{
		TargetSegmentBytes: cfg.Audio.TargetSegmentBytes,
		SampleRate:         cfg.Audio.SampleRate,
		MinSegmentSeconds:  cfg.Audio.MinSegmentSeconds,
		MaxSegmentSeconds:  cfg.Audio.MaxSegmentSeconds,
	}, nil)
	uploads := ingest.NewService(cfg, segmenter, segments, store, scheduler, nil)

	srv := api.New(api.Deps{
		Calls:   store,
		Jobs:    scheduler,
		Uploads: uploads,
		Storage: segments.Describe(),
	}, api.Options{Token: token}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		release()
		ts.Close()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = scheduler.Shutdown(shutdownCtx)
		cancel()
	})
	return &harness{server: ts, store: store, scheduler: scheduler, release: release}
}

func (h *harness) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := h.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return h.do(t, req)
}

func (h *harness) upload(t *testing.T, fileName, owner string, body []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if owner != "" {
		if err := mw.WriteField("owner", owner); err != nil {
			t.Fatalf("write owner: %v", err)
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/api/calls", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.do(t, req)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		t.Fatalf("%s %s: status %d, want %d (%s)", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body.String())
	}
}

func TestUploadStartsJobAndRecordsCall(t *testing.T) {
	h := newHarness(t, "", nil)

	resp := h.upload(t, "acme-renewal.wav", "alice", testsupport.ToneWAV(t, 5, 16000))
	expectStatus(t, resp, http.StatusAccepted)
	sub := decode[ingest.Submission](t, resp)
	if sub.JobID == "" || sub.Call == nil || sub.Call.OwnerID != "alice" || sub.Call.DisplayName != "Acme Renewal" {
		t.Fatalf("unexpected submission %+v", sub)
	}

	resp = h.get(t, "/api/jobs/"+sub.JobID)
	expectStatus(t, resp, http.StatusOK)
	if job := decode[jobs.Job](t, resp); job.CallID != sub.Call.ID {
		t.Fatalf("job call id = %q, want %q", job.CallID, sub.Call.ID)
	}

	resp = h.get(t, "/api/calls?owner=alice&status=pending,processing")
	expectStatus(t, resp, http.StatusOK)
	list := decode[api.CallListResponse](t, resp)
	if len(list.Calls) != 1 || list.Calls[0].ID != sub.Call.ID {
		t.Fatalf("unexpected call list %+v", list.Calls)
	}

	resp = h.get(t, "/api/calls/"+sub.Call.ID)
	expectStatus(t, resp, http.StatusOK)

	resp = h.get(t, "/api/calls/"+sub.Call.ID+"/analysis")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestUploadRejectsBadInput(t *testing.T) {
	h := newHarness(t, "", nil)

	resp := h.upload(t, "notes.txt", "alice", []byte("hello"))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = h.upload(t, "call.wav", "alice", []byte("not really audio"))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = h.upload(t, "call.wav", "../etc", testsupport.ToneWAV(t, 1, 16000))
	expectStatus(t, resp, http.StatusBadRequest)

	if jobsNow := h.scheduler.Observe(); len(jobsNow) != 0 {
		t.Fatalf("rejected uploads must not start jobs, got %d", len(jobsNow))
	}
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t, "", func(cfg *config.Config) { cfg.Ingest.MaxUploadMiB = 1 })

	resp := h.upload(t, "long.wav", "alice", testsupport.ToneWAV(t, 120, 16000))
	expectStatus(t, resp, http.StatusRequestEntityTooLarge)
}

func TestListCallsValidatesQuery(t *testing.T) {
	h := newHarness(t, "", nil)

	expectStatus(t, h.get(t, "/api/calls?status=bogus"), http.StatusBadRequest)
	expectStatus(t, h.get(t, "/api/calls?limit=-1"), http.StatusBadRequest)

	resp := h.get(t, "/api/calls")
	expectStatus(t, resp, http.StatusOK)
	if list := decode[api.CallListResponse](t, resp); list.Calls == nil || len(list.Calls) != 0 {
		t.Fatalf("expected empty list, got %+v", list.Calls)
	}
}

func TestDismissHidesJob(t *testing.T) {
	h := newHarness(t, "", nil)

	resp := h.upload(t, "call.wav", "alice", testsupport.ToneWAV(t, 2, 16000))
	expectStatus(t, resp, http.StatusAccepted)
	sub := decode[ingest.Submission](t, resp)

	req, _ := http.NewRequest(http.MethodDelete, h.server.URL+"/api/jobs/"+sub.JobID, nil)
	expectStatus(t, h.do(t, req), http.StatusNoContent)

	expectStatus(t, h.get(t, "/api/jobs/"+sub.JobID), http.StatusNotFound)
	resp = h.get(t, "/api/jobs")
	expectStatus(t, resp, http.StatusOK)
	if list := decode[api.JobListResponse](t, resp); len(list.Jobs) != 0 {
		t.Fatalf("dismissed job still listed: %+v", list.Jobs)
	}

	req, _ = http.NewRequest(http.MethodDelete, h.server.URL+"/api/jobs/"+sub.JobID, nil)
	expectStatus(t, h.do(t, req), http.StatusNotFound)
}

func TestAuthRequiresBearerToken(t *testing.T) {
	h := newHarness(t, "secret", nil)

	expectStatus(t, h.get(t, "/api/jobs"), http.StatusUnauthorized)

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	expectStatus(t, h.do(t, req), http.StatusUnauthorized)

	req, _ = http.NewRequest(http.MethodGet, h.server.URL+"/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp := h.do(t, req)
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestStatusReportsCounts(t *testing.T) {
	h := newHarness(t, "", nil)

	resp := h.upload(t, "call.wav", "alice", testsupport.ToneWAV(t, 2, 16000))
	expectStatus(t, resp, http.StatusAccepted)

	resp = h.get(t, "/api/status")
	expectStatus(t, resp, http.StatusOK)
	status := decode[api.StatusResponse](t, resp)
	if status.Calls[calls.StatusPending] != 1 {
		t.Fatalf("expected one pending call, got %+v", status.Calls)
	}
	if status.Database != h.store.Path() || status.Storage == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	total := 0
	for _, n := range status.Jobs {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one tracked job, got %+v", status.Jobs)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newHarness(t, "", nil)

	expectStatus(t, h.get(t, "/api/nope"), http.StatusNotFound)
	req, _ := http.NewRequest(http.MethodPut, h.server.URL+"/api/jobs", nil)
	expectStatus(t, h.do(t, req), http.StatusMethodNotAllowed)
}

func TestJobStreamSendsSnapshotThenUpdates(t *testing.T) {
	h := newHarness(t, "", nil)

	resp := h.upload(t, "call.wav", "alice", testsupport.ToneWAV(t, 2, 16000))
	expectStatus(t, resp, http.StatusAccepted)
	sub := decode[ingest.Submission](t, resp)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/jobs"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first api.StreamMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "snapshot" || first.Job.ID != sub.JobID {
		t.Fatalf("unexpected first message %+v", first)
	}

	h.release()
	for {
		var msg api.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if msg.Type != "update" || msg.Job.ID != sub.JobID {
			continue
		}
		if msg.Job.Status == jobs.StatusComplete {
			if msg.Job.Progress != 100 || msg.Job.Transcript != "hello" {
				t.Fatalf("unexpected final job %+v", msg.Job)
			}
			return
		}
	}
}
