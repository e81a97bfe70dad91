package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"callscope/internal/audio"
	"callscope/internal/calls"
	"callscope/internal/config"
	"callscope/internal/jobs"
	"callscope/internal/segstore"
	"callscope/internal/services"
	"callscope/internal/testsupport"
)

type recordingStarter struct {
	mu    sync.Mutex
	specs []jobs.Spec
}

func (r *recordingStarter) Start(spec jobs.Spec) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	return spec.ID
}

func newService(t *testing.T, mutate func(*config.Config)) (*Service, *calls.Store, *segstore.Memory, *recordingStarter) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	segments := segstore.NewMemory()
	starter := &recordingStarter{}
	segmenter := audio.NewSegmenter(audio.Options{
		TargetSegmentBytes: cfg.Audio.TargetSegmentBytes,
		SampleRate:         cfg.Audio.SampleRate,
		MinSegmentSeconds:  cfg.Audio.MinSegmentSeconds,
		MaxSegmentSeconds:  cfg.Audio.MaxSegmentSeconds,
	}, nil)
	return NewService(cfg, segmenter, segments, store, starter, nil), store, segments, starter
}

func TestSubmitCreatesPendingCallAndStartsJob(t *testing.T) {
	svc, store, segments, starter := newService(t, nil)
	ctx := context.Background()

	var progress []int
	sub, err := svc.Submit(ctx, Request{
		OwnerID:  "alice",
		FileName: "acme_discovery-call.wav",
		Body:     bytes.NewReader(testsupport.ToneWAV(t, 10, 16000)),
		Progress: func(p int) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Kind != audio.KindSingle || sub.Segments != 1 {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if sub.Call.Status != calls.StatusPending || sub.Call.DisplayName != "Acme Discovery Call" || sub.Call.OwnerID != "alice" {
		t.Fatalf("unexpected call %+v", sub.Call)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("segmentation progress not reported: %v", progress)
	}

	if len(starter.specs) != 1 {
		t.Fatalf("expected one started job, got %d", len(starter.specs))
	}
	spec := starter.specs[0]
	if spec.ID != sub.JobID || spec.CallID != sub.Call.ID || spec.Source != sub.Source {
		t.Fatalf("spec does not match submission: %+v", spec)
	}
	if _, err := segments.Get(ctx, segstore.SinglePath("alice", sub.JobID)); err != nil {
		t.Fatalf("segment not stored: %v", err)
	}
	if _, err := store.Get(ctx, sub.Call.ID); err != nil {
		t.Fatalf("call not persisted: %v", err)
	}
}

func TestSubmitDefaultsOwner(t *testing.T) {
	svc, _, _, _ := newService(t, func(cfg *config.Config) { cfg.Ingest.DefaultOwner = "team" })
	sub, err := svc.Submit(context.Background(), Request{FileName: "call.wav", Body: bytes.NewReader(testsupport.ToneWAV(t, 1, 16000))})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Call.OwnerID != "team" {
		t.Fatalf("expected default owner, got %s", sub.Call.OwnerID)
	}
}

func TestSubmitInputErrorsCreateNothing(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"bad extension", Request{FileName: "notes.txt", Body: strings.NewReader("hi")}},
		{"bad owner", Request{OwnerID: "../etc", FileName: "call.wav", Body: strings.NewReader("hi")}},
		{"missing body", Request{FileName: "call.wav"}},
		{"undecodable", Request{FileName: "call.wav", Body: strings.NewReader("definitely not audio")}},
		{"empty", Request{FileName: "call.wav", Body: strings.NewReader("")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, segments, starter := newService(t, nil)
			_, err := svc.Submit(context.Background(), tc.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(starter.specs) != 0 || len(segments.Keys()) != 0 {
				t.Fatalf("input error must not create jobs or segments")
			}
			list, _ := store.List(context.Background(), calls.ListFilter{})
			if len(list) != 0 {
				t.Fatalf("input error must not create calls")
			}
		})
	}
}

func TestSubmitRejectsOversizedUpload(t *testing.T) {
	svc, _, _, _ := newService(t, func(cfg *config.Config) { cfg.Ingest.MaxUploadMiB = 1 })
	wav := testsupport.ToneWAV(t, 40, 16000)
	_, err := svc.Submit(context.Background(), Request{FileName: "big.wav", Body: bytes.NewReader(wav)})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

// stutterReader returns no data and no error before every real read.
type stutterReader struct {
	r     io.Reader
	empty bool
}

func (s *stutterReader) Read(p []byte) (int, error) {
	s.empty = !s.empty
	if s.empty {
		return 0, nil
	}
	return s.r.Read(p)
}

func TestLimitedReaderDetectsOverflowAfterEmptyRead(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"exactly at limit", "abcd", nil},
		{"one byte over", "abcde", ErrTooLarge},
		{"well over", "abcdefghij", ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lr := &limitedReader{r: &stutterReader{r: strings.NewReader(tc.body)}, remaining: 4}
			got, err := io.ReadAll(lr)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if tc.want == nil && string(got) != tc.body {
				t.Fatalf("read %q, want %q", got, tc.body)
			}
		})
	}
}

func TestLimitedReaderStopsOnStalledReader(t *testing.T) {
	lr := &limitedReader{r: stalledReader{}, remaining: 0}
	if _, err := lr.Read(make([]byte, 8)); !errors.Is(err, io.ErrNoProgress) {
		t.Fatalf("expected io.ErrNoProgress, got %v", err)
	}
}

type stalledReader struct{}

func (stalledReader) Read([]byte) (int, error) { return 0, nil }

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"acme_discovery-call.wav": "Acme Discovery Call",
		"/tmp/q3 renewal.mp3":     "Q3 Renewal",
		"___.wav":                 "Untitled Call",
	}
	for in, want := range cases {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
