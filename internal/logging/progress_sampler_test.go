package logging

import "testing"

func TestNewProgressSamplerDefaultsBucket(t *testing.T) {
	for _, size := range []int{0, -5} {
		if s := NewProgressSampler(size); s.bucketSize != 10 {
			t.Fatalf("bucket size for %d = %d, want 10", size, s.bucketSize)
		}
	}
	if s := NewProgressSampler(25); s.bucketSize != 25 {
		t.Fatalf("custom bucket size = %d", s.bucketSize)
	}
}

func TestProgressSamplerNilAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "transcribing") {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent int
		stage   string
		want    bool
	}{
		{0, "transcribing", true},
		{4, "transcribing", false},
		{10, "transcribing", true},
		{19, "transcribing", false},
		{40, "transcribing", true},
		{85, "analyzing", true},
		{86, "analyzing", false},
		{100, "analyzing", true},
		{120, "analyzing", false},
		{-1, "analyzing", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.stage); got != step.want {
			t.Fatalf("step %d (%d%% %s): got %v want %v", i, step.percent, step.stage, got, step.want)
		}
	}
}

func TestProgressSamplerStageTrimAndReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(50, "  transcribing ")
	if s.lastStage != "transcribing" {
		t.Fatalf("lastStage = %q", s.lastStage)
	}
	s.Reset()
	if s.lastStage != "" || s.lastBucket != -1 {
		t.Fatalf("reset left state %+v", s)
	}
	if !s.ShouldLog(50, "transcribing") {
		t.Fatal("expected log after reset")
	}
}
