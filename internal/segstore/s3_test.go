package segstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestS3StoreAgainstPathStyleEndpoint(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))

	var mu sync.Mutex
	var puts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/calls/o/j/chunk-000.wav":
			io.Copy(io.Discard, r.Body)
			puts = append(puts, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/calls/o/j/chunk-000.wav":
			w.Header().Set("Content-Type", "audio/wav")
			w.Write([]byte("wav-bytes"))
		case r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	store, err := NewS3(ctx, S3Options{
		Bucket:    "calls",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if err := store.Put(ctx, "o/j/chunk-000.wav", []byte("wav-bytes"), "audio/wav"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(puts) != 1 {
		t.Fatalf("expected one PUT, got %v", puts)
	}
	data, err := store.Get(ctx, "o/j/chunk-000.wav")
	if err != nil || string(data) != "wav-bytes" {
		t.Fatalf("Get = %q, %v", data, err)
	}
	if _, err := store.Get(ctx, "o/j/chunk-001.wav"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "o/j/chunk-000.wav"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !strings.HasPrefix(store.Describe(), "s3://calls") {
		t.Fatalf("unexpected description %q", store.Describe())
	}
}
