package segstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callscope/internal/services"
)

// SupabaseOptions configures a Supabase Storage bucket.
type SupabaseOptions struct {
	URL    string
	Bucket string
	// Key is the service-role key sent as a bearer token.
	Key        string
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration
}

// Supabase stores objects through the Supabase Storage REST API.
type Supabase struct {
	baseURL    string
	bucket     string
	key        string
	httpClient *http.Client
}

// NewSupabase returns a client for the bucket at opts.URL.
func NewSupabase(opts SupabaseOptions) (*Supabase, error) {
	if strings.TrimSpace(opts.URL) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("segment store: supabase url and bucket are required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Supabase{
		baseURL:    strings.TrimRight(opts.URL, "/") + "/storage/v1",
		bucket:     opts.Bucket,
		key:        opts.Key,
		httpClient: client,
	}, nil
}

func (s *Supabase) objectURL(path string) string {
	return fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)
}

func (s *Supabase) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	if err := validateKey(path); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("segment store: supabase request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method == http.MethodPost {
		req.Header.Set("x-upsert", "true")
	}
	return s.httpClient.Do(req)
}

func (s *Supabase) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := s.do(ctx, http.MethodPost, path, data, contentType)
	if err != nil {
		return fmt.Errorf("segment store: supabase put %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("segment store: supabase put %s: %w", path,
			&services.HTTPStatusError{Provider: "supabase", StatusCode: resp.StatusCode, Body: string(body)})
	}
	return nil
}

func (s *Supabase) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("segment store: supabase get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// Some Supabase versions answer 400 "Object not found" instead of 404.
		if resp.StatusCode == http.StatusNotFound ||
			(resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(string(body)), "not found")) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("segment store: supabase get %s: %w", path,
			&services.HTTPStatusError{Provider: "supabase", StatusCode: resp.StatusCode, Body: string(body)})
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("segment store: supabase read %s: %w", path, err)
	}
	return data, nil
}

func (s *Supabase) Delete(ctx context.Context, path string) error {
	resp, err := s.do(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return fmt.Errorf("segment store: supabase delete %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("segment store: supabase delete %s: %w", path,
			&services.HTTPStatusError{Provider: "supabase", StatusCode: resp.StatusCode, Body: string(body)})
	}
	return nil
}

func (s *Supabase) Describe() string {
	return "supabase:" + s.bucket
}
