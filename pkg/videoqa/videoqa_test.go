package videoqa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{
		APIKey:       "test-key",
		IndexID:      "idx-1",
		BaseURL:      srv.URL,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{IndexID: "idx"}); err == nil {
		t.Error("missing API key accepted")
	}
	if _, err := NewClient(Config{APIKey: "k"}); err == nil {
		t.Error("missing index ID accepted")
	}
}

func TestUploadByURL(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("index_id"); got != "idx-1" {
			t.Errorf("index_id = %q", got)
		}
		if got := r.FormValue("video_url"); got != "https://cdn.example/rec.webm" {
			t.Errorf("video_url = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"_id": "task-1", "video_id": "vid-1"})
	}))

	videoID, err := c.UploadByURL(context.Background(), "https://cdn.example/rec.webm")
	if err != nil {
		t.Fatalf("UploadByURL: %v", err)
	}
	if videoID != "vid-1" {
		t.Errorf("videoID = %q, want vid-1", videoID)
	}
}

func TestAwaitIndexedPollsUntilReady(t *testing.T) {
	t.Parallel()

	var polls atomic.Int64
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "indexing"
		if polls.Add(1) >= 3 {
			status = "ready"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))

	if err := c.AwaitIndexed(context.Background(), "vid-1"); err != nil {
		t.Fatalf("AwaitIndexed: %v", err)
	}
	if polls.Load() < 3 {
		t.Errorf("polled %d times, want at least 3", polls.Load())
	}
}

func TestAwaitIndexedFailure(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "failed"})
	}))

	if err := c.AwaitIndexed(context.Background(), "vid-1"); err == nil {
		t.Fatal("AwaitIndexed succeeded on a failed index")
	}
}

func TestAwaitIndexedHonorsContext(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "indexing"})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.AwaitIndexed(ctx, "vid-1"); err == nil {
		t.Fatal("AwaitIndexed outlived its context")
	}
}

func TestAnalyzeDecodesRubric(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %s, want /analyze", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["video_id"] != "vid-1" {
			t.Errorf("video_id = %v", req["video_id"])
		}
		if _, ok := req["response_format"]; !ok {
			t.Error("analyze request missing response_format")
		}
		inner, _ := json.Marshal(map[string]any{
			"confidence": 7, "clarity": 8, "speech_rate": 6,
			"eye_contact": 5, "body_language": 7, "voice_tone": 8,
			"key_points": []string{"clear structure", "rushed ending"},
		})
		json.NewEncoder(w).Encode(map[string]string{"data": string(inner)})
	}))

	got, err := c.Analyze(context.Background(), "vid-1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Confidence != 7 || got.Clarity != 8 {
		t.Errorf("assessment = %+v", got)
	}
	if len(got.KeyPoints) != 2 {
		t.Errorf("KeyPoints = %v, want 2 entries", got.KeyPoints)
	}
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))

	if _, err := c.Analyze(context.Background(), "vid-1"); err == nil {
		t.Fatal("Analyze swallowed a 429")
	}
}
