package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/voxhire/voxhire/pkg/core"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.webm")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestUploadRoundTrip(t *testing.T) {
	t.Parallel()

	var uploaded []byte
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/sign", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["fileName"] != "session.webm" || req["mimeType"] != "video/webm" {
			t.Errorf("sign request = %v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl": srv.URL + "/put/abc",
			"publicUrl": "https://cdn.example/abc",
		})
	})
	mux.HandleFunc("/put/abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "video/webm" {
			t.Errorf("Content-Type = %q", got)
		}
		uploaded, _ = io.ReadAll(r.Body)
	})

	u, err := NewUploader(Config{SignURL: srv.URL + "/sign", AuthToken: "tok-1"})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	path := writeArtifact(t, "webm-bytes")
	url, err := u.Upload(context.Background(), path, "video/webm")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example/abc" {
		t.Errorf("url = %q", url)
	}
	if string(uploaded) != "webm-bytes" {
		t.Errorf("uploaded %q, want webm-bytes", uploaded)
	}
}

func TestUploadFailsWhenSigningFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	u, err := NewUploader(Config{SignURL: srv.URL})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	_, err = u.Upload(context.Background(), writeArtifact(t, "x"), "video/webm")
	if err == nil {
		t.Fatal("Upload succeeded without a signed URL")
	}
	if !core.IsType(err, core.ErrUploadFailed) {
		t.Errorf("error = %v, want upload failure", err)
	}
}

func TestUploadFailsOnStorageError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/sign", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl": srv.URL + "/put",
			"publicUrl": "https://cdn.example/x",
		})
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "full", http.StatusInsufficientStorage)
	})

	u, err := NewUploader(Config{SignURL: srv.URL + "/sign"})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	if _, err := u.Upload(context.Background(), writeArtifact(t, "x"), "video/webm"); err == nil {
		t.Fatal("Upload ignored storage failure")
	}
}

func TestUploadMissingFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"uploadUrl": "http://unused", "publicUrl": "u"})
	}))
	t.Cleanup(srv.Close)

	u, err := NewUploader(Config{SignURL: srv.URL})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	if _, err := u.Upload(context.Background(), "/nonexistent/session.webm", "video/webm"); err == nil {
		t.Fatal("Upload succeeded for a missing file")
	}
}
