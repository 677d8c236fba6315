// Package upload pushes finished recording artifacts to storage. The
// backend issues a short-lived signed URL; the artifact is PUT there
// directly so the media never proxies through the API.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/voxhire/voxhire/pkg/core"
)

// Config describes the signing backend.
type Config struct {
	// SignURL is the endpoint that issues signed upload URLs.
	SignURL string

	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string

	// HTTPClient overrides the default client. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives upload diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Uploader uploads recording artifacts.
type Uploader struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewUploader validates the backend configuration.
func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.SignURL == "" {
		return nil, core.NewInvalidRequestError("signing endpoint is required", "signURL")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{cfg: cfg, http: httpClient, logger: logger}, nil
}

type signRequest struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

type signResponse struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
}

// Upload sends the file at path to storage and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, path, mimeType string) (string, error) {
	grant, err := u.sign(ctx, filepath.Base(path), mimeType)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", core.NewUploadFailedError("open artifact", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", core.NewUploadFailedError("stat artifact", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, grant.UploadURL, file)
	if err != nil {
		return "", core.NewUploadFailedError("build upload request", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.ContentLength = info.Size()

	resp, err := u.http.Do(req)
	if err != nil {
		return "", core.NewUploadFailedError("upload artifact", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", core.NewUploadFailedError(
			fmt.Sprintf("storage returned %d", resp.StatusCode), nil)
	}

	u.logger.Info("artifact uploaded", "bytes", info.Size(), "url", grant.PublicURL)
	return grant.PublicURL, nil
}

func (u *Uploader) sign(ctx context.Context, fileName, mimeType string) (signResponse, error) {
	payload, err := json.Marshal(signRequest{FileName: fileName, MimeType: mimeType})
	if err != nil {
		return signResponse{}, core.NewUploadFailedError("encode sign request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.SignURL, bytes.NewReader(payload))
	if err != nil {
		return signResponse{}, core.NewUploadFailedError("build sign request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if u.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.cfg.AuthToken)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return signResponse{}, core.NewUploadFailedError("request signed URL", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return signResponse{}, core.NewUploadFailedError(
			fmt.Sprintf("signing endpoint returned %d: %s", resp.StatusCode, raw), nil)
	}

	var grant signResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return signResponse{}, core.NewUploadFailedError("decode signed URL", err)
	}
	if grant.UploadURL == "" {
		return signResponse{}, core.NewUploadFailedError("signing endpoint returned no upload URL", nil)
	}
	return grant, nil
}
