// Package videoqa scores recorded interview answers through a hosted
// video-understanding API. A recording is registered for indexing, polled
// until the index is ready, then analyzed against a fixed rubric.
package videoqa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/voxhire/voxhire/pkg/core"
)

const (
	defaultBaseURL      = "https://api.twelvelabs.io/v1.3"
	defaultPollInterval = 2 * time.Second
)

const analysisPrompt = `You're an Interviewer, Analyze the video clip of the interview answer.

Rate the numerical categories based on the interview, where 1 is the lowest and 10 is the highest.

You must be strict and justifiable with the ratings.

If the face is not present in the video then provide lower points (less than 5) for all categories.
If and only if the submission is not a valid interview, then the key_points should say so, and all categories should be 0.

Provide the response in the following JSON format with numerical values from 1-10:
{
    "confidence": <number>,
    "clarity": <number>,
    "speech_rate": <number>,
    "eye_contact": <number>,
    "body_language": <number>,
    "voice_tone": <number>,
    "key_points": [<List of technical and non-technical strengths and weaknesses as strings to create a candidate identity profile.>]
}`

// Assessment is the rubric the analysis returns.
type Assessment struct {
	Confidence   float64  `json:"confidence"`
	Clarity      float64  `json:"clarity"`
	SpeechRate   float64  `json:"speech_rate"`
	EyeContact   float64  `json:"eye_contact"`
	BodyLanguage float64  `json:"body_language"`
	VoiceTone    float64  `json:"voice_tone"`
	KeyPoints    []string `json:"key_points"`
}

// Config describes the API account.
type Config struct {
	APIKey  string
	IndexID string

	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL string

	// PollInterval is the indexing poll cadence. Zero means 2 seconds.
	PollInterval time.Duration

	// HTTPClient overrides the default client. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives analysis diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Client talks to the video-understanding API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient validates the account configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, core.NewInvalidRequestError("video analysis API key is required", "apiKey")
	}
	if cfg.IndexID == "" {
		return nil, core.NewInvalidRequestError("video analysis index ID is required", "indexID")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

type taskResponse struct {
	ID      string `json:"_id"`
	VideoID string `json:"video_id"`
}

// UploadFile registers a local recording for indexing and returns its
// video ID.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", core.NewUploadFailedError("open recording", err)
	}
	defer file.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("index_id", c.cfg.IndexID); err != nil {
		return "", core.NewUploadFailedError("build upload form", err)
	}
	part, err := form.CreateFormFile("video_file", filepath.Base(path))
	if err != nil {
		return "", core.NewUploadFailedError("build upload form", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", core.NewUploadFailedError("read recording", err)
	}
	form.Close()

	var task taskResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", form.FormDataContentType(), &body, &task); err != nil {
		return "", err
	}
	c.logger.Info("recording submitted for indexing", "videoID", task.VideoID)
	return task.VideoID, nil
}

// UploadByURL registers an already-hosted recording and returns its video
// ID.
func (c *Client) UploadByURL(ctx context.Context, videoURL string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	form.WriteField("index_id", c.cfg.IndexID)
	form.WriteField("video_url", videoURL)
	form.Close()

	var task taskResponse
	if err := c.do(ctx, http.MethodPost, "/tasks", form.FormDataContentType(), &body, &task); err != nil {
		return "", err
	}
	return task.VideoID, nil
}

type indexedAsset struct {
	Status string `json:"status"`
}

// AwaitIndexed polls until the video is ready for analysis.
func (c *Client) AwaitIndexed(ctx context.Context, videoID string) error {
	path := fmt.Sprintf("/indexes/%s/indexed-assets/%s", c.cfg.IndexID, videoID)
	for {
		var asset indexedAsset
		if err := c.do(ctx, http.MethodGet, path, "", nil, &asset); err != nil {
			return err
		}
		switch asset.Status {
		case "ready":
			return nil
		case "failed":
			return core.NewAPIError("video indexing failed", "")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

type analyzeRequest struct {
	VideoID        string          `json:"video_id"`
	Prompt         string          `json:"prompt"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	JSONSchema map[string]any `json:"json_schema"`
}

type analyzeResponse struct {
	Data string `json:"data"`
}

// Analyze scores an indexed video against the interview rubric.
func (c *Client) Analyze(ctx context.Context, videoID string) (Assessment, error) {
	req := analyzeRequest{
		VideoID: videoID,
		Prompt:  analysisPrompt,
		ResponseFormat: &responseFormat{JSONSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"confidence":    map[string]any{"type": "number"},
				"clarity":       map[string]any{"type": "number"},
				"speech_rate":   map[string]any{"type": "number"},
				"eye_contact":   map[string]any{"type": "number"},
				"body_language": map[string]any{"type": "number"},
				"voice_tone":    map[string]any{"type": "number"},
				"key_points":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"confidence", "clarity", "speech_rate", "eye_contact",
				"body_language", "voice_tone", "key_points"},
		}},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Assessment{}, core.NewAPIError("encode analyze request: "+err.Error(), "")
	}

	var resp analyzeResponse
	if err := c.do(ctx, http.MethodPost, "/analyze", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return Assessment{}, err
	}
	var assessment Assessment
	if err := json.Unmarshal([]byte(resp.Data), &assessment); err != nil {
		return Assessment{}, core.NewAPIError("analysis returned unparsable rubric", "")
	}
	return assessment, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return core.NewAPIError("build request: "+err.Error(), "")
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.NewAPIError("video API request failed: "+err.Error(), "")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return core.NewAPIError(
			fmt.Sprintf("video API returned %d: %s", resp.StatusCode, raw),
			fmt.Sprintf("%d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewAPIError("decode video API response: "+err.Error(), "")
	}
	return nil
}
