package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxhire/voxhire/pkg/docparse"
	"github.com/voxhire/voxhire/pkg/videoqa"
)

// parseTimeout bounds one background extraction.
const parseTimeout = 2 * time.Minute

// analyzeTimeout bounds upload plus indexing plus scoring.
const analyzeTimeout = 10 * time.Minute

type documentParser interface {
	ParseResume(ctx context.Context, text string) (docparse.ResumeFacts, error)
	ParseJob(ctx context.Context, text string) (docparse.JobFacts, error)
}

type jobStore interface {
	Ping(ctx context.Context) error
	CachedResult(ctx context.Context, key string, out any) (bool, error)
	CacheResult(ctx context.Context, key string, value any) error
	SetJobStatus(ctx context.Context, jobID string, rec docparse.JobRecord) error
	JobStatus(ctx context.Context, jobID string) (docparse.JobRecord, error)
	ClearCache(ctx context.Context, key string) error
}

type videoAnalyzer interface {
	UploadByURL(ctx context.Context, videoURL string) (string, error)
	AwaitIndexed(ctx context.Context, videoID string) error
	Analyze(ctx context.Context, videoID string) (videoqa.Assessment, error)
}

type server struct {
	parser   documentParser
	store    jobStore
	analyzer videoAnalyzer
	logger   *slog.Logger

	jobsStarted *prometheus.CounterVec
	cacheHits   prometheus.Counter
}

func newServer(parser documentParser, store jobStore, analyzer videoAnalyzer, logger *slog.Logger) *server {
	return newServerWithRegistry(parser, store, analyzer, logger, prometheus.DefaultRegisterer)
}

func newServerWithRegistry(parser documentParser, store jobStore, analyzer videoAnalyzer, logger *slog.Logger, reg prometheus.Registerer) *server {
	factory := promauto.With(reg)
	return &server{
		parser:   parser,
		store:    store,
		analyzer: analyzer,
		logger:   logger,
		jobsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxhired_parse_jobs_started_total",
			Help: "Background extraction jobs started, by document kind.",
		}, []string{"kind"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxhired_parse_cache_hits_total",
			Help: "Parse requests answered from cache.",
		}),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/parse/resume", s.handleParse("resume"))
	mux.HandleFunc("POST /v1/parse/job", s.handleParse("job"))
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("POST /v1/video/analyze", s.handleVideoAnalyze)
	mux.HandleFunc("POST /v1/cache/clear", s.handleCacheClear)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "redis unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type parseRequest struct {
	Text string `json:"text"`
}

type parseAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Cached bool   `json:"cached"`
	Result any    `json:"result,omitempty"`
}

func (s *server) handleParse(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req parseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "text is required"})
			return
		}

		key := docparse.CacheKey(kind, req.Text)
		var cached json.RawMessage
		hit, err := s.store.CachedResult(r.Context(), key, &cached)
		if err != nil {
			s.logger.Warn("cache lookup failed", "error", err)
		}
		if hit {
			s.cacheHits.Inc()
			writeJSON(w, http.StatusOK, parseAccepted{
				JobID:  uuid.NewString(),
				Status: docparse.StatusComplete,
				Cached: true,
				Result: cached,
			})
			return
		}

		jobID := uuid.NewString()
		if err := s.store.SetJobStatus(r.Context(), jobID, docparse.JobRecord{Status: docparse.StatusProcessing}); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "job store unavailable"})
			return
		}
		s.jobsStarted.WithLabelValues(kind).Inc()
		go s.runParse(kind, jobID, key, req.Text)

		writeJSON(w, http.StatusAccepted, parseAccepted{JobID: jobID, Status: docparse.StatusProcessing})
	}
}

// runParse is the background half of a parse request.
func (s *server) runParse(kind, jobID, cacheKey, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout)
	defer cancel()

	var result any
	var err error
	switch kind {
	case "resume":
		result, err = s.parser.ParseResume(ctx, text)
	default:
		result, err = s.parser.ParseJob(ctx, text)
	}
	if err != nil {
		s.logger.Warn("extraction failed", "kind", kind, "jobID", jobID, "error", err)
		s.store.SetJobStatus(ctx, jobID, docparse.JobRecord{Status: docparse.StatusError, Error: err.Error()})
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		s.store.SetJobStatus(ctx, jobID, docparse.JobRecord{Status: docparse.StatusError, Error: err.Error()})
		return
	}
	if err := s.store.CacheResult(ctx, cacheKey, json.RawMessage(raw)); err != nil {
		s.logger.Warn("cache store failed", "error", err)
	}
	if err := s.store.SetJobStatus(ctx, jobID, docparse.JobRecord{Status: docparse.StatusComplete, Result: raw}); err != nil {
		s.logger.Warn("job completion store failed", "jobID", jobID, "error", err)
	}
	s.logger.Info("extraction complete", "kind", kind, "jobID", jobID)
}

func (s *server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	rec, err := s.store.JobStatus(r.Context(), jobID)
	if errors.Is(err, docparse.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found", "job_id": jobID})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "job store unavailable"})
		return
	}

	resp := map[string]any{"job_id": jobID, "status": rec.Status}
	switch rec.Status {
	case docparse.StatusComplete:
		resp["result"] = rec.Result
	case docparse.StatusError:
		resp["error"] = rec.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

type analyzeVideoRequest struct {
	VideoURL string `json:"video_url"`
}

func (s *server) handleVideoAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "video analysis is not configured"})
		return
	}
	var req analyzeVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "video_url is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()

	videoID, err := s.analyzer.UploadByURL(ctx, req.VideoURL)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	if err := s.analyzer.AwaitIndexed(ctx, videoID); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	assessment, err := s.analyzer.Analyze(ctx, videoID)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

type cacheClearRequest struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	var req cacheClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "kind and text are required"})
		return
	}
	if err := s.store.ClearCache(r.Context(), docparse.CacheKey(req.Kind, req.Text)); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "cache unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
