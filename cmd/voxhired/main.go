// voxhired is the interview-prep service. It parses resumes and job
// descriptions into structured facts ahead of a call and scores recorded
// answers afterwards. Parsing runs asynchronously behind Redis-backed
// jobs; identical documents are served from cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"github.com/voxhire/voxhire/pkg/docparse"
	"github.com/voxhire/voxhire/pkg/videoqa"
)

type config struct {
	addr        string
	geminiKey   string
	geminiModel string
	redisAddr   string
	redisDB     int
	redisPass   string
	tlKey       string
	tlIndex     string
}

func loadConfig() (config, error) {
	cfg := config{
		addr:        envOr("VOXHIRED_ADDR", ":6767"),
		geminiKey:   os.Getenv("GEMINI_API_KEY"),
		geminiModel: envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		redisAddr:   envOr("REDIS_ADDR", "localhost:6379"),
		redisPass:   os.Getenv("REDIS_PASSWORD"),
		tlKey:       os.Getenv("TWELVELABS_API_KEY"),
		tlIndex:     os.Getenv("TWELVELABS_INDEX_ID"),
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return config{}, fmt.Errorf("invalid REDIS_DB %q", v)
		}
		cfg.redisDB = db
	}
	if cfg.geminiKey == "" {
		return config{}, errors.New("GEMINI_API_KEY is required")
	}
	return cfg, nil
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.geminiKey})
	if err != nil {
		logger.Error("model client init failed", "error", err)
		return 1
	}
	parser := docparse.NewParser(genaiClient, cfg.geminiModel, logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		DB:       cfg.redisDB,
		Password: cfg.redisPass,
	})
	store := docparse.NewStore(rdb)
	if err := store.Ping(ctx); err != nil {
		logger.Error("redis unreachable", "addr", cfg.redisAddr, "error", err)
		return 1
	}

	var analyzer *videoqa.Client
	if cfg.tlKey != "" && cfg.tlIndex != "" {
		analyzer, err = videoqa.NewClient(videoqa.Config{
			APIKey: cfg.tlKey, IndexID: cfg.tlIndex, Logger: logger,
		})
		if err != nil {
			logger.Error("video analysis client init failed", "error", err)
			return 1
		}
	} else {
		logger.Info("video analysis disabled, no API credentials")
	}

	srv := newServer(parser, store, analyzer, logger)
	httpServer := &http.Server{
		Addr:         cfg.addr,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
		logger.Info("stopped")
		return 0
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
		return 0
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
