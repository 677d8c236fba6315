// voxhire-interview runs a live AI interview from the terminal. It wires
// the local microphone, speaker, and optionally a webcam into a live model
// session, records the call when ffmpeg is available, and can push the
// finished recording to storage.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxhire/voxhire/pkg/capture"
	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
	"github.com/voxhire/voxhire/pkg/interview"
	"github.com/voxhire/voxhire/pkg/live"
	"github.com/voxhire/voxhire/pkg/playback"
	"github.com/voxhire/voxhire/pkg/record"
	"github.com/voxhire/voxhire/pkg/upload"
)

const defaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

type options struct {
	apiKey     string
	endpoint   string
	model      string
	voice      string
	planFile   string
	recordPath string
	frameRate  int
	camera     string
	noCamera   bool
	fakeCamera bool
	signURL    string
	debug      bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	godotenv.Load()

	var opts options
	flag.StringVar(&opts.apiKey, "api-key", os.Getenv("GEMINI_API_KEY"), "live API key")
	flag.StringVar(&opts.endpoint, "endpoint", envOr("VOXHIRE_LIVE_ENDPOINT", defaultLiveEndpoint), "live websocket endpoint")
	flag.StringVar(&opts.model, "model", envOr("VOXHIRE_MODEL", "models/gemini-2.0-flash-live-001"), "interview model")
	flag.StringVar(&opts.voice, "voice", os.Getenv("VOXHIRE_VOICE"), "interviewer voice name")
	flag.StringVar(&opts.planFile, "plan", "", "file with the interview plan used as the system instruction")
	flag.StringVar(&opts.recordPath, "record", "", "write the call recording to this path (empty disables)")
	flag.IntVar(&opts.frameRate, "fps", 8, "camera frames per second")
	flag.StringVar(&opts.camera, "camera", "", "camera device (default per platform)")
	flag.BoolVar(&opts.noCamera, "no-camera", false, "run audio-only")
	flag.BoolVar(&opts.fakeCamera, "fake-camera", false, "use a synthetic test pattern instead of a webcam")
	flag.StringVar(&opts.signURL, "upload-sign-url", os.Getenv("VOXHIRE_UPLOAD_SIGN_URL"), "signed-URL endpoint; uploads the recording after the call")
	flag.BoolVar(&opts.debug, "debug", false, "verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if opts.apiKey == "" {
		fmt.Fprintln(os.Stderr, "error: -api-key or GEMINI_API_KEY is required")
		return 2
	}

	plan := "You are a professional interviewer. Greet the candidate and run a structured interview."
	if opts.planFile != "" {
		raw, err := os.ReadFile(opts.planFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read plan: %v\n", err)
			return 2
		}
		plan = string(raw)
	}

	liveURL, err := buildLiveURL(opts.endpoint, opts.apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	speaker, err := playback.NewOtoSink(coreaudio.PlaybackConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	dev := interview.Devices{
		Microphone: capture.NewMalgoMicrophone(coreaudio.CaptureConfig()),
		Speaker:    speaker,
		Clock:      playback.NewSystemClock(),
	}
	switch {
	case opts.noCamera:
	case opts.fakeCamera:
		dev.Camera = capture.NewTestPatternSource()
	default:
		cam, err := capture.OpenFFmpegCamera(opts.camera)
		if err != nil {
			logger.Warn("camera unavailable, running audio-only", "error", err)
		} else {
			dev.Camera = cam
		}
	}
	if opts.recordPath != "" {
		recordPath := opts.recordPath
		frameRate := opts.frameRate
		dev.NewMuxer = func() (record.Muxer, error) {
			return record.NewFFmpegMuxer(recordPath, coreaudio.PlaybackConfig(), frameRate)
		}
	}

	cfg := interview.Config{
		Live: live.Config{
			URL:               liveURL,
			Model:             opts.model,
			SystemInstruction: plan,
			Voice:             opts.voice,
		},
		Capture: capture.Config{FrameRate: opts.frameRate},
		OnModelText: func(text string) {
			fmt.Printf("interviewer: %s\n", text)
		},
		Logger: logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("connecting...")
	call, err := interview.StartCall(ctx, cfg, dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Println("connected. commands: /mute /unmute /cam on|off /level /log /quit")

	go func() {
		<-ctx.Done()
		call.End()
	}()
	readCommands(call)

	artifact, endErr := call.End()
	if endErr != nil {
		logger.Warn("recording finalize failed", "error", endErr)
	}
	if artifact.Path != "" {
		fmt.Printf("recording: %s (%d bytes)\n", artifact.Path, artifact.Size)
		if opts.signURL != "" {
			uploadArtifact(logger, opts.signURL, artifact)
		}
	}
	if err := call.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "session error: %v\n", err)
		return 1
	}
	return 0
}

func readCommands(call *interview.Call) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	for {
		var line string
		var ok bool
		select {
		case <-call.Done():
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/mute":
			call.SetMicrophone(false)
			fmt.Println("microphone muted")
		case line == "/unmute":
			call.SetMicrophone(true)
			fmt.Println("microphone live")
		case line == "/cam on":
			call.SetCamera(true)
		case line == "/cam off":
			call.SetCamera(false)
		case line == "/level":
			fmt.Printf("model speech level: %.3f\n", call.AudioLevel())
		case line == "/log":
			for _, entry := range call.SessionLog() {
				fmt.Printf("%s %-8s %-14s %s\n",
					entry.Time.Format("15:04:05.000"), entry.Dir, entry.Kind, entry.Detail)
			}
		case strings.HasPrefix(line, "/"):
			fmt.Printf("unknown command %q\n", line)
		default:
			if err := call.SendText(line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			} else {
				fmt.Printf("you: %s\n", line)
			}
		}
		if call.SessionState() == live.StateError {
			return
		}
	}
}

func uploadArtifact(logger *slog.Logger, signURL string, artifact record.Artifact) {
	uploader, err := upload.NewUploader(upload.Config{SignURL: signURL, Logger: logger})
	if err != nil {
		logger.Warn("uploader misconfigured", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	publicURL, err := uploader.Upload(ctx, artifact.Path, artifact.MimeType)
	if err != nil {
		logger.Warn("recording upload failed",
			"error", err, "path", filepath.Clean(artifact.Path))
		return
	}
	fmt.Printf("uploaded: %s\n", publicURL)
}

func buildLiveURL(endpoint, apiKey string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse live endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
