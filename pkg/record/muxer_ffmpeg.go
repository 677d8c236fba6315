package record

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/voxhire/voxhire/pkg/core"
	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
)

// videoBitrate approximates screen-quality interview video.
const videoBitrate = "2500k"

// encoderPreference is the codec fallback chain: best first, container
// defaults last.
var encoderPreference = []struct {
	name       string
	videoCodec string
	audioCodec string
}{
	{"vp9+opus", "libvpx-vp9", "libopus"},
	{"vp8+opus", "libvpx", "libopus"},
	{"container default", "", ""},
}

// FFmpegMuxer muxes the mixed audio track and the JPEG frame stream into
// a WebM file through an ffmpeg subprocess. Video arrives on stdin as
// MJPEG; audio arrives on an extra pipe.
type FFmpegMuxer struct {
	path      string
	frameRate int

	cmd       *exec.Cmd
	videoPipe io.WriteCloser
	audioPipe *os.File

	mu       sync.Mutex
	finished bool
}

// NewFFmpegMuxer negotiates an encoder and starts the mux process
// writing to path. frameRate must match the camera cadence. A missing
// ffmpeg binary means recording is unsupported on this host.
func NewFFmpegMuxer(path string, format coreaudio.Config, frameRate int) (*FFmpegMuxer, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, core.NewRecordingUnsupportedError("ffmpeg not found on PATH")
	}
	available := availableEncoders()

	for _, pref := range encoderPreference {
		if pref.videoCodec != "" && !available[pref.videoCodec] {
			continue
		}
		if pref.audioCodec != "" && !available[pref.audioCodec] {
			continue
		}
		m, err := startMux(path, format, frameRate, pref.videoCodec, pref.audioCodec)
		if err != nil {
			continue
		}
		return m, nil
	}
	return nil, core.NewRecordingUnsupportedError("no usable encoder configuration")
}

// availableEncoders parses the encoder table once per process start.
func availableEncoders() map[string]bool {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil
	}
	encoders := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			encoders[fields[1]] = true
		}
	}
	return encoders
}

func startMux(path string, format coreaudio.Config, frameRate int, videoCodec, audioCodec string) (*FFmpegMuxer, error) {
	audioRead, audioWrite, err := os.Pipe()
	if err != nil {
		return nil, core.NewRecordingUnsupportedError("audio pipe: " + err.Error())
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "image2pipe", "-vcodec", "mjpeg",
		"-framerate", fmt.Sprintf("%d", frameRate),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", format.SampleRate),
		"-ac", fmt.Sprintf("%d", format.Channels),
		"-i", "pipe:3",
	}
	if videoCodec != "" {
		args = append(args, "-c:v", videoCodec, "-b:v", videoBitrate)
	}
	if audioCodec != "" {
		args = append(args, "-c:a", audioCodec)
	}
	args = append(args, "-y", path)

	cmd := exec.Command("ffmpeg", args...)
	cmd.ExtraFiles = []*os.File{audioRead}
	videoPipe, err := cmd.StdinPipe()
	if err != nil {
		audioRead.Close()
		audioWrite.Close()
		return nil, core.NewRecordingUnsupportedError("video pipe: " + err.Error())
	}
	if err := cmd.Start(); err != nil {
		audioRead.Close()
		audioWrite.Close()
		return nil, core.NewRecordingUnsupportedError("start mux process: " + err.Error())
	}
	audioRead.Close()

	return &FFmpegMuxer{
		path:      path,
		frameRate: frameRate,
		cmd:       cmd,
		videoPipe: videoPipe,
		audioPipe: audioWrite,
	}, nil
}

// WriteAudio appends mixed PCM to the recording.
func (m *FFmpegMuxer) WriteAudio(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return nil
	}
	if _, err := m.audioPipe.Write(pcm); err != nil {
		return fmt.Errorf("mux audio: %w", err)
	}
	return nil
}

// WriteVideo appends one JPEG frame to the recording.
func (m *FFmpegMuxer) WriteVideo(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return nil
	}
	if _, err := m.videoPipe.Write(frame); err != nil {
		return fmt.Errorf("mux video: %w", err)
	}
	return nil
}

// Finalize closes the pipes, waits for the mux process, and returns the
// artifact description.
func (m *FFmpegMuxer) Finalize() (Artifact, error) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return Artifact{}, nil
	}
	m.finished = true
	m.mu.Unlock()

	m.videoPipe.Close()
	m.audioPipe.Close()
	if err := m.cmd.Wait(); err != nil {
		return Artifact{}, fmt.Errorf("mux process: %w", err)
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat recording: %w", err)
	}
	return Artifact{Path: m.path, MimeType: "video/webm", Size: info.Size()}, nil
}
