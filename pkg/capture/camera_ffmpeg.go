package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/voxhire/voxhire/pkg/core"
)

// FFmpegCamera reads webcam frames through an ffmpeg subprocess emitting
// an MJPEG stream on stdout. It keeps only the most recent frame so a
// slow consumer never builds a backlog.
type FFmpegCamera struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu     sync.Mutex
	cond   *sync.Cond
	latest image.Image
	err    error
	closed bool
}

// OpenFFmpegCamera starts ffmpeg against the named device (for example
// "/dev/video0" on Linux). An empty device selects the platform default.
func OpenFFmpegCamera(device string) (*FFmpegCamera, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, core.NewDeviceUnavailableError("ffmpeg not found on PATH")
	}
	inputFormat, defaultDevice := platformCameraInput()
	if device == "" {
		device = defaultDevice
	}
	if err := checkCameraAccess(device); err != nil {
		return nil, err
	}

	cmd := exec.Command("ffmpeg",
		"-f", inputFormat,
		"-i", device,
		"-vf", fmt.Sprintf("scale=%d:%d", FrameWidth, FrameHeight),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "4",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, core.NewDeviceUnavailableError("open camera pipe: " + err.Error())
	}
	if err := cmd.Start(); err != nil {
		return nil, core.NewDeviceUnavailableError("start camera process: " + err.Error())
	}

	c := &FFmpegCamera{cmd: cmd, stdout: stdout}
	c.cond = sync.NewCond(&c.mu)
	go c.readLoop()
	return c, nil
}

// checkCameraAccess opens device-node cameras once before handing them to
// ffmpeg, so a denied node reports as a permission failure instead of a
// generic stream error.
func checkCameraAccess(device string) error {
	if !strings.HasPrefix(device, "/dev/") {
		return nil
	}
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, os.ErrPermission):
		return core.NewPermissionDeniedError("camera device " + device + " access denied")
	case errors.Is(err, os.ErrNotExist):
		return core.NewDeviceUnavailableError("camera device " + device + " not found")
	default:
		return core.NewDeviceUnavailableError("open camera device: " + err.Error())
	}
}

func platformCameraInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "0"
	case "windows":
		return "dshow", "video=Integrated Camera"
	default:
		return "v4l2", "/dev/video0"
	}
}

// readLoop splits the MJPEG stream into frames and keeps the newest.
func (c *FFmpegCamera) readLoop() {
	reader := bufio.NewReaderSize(c.stdout, 1<<16)
	for {
		frame, err := readJPEGFrame(reader)
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = core.NewDeviceUnavailableError("camera stream ended: " + err.Error())
			}
			c.cond.Broadcast()
			c.mu.Unlock()
			return
		}
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			continue
		}
		c.mu.Lock()
		c.latest = img
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

// NextFrame blocks until a camera image is available and returns it.
func (c *FFmpegCamera) NextFrame() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.latest == nil && c.err == nil && !c.closed {
		c.cond.Wait()
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.closed {
		return nil, core.NewDeviceUnavailableError("camera closed")
	}
	return c.latest, nil
}

// Close terminates the camera process.
func (c *FFmpegCamera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	c.stdout.Close()
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.cmd.Wait()
	return nil
}

// readJPEGFrame scans for one SOI..EOI delimited JPEG in the stream.
func readJPEGFrame(r *bufio.Reader) ([]byte, error) {
	// Seek the start-of-image marker.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xff {
			continue
		}
		next, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == 0xd8 {
			break
		}
	}

	frame := []byte{0xff, 0xd8}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, b)
		if b == 0xff {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			frame = append(frame, next)
			if next == 0xd9 {
				return frame, nil
			}
		}
	}
}
