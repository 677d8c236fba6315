// Package audio holds the PCM primitives shared by the capture, playback,
// and recording pipelines. All audio in voxhire is linear PCM, 16-bit
// signed, little-endian, mono.
package audio

import (
	"math"
	"sync"
	"time"
)

// Config specifies audio format parameters.
type Config struct {
	// SampleRate in Hz. Capture runs at 16000, synthesis at 24000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// CaptureConfig returns the microphone capture format (16 kHz mono s16le).
func CaptureConfig() Config {
	return Config{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// PlaybackConfig returns the synthesized-voice format (24 kHz mono s16le).
func PlaybackConfig() Config {
	return Config{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the play time of the given byte count.
func (c Config) Duration(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// BytesForDuration returns the byte count covering d, rounded down to a
// whole sample.
func (c Config) BytesForDuration(d time.Duration) int {
	n := int(int64(c.BytesPerSecond()) * int64(d) / int64(time.Second))
	align := c.Channels * (c.BitsPerSample / 8)
	if align > 0 {
		n -= n % align
	}
	return n
}

// RMSEnergy computes the root-mean-square energy of s16le PCM.
// Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in s16le PCM.
// Returns a value between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// float64 avoids overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs / 32768.0
}

// Float32ToPCM16 converts float samples in [-1, 1] to clamped s16le bytes.
// Out-of-range input is clamped, not wrapped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// MixPCM16 sums two s16le streams sample-by-sample with clamping. The
// result has the length of the longer input; the shorter one is treated as
// trailing silence.
func MixPCM16(a, b []byte) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	n -= n % 2
	out := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		var sa, sb int32
		if i+1 < len(a) {
			sa = int32(int16(a[i]) | int16(a[i+1])<<8)
		}
		if i+1 < len(b) {
			sb = int32(int16(b[i]) | int16(b[i+1])<<8)
		}
		s := sa + sb
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		out[i] = byte(s)
		out[i+1] = byte(s >> 8)
	}
	return out
}

// ResamplePCM16 converts mono s16le PCM between sample rates using linear
// interpolation. Good enough for mixing a 16 kHz mic into a 24 kHz
// recording track; this is not a brick-wall resampler.
func ResamplePCM16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	in := len(pcm) / 2
	if in == 0 {
		return nil
	}
	out := int(int64(in) * int64(toRate) / int64(fromRate))
	result := make([]byte, out*2)
	for i := 0; i < out; i++ {
		pos := float64(i) * float64(fromRate) / float64(toRate)
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < in {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}
		s := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		result[i*2] = byte(s)
		result[i*2+1] = byte(s >> 8)
	}
	return result
}

// Buffer accumulates PCM chunks with a bounded maximum size. When full,
// the oldest data is discarded.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
	config   Config
}

// NewBuffer creates a buffer that holds up to maxDuration of audio.
func NewBuffer(config Config, maxDuration time.Duration) *Buffer {
	maxBytes := config.BytesForDuration(maxDuration)
	return &Buffer{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
		config:   config,
	}
}

// Write appends audio data, trimming from the front past the size bound.
func (b *Buffer) Write(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, data...)
	if len(b.data) > b.maxBytes {
		excess := len(b.data) - b.maxBytes
		b.data = b.data[excess:]
	}
}

// Read returns a copy of all buffered audio data.
func (b *Buffer) Read() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// ReadLast returns the trailing d of audio.
func (b *Buffer) ReadLast(d time.Duration) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.config.BytesForDuration(d)
	if n > len(b.data) {
		n = len(b.data)
	}
	out := make([]byte, n)
	copy(out, b.data[len(b.data)-n:])
	return out
}

// Len returns the current buffer size in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// RMSEnergy calculates the RMS energy of the buffered audio.
func (b *Buffer) RMSEnergy() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return RMSEnergy(b.data)
}
