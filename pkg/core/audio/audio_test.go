package audio

import (
	"testing"
	"time"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func TestConfigDuration(t *testing.T) {
	t.Parallel()

	cfg := CaptureConfig()
	// 16000 Hz * 2 bytes = 32000 bytes/sec
	if got := cfg.BytesPerSecond(); got != 32000 {
		t.Fatalf("BytesPerSecond() = %d, want 32000", got)
	}
	if got := cfg.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := cfg.BytesForDuration(250 * time.Millisecond); got != 8000 {
		t.Errorf("BytesForDuration(250ms) = %d, want 8000", got)
	}
}

func TestBytesForDurationSampleAligned(t *testing.T) {
	t.Parallel()

	cfg := PlaybackConfig()
	n := cfg.BytesForDuration(33 * time.Millisecond)
	if n%2 != 0 {
		t.Errorf("BytesForDuration returned odd byte count %d", n)
	}
}

func TestRMSEnergy(t *testing.T) {
	t.Parallel()

	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("RMSEnergy(nil) = %v, want 0", got)
	}
	silence := pcm16(0, 0, 0, 0)
	if got := RMSEnergy(silence); got != 0 {
		t.Errorf("RMSEnergy(silence) = %v, want 0", got)
	}
	loud := pcm16(32767, -32768, 32767, -32768)
	if got := RMSEnergy(loud); got < 0.99 || got > 1.01 {
		t.Errorf("RMSEnergy(full scale) = %v, want ~1.0", got)
	}
}

func TestPeakAmplitude(t *testing.T) {
	t.Parallel()

	if got := PeakAmplitude(pcm16(0, 16384, -8192)); got < 0.49 || got > 0.51 {
		t.Errorf("PeakAmplitude = %v, want ~0.5", got)
	}
	// -32768 must not overflow on negation
	if got := PeakAmplitude(pcm16(-32768)); got != 1.0 {
		t.Errorf("PeakAmplitude(min int16) = %v, want 1.0", got)
	}
}

func TestFloat32ToPCM16Clamps(t *testing.T) {
	t.Parallel()

	out := Float32ToPCM16([]float32{0, 1, -1, 2, -2, 0.5})
	want := pcm16(0, 32767, -32767, 32767, -32767, 16383)
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range out {
		if out[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, out[i], want[i])
		}
	}
}

func TestMixPCM16(t *testing.T) {
	t.Parallel()

	a := pcm16(1000, 2000, 30000)
	b := pcm16(500, -2000, 30000, 100)
	out := MixPCM16(a, b)
	got := []int16{
		int16(out[0]) | int16(out[1])<<8,
		int16(out[2]) | int16(out[3])<<8,
		int16(out[4]) | int16(out[5])<<8,
		int16(out[6]) | int16(out[7])<<8,
	}
	// 30000+30000 clamps at 32767; missing samples are silence
	want := []int16{1500, 0, 32767, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResamplePCM16Length(t *testing.T) {
	t.Parallel()

	// 160 samples at 16 kHz -> 240 samples at 24 kHz
	in := make([]byte, 160*2)
	out := ResamplePCM16(in, 16000, 24000)
	if len(out) != 240*2 {
		t.Errorf("resampled len = %d, want %d", len(out), 240*2)
	}
	if got := ResamplePCM16(in, 16000, 16000); len(got) != len(in) {
		t.Errorf("same-rate resample changed length")
	}
}

func TestBufferTrimsOldest(t *testing.T) {
	t.Parallel()

	cfg := CaptureConfig()
	b := NewBuffer(cfg, time.Millisecond) // 32 bytes
	first := make([]byte, 32)
	for i := range first {
		first[i] = 1
	}
	second := make([]byte, 16)
	for i := range second {
		second[i] = 2
	}
	b.Write(first)
	b.Write(second)

	data := b.Read()
	if len(data) != 32 {
		t.Fatalf("len = %d, want 32", len(data))
	}
	if data[0] != 1 || data[31] != 2 {
		t.Errorf("buffer did not trim from the front: first=%d last=%d", data[0], data[31])
	}
}

func TestBufferReadLast(t *testing.T) {
	t.Parallel()

	cfg := CaptureConfig()
	b := NewBuffer(cfg, time.Second)
	b.Write(make([]byte, 64))
	last := b.ReadLast(time.Millisecond)
	if len(last) != 32 {
		t.Errorf("ReadLast(1ms) len = %d, want 32", len(last))
	}
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len after Clear = %d", b.Len())
	}
}
