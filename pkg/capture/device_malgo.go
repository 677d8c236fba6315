package capture

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/voxhire/voxhire/pkg/core"
	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
)

// MalgoMicrophone captures from the default system microphone. The device
// produces float samples which are clamped down to the s16le wire format
// before delivery.
type MalgoMicrophone struct {
	cfg coreaudio.Config

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewMalgoMicrophone prepares a microphone for the given capture format.
// The device itself is opened on Start.
func NewMalgoMicrophone(cfg coreaudio.Config) *MalgoMicrophone {
	return &MalgoMicrophone{cfg: cfg}
}

// Start opens the default capture device and begins delivering frames.
func (m *MalgoMicrophone) Start(onData func(pcm []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return core.NewAudioInitError("init audio context", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(m.cfg.Channels)
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(coreaudio.Float32ToPCM16(floatSamples(input)))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		return core.NewDeviceUnavailableError("open capture device: " + err.Error())
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return core.NewDeviceUnavailableError("start capture device: " + err.Error())
	}

	m.ctx = ctx
	m.device = device
	return nil
}

// Stop halts capture and releases the device.
func (m *MalgoMicrophone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	m.device.Stop()
	m.device.Uninit()
	m.device = nil
	m.ctx.Uninit()
	m.ctx = nil
	return nil
}

// floatSamples reinterprets a device buffer as little-endian float32
// samples.
func floatSamples(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
