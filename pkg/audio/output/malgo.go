//go:build cgo

// ABOUTME: Malgo-based pull sink using miniaudio via malgo
// ABOUTME: Opens S32 stereo playback devices and drives the render callback from the device thread
package output

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/gen2brain/malgo"
)

// Malgo opens playback sessions on the system's default miniaudio backend.
// The miniaudio context is created on first use and shared by all sessions.
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
}

// NewMalgo creates a new Malgo sink
func NewMalgo() *Malgo {
	return &Malgo{}
}

// Name identifies the backend
func (m *Malgo) Name() string {
	return "malgo"
}

func (m *Malgo) context() (*malgo.AllocatedContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, errors.New(fmt.Errorf("failed to initialize malgo context: %w", err)).
				Component("output").
				Category(errors.CategoryAudio).
				Build()
		}
		m.malgoCtx = ctx
	}
	return m.malgoCtx, nil
}

// Open configures a playback device at cfg.SampleRate, stereo S32
func (m *Malgo) Open(cfg StreamConfig, cb Callbacks) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cb.validate(); err != nil {
		return nil, err
	}

	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS32
	deviceConfig.Playback.Channels = audio.Channels
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != "" {
		infos, err := ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, errors.New(fmt.Errorf("failed to enumerate playback devices: %w", err)).
				Component("output").
				Category(errors.CategoryAudio).
				Build()
		}
		found := false
		for i := range infos {
			if infos[i].Name() == cfg.Device {
				deviceConfig.Playback.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New(ErrDeviceNotFound).
				Component("output").
				Category(errors.CategoryNotFound).
				Context("device", cfg.Device).
				Build()
		}
	}

	s := &malgoStream{
		rate: cfg.SampleRate,
		cb:   cb,
	}
	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to initialize playback device: %w", err)).
			Component("output").
			Category(errors.CategoryAudio).
			Context("sample_rate", cfg.SampleRate).
			Context("device", cfg.Device).
			Build()
	}
	s.device = device
	return s, nil
}

// ListDevices enumerates playback devices
func (m *Malgo) ListDevices() ([]DeviceInfo, error) {
	ctx, err := m.context()
	if err != nil {
		return nil, err
	}
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to enumerate playback devices: %w", err)).
			Component("output").
			Category(errors.CategoryAudio).
			Build()
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Name:    infos[i].Name(),
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// Close releases the miniaudio context. Open sessions must be closed first.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.malgoCtx == nil {
		return nil
	}
	err := m.malgoCtx.Uninit()
	m.malgoCtx.Free()
	m.malgoCtx = nil
	return err
}

type malgoStream struct {
	device *malgo.Device
	rate   int
	cb     Callbacks

	completed  atomic.Bool
	closing    atomic.Bool
	finishOnce sync.Once
}

func (s *malgoStream) SampleRate() int {
	return s.rate
}

func (s *malgoStream) Start() error {
	if s.closing.Load() {
		return ErrSinkClosed
	}
	if err := s.device.Start(); err != nil {
		return errors.New(fmt.Errorf("failed to start device: %w", err)).
			Component("output").
			Category(errors.CategoryAudio).
			Context("sample_rate", s.rate).
			Build()
	}
	return nil
}

func (s *malgoStream) Close() error {
	if s.closing.Swap(true) {
		return nil
	}
	var err error
	if s.device.IsStarted() {
		err = s.device.Stop()
	}
	s.device.Uninit()
	if err != nil {
		return errors.New(fmt.Errorf("device stop error: %w", err)).
			Component("output").
			Category(errors.CategoryAudio).
			Build()
	}
	return nil
}

// onData runs on the miniaudio device thread
func (s *malgoStream) onData(pOutput, _ []byte, frameCount uint32) {
	frames := int(frameCount)
	n := audio.FramesToBytes(frames)
	if n > len(pOutput) {
		frames = audio.BytesToFrames(len(pOutput))
		n = audio.FramesToBytes(frames)
	}
	out := pOutput[:n]

	if s.completed.Load() {
		clear(out)
		return
	}
	if s.cb.Render(out, frames) == Complete {
		s.completed.Store(true)
		// device control is not allowed from inside the data callback
		go s.finish()
	}
}

// onStop fires when the device stops, including on device loss
func (s *malgoStream) onStop() {
	if s.closing.Load() {
		return
	}
	s.finish()
}

func (s *malgoStream) finish() {
	s.finishOnce.Do(func() {
		if !s.closing.Load() && s.cb.Finished != nil {
			s.cb.Finished()
		}
	})
}
