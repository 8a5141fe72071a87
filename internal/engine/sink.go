package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/gridbeat/gridbeat/internal/types"
)

// RenderFunc is the callback a sink drives: fill out with frames stereo
// float32 frames.
type RenderFunc func(out []float32, frames int)

// Sink delivers periodic frame requests to the engine. The engine does not
// open devices itself; a sink does.
type Sink interface {
	Start(render RenderFunc) error
	Stop() error
}

// malgoSink plays through the default output device via malgo at the engine
// format.
type malgoSink struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	buf    []float32
}

// NewMalgoSink creates the real-device sink.
func NewMalgoSink() Sink {
	return &malgoSink{buf: make([]float32, maxCallbackFrames*types.Channels)}
}

func (s *malgoSink) Start(render RenderFunc) error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("sink: %w: %v", types.ErrOpenFailed, err)
	}
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = types.Channels
	cfg.SampleRate = types.SampleRate
	cfg.PeriodSizeInFrames = types.NominalPeriod

	onSendFrames := func(pOutput, pInput []byte, frameCount uint32) {
		remaining := int(frameCount)
		off := 0
		for remaining > 0 {
			chunk := remaining
			if chunk > maxCallbackFrames {
				chunk = maxCallbackFrames
			}
			buf := s.buf[:chunk*types.Channels]
			render(buf, chunk)
			for i, sample := range buf {
				binary.LittleEndian.PutUint32(pOutput[(off+i)*4:], math.Float32bits(sample))
			}
			off += chunk * types.Channels
			remaining -= chunk
		}
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("sink: %w: %v", types.ErrOpenFailed, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("sink: %w: %v", types.ErrOpenFailed, err)
	}
	s.ctx = ctx
	s.device = device
	return nil
}

func (s *malgoSink) Stop() error {
	if s.device != nil {
		s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	return nil
}

// OfflineSink is the deterministic pseudo-sink: it never spawns a thread and
// produces frames only when Pull is called. Tests and the offline render
// command drive the engine through it.
type OfflineSink struct {
	render RenderFunc
}

// NewOfflineSink creates an offline sink.
func NewOfflineSink() *OfflineSink { return &OfflineSink{} }

// Start records the render callback; no device is opened.
func (s *OfflineSink) Start(render RenderFunc) error {
	s.render = render
	return nil
}

// Stop detaches the callback.
func (s *OfflineSink) Stop() error {
	s.render = nil
	return nil
}

// Pull renders exactly frames stereo frames into out synchronously.
func (s *OfflineSink) Pull(out []float32, frames int) error {
	if s.render == nil {
		return fmt.Errorf("sink: %w: not started", types.ErrBadState)
	}
	s.render(out, frames)
	return nil
}

// PullDiscard renders frames in nominal-period chunks, discarding the audio.
// Useful for advancing the transport deterministically.
func (s *OfflineSink) PullDiscard(frames int) error {
	buf := make([]float32, maxCallbackFrames*types.Channels)
	for frames > 0 {
		chunk := frames
		if chunk > maxCallbackFrames {
			chunk = maxCallbackFrames
		}
		if err := s.Pull(buf[:chunk*types.Channels], chunk); err != nil {
			return err
		}
		frames -= chunk
	}
	return nil
}
