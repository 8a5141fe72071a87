// Package record is the WAV capture tap on the graph endpoint. While active,
// every mixed frame is appended exactly once, in order, in engine-native
// format (IEEE float 32, stereo, 48 kHz). The audio thread owns the encoder
// between Start and Stop; Stop hands it back to the host for finalization.
package record

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"

	"github.com/gridbeat/gridbeat/internal/types"
)

// Tap encodes the mixed output to a WAV file.
type Tap struct {
	f   *os.File
	enc *wav.Encoder

	active        atomic.Bool
	stopRequested atomic.Bool
	inWrite       atomic.Int32
	framesWritten atomic.Uint64
}

// New returns an idle tap.
func New() *Tap { return &Tap{} }

// Active reports whether a recording is in progress.
func (t *Tap) Active() bool { return t.active.Load() }

// FramesWritten returns the number of stereo frames encoded so far.
func (t *Tap) FramesWritten() uint64 { return t.framesWritten.Load() }

// DurationMs returns the captured duration in milliseconds.
func (t *Tap) DurationMs() int64 {
	return int64(t.framesWritten.Load()) * 1000 / types.SampleRate
}

// Start opens path for writing and arms the tap. Host thread only.
func (t *Tap) Start(path string) error {
	if t.active.Load() {
		return fmt.Errorf("recording: %w: already recording", types.ErrBadState)
	}
	if path == "" {
		return fmt.Errorf("recording: %w: empty path", types.ErrBadArgument)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recording: %w: %v", types.ErrOpenFailed, err)
	}
	// audioFormat 3 = IEEE float.
	t.enc = wav.NewEncoder(f, types.SampleRate, 32, types.Channels, 3)
	t.f = f
	t.framesWritten.Store(0)
	t.stopRequested.Store(false)
	t.active.Store(true)
	return nil
}

// Write appends frames from the mixed buffer. Audio thread only; does
// nothing once a stop has been requested.
func (t *Tap) Write(buf []float32, frames int) {
	if !t.active.Load() || t.stopRequested.Load() {
		return
	}
	t.inWrite.Add(1)
	defer t.inWrite.Add(-1)
	if t.stopRequested.Load() {
		return
	}
	for i := 0; i < frames*types.Channels; i++ {
		if err := t.enc.WriteFrame(buf[i]); err != nil {
			// An encoder failure mid-capture cannot surface from the
			// callback; further writes become no-ops and Stop reports
			// what was captured.
			t.stopRequested.Store(true)
			return
		}
	}
	t.framesWritten.Add(uint64(frames))
}

// Stop requests the audio thread to cease writing, waits for any in-flight
// write to drain, finalizes the file, and returns the captured duration in
// milliseconds. Host thread only.
func (t *Tap) Stop() (int64, error) {
	if !t.active.Load() {
		return 0, fmt.Errorf("recording: %w: not recording", types.ErrBadState)
	}
	t.stopRequested.Store(true)
	for t.inWrite.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
	t.active.Store(false)

	dur := t.DurationMs()
	var err error
	if cerr := t.enc.Close(); cerr != nil {
		err = fmt.Errorf("recording: %w: %v", types.ErrOpenFailed, cerr)
	}
	if cerr := t.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("recording: %w: %v", types.ErrOpenFailed, cerr)
	}
	t.enc = nil
	t.f = nil
	return dur, err
}
