// Package transport is the frame-counting sequencer clock: step advancement,
// region looping, and the published state snapshot. Advance runs on the
// audio thread; Start/Stop/SetBPM/SetRegion run on the host thread and
// publish through atomics only.
package transport

import (
	"fmt"
	"sync/atomic"

	"github.com/gridbeat/gridbeat/internal/types"
)

// Transport is the sequencer clock.
type Transport struct {
	playing       atomic.Bool
	bpm           atomic.Int32
	framesPerStep atomic.Uint64
	regionStart   atomic.Int32
	regionEnd     atomic.Int32 // exclusive
	mode          atomic.Int32

	// stepJustChanged requests an immediate trigger of currentStep at the
	// top of the next Advance; set by Start so step 0 fires with no delay.
	stepJustChanged atomic.Bool

	// currentStep is written by the audio thread during playback and by
	// Start/Stop while stopped; exposed atomically for host reads.
	currentStep atomic.Int32

	// stepFrameCounter is audio-thread-owned.
	stepFrameCounter uint64

	snapshot Snapshot
}

// New creates a stopped transport over the given region.
func New(bpm, regionEnd int) *Transport {
	t := &Transport{}
	if bpm < types.MinBPM || bpm > types.MaxBPM {
		bpm = 120
	}
	t.bpm.Store(int32(bpm))
	t.framesPerStep.Store(types.FramesPerStep(bpm))
	t.regionEnd.Store(int32(regionEnd))
	t.publish()
	return t
}

// Snapshot returns the published snapshot for external readers.
func (t *Transport) Snapshot() *Snapshot { return &t.snapshot }

// Playing reports whether the transport is running.
func (t *Transport) Playing() bool { return t.playing.Load() }

// CurrentStep returns the step the clock last triggered.
func (t *Transport) CurrentStep() int { return int(t.currentStep.Load()) }

// BPM returns the current tempo.
func (t *Transport) BPM() int { return int(t.bpm.Load()) }

// FramesPerStep returns the derived step length in frames.
func (t *Transport) FramesPerStep() uint64 { return t.framesPerStep.Load() }

// Region returns the loop region [start, end).
func (t *Transport) Region() (int, int) {
	return int(t.regionStart.Load()), int(t.regionEnd.Load())
}

// Mode returns the play mode.
func (t *Transport) Mode() types.PlayMode { return types.PlayMode(t.mode.Load()) }

// SetMode records the play mode and publishes it; the region is left as it
// is.
func (t *Transport) SetMode(m types.PlayMode) {
	t.mode.Store(int32(m))
	t.publish()
}

// Start validates bpm, rewinds the step clock to startStep and begins
// playback. The first step fires at the top of the next callback.
func (t *Transport) Start(bpm, startStep int) error {
	if bpm < types.MinBPM || bpm > types.MaxBPM {
		return fmt.Errorf("start: %w: bpm %d", types.ErrBadArgument, bpm)
	}
	start, end := t.Region()
	if startStep < start || startStep >= end {
		return fmt.Errorf("start: %w: step %d outside region [%d,%d)", types.ErrBadArgument, startStep, start, end)
	}
	t.bpm.Store(int32(bpm))
	t.framesPerStep.Store(types.FramesPerStep(bpm))
	t.currentStep.Store(int32(startStep))
	t.stepFrameCounter = 0
	t.stepJustChanged.Store(true)
	t.playing.Store(true)
	t.publish()
	return nil
}

// Stop halts playback and rewinds to step 0. Voice fade-out is the caller's
// responsibility.
func (t *Transport) Stop() {
	t.playing.Store(false)
	t.stepJustChanged.Store(false)
	t.currentStep.Store(0)
	t.stepFrameCounter = 0
	t.publish()
}

// SetBPM retunes the clock without resetting the frame counter inside the
// current step.
func (t *Transport) SetBPM(bpm int) error {
	if bpm < types.MinBPM || bpm > types.MaxBPM {
		return fmt.Errorf("bpm: %w: %d", types.ErrBadArgument, bpm)
	}
	t.bpm.Store(int32(bpm))
	t.framesPerStep.Store(types.FramesPerStep(bpm))
	t.publish()
	return nil
}

// SetRegion sets the playable step range [start, end).
func (t *Transport) SetRegion(start, end int) error {
	if start < 0 || end <= start {
		return fmt.Errorf("region: %w: [%d,%d)", types.ErrBadArgument, start, end)
	}
	t.regionStart.Store(int32(start))
	t.regionEnd.Store(int32(end))
	t.publish()
	return nil
}

// Advance moves the clock by frameCount frames, invoking fire for every step
// transition (including the immediate step-0 trigger right after Start).
// Audio thread only.
func (t *Transport) Advance(frameCount int, fire func(step int)) {
	if !t.playing.Load() {
		return
	}
	if t.stepJustChanged.CompareAndSwap(true, false) {
		fire(int(t.currentStep.Load()))
	}
	fps := t.framesPerStep.Load()
	for i := 0; i < frameCount; i++ {
		t.stepFrameCounter++
		if t.stepFrameCounter >= fps {
			t.stepFrameCounter = 0
			step := int(t.currentStep.Load()) + 1
			start, end := t.Region()
			if step >= end {
				step = start
			}
			t.currentStep.Store(int32(step))
			fire(step)
			t.tryPublish()
		}
	}
}

// StepFrameCounter exposes the intra-step frame count for offline tests.
func (t *Transport) StepFrameCounter() uint64 { return t.stepFrameCounter }

func (t *Transport) publish() {
	start, end := t.Region()
	t.snapshot.Publish(t.playing.Load(), int(t.currentStep.Load()), int(t.bpm.Load()), start, end, int(t.mode.Load()))
}

// tryPublish is the non-blocking variant used from the audio thread; a
// skipped publish is corrected on the next step transition.
func (t *Transport) tryPublish() {
	start, end := t.Region()
	t.snapshot.TryPublish(t.playing.Load(), int(t.currentStep.Load()), int(t.bpm.Load()), start, end, int(t.mode.Load()))
}
