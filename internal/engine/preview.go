package engine

import (
	"fmt"

	"github.com/gridbeat/gridbeat/internal/bank"
	"github.com/gridbeat/gridbeat/internal/graph"
	"github.com/gridbeat/gridbeat/internal/grid"
	"github.com/gridbeat/gridbeat/internal/types"
	"github.com/gridbeat/gridbeat/internal/voice"
)

// Play starts a loaded slot sounding immediately at its default volume and
// pitch, outside the grid. Repeated calls retrigger the same voice.
func (e *Engine) Play(slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.bank.IsLoaded(slot) {
		return fmt.Errorf("play: %w: slot %d not loaded", types.ErrBadState, slot)
	}
	s := e.bank.Slot(slot)
	v := e.pool.FindForCell(slotPlayStep, 0, slot)
	if v == nil {
		var err error
		v, err = e.pool.Create(slotPlayStep, 0, slot, s.DefaultVolume(), s.DefaultPitch(),
			e.cfg.PitchStrategy, e.bank, e.cache, e.graph, e.currentFrame.Load())
		if err != nil {
			return err
		}
	}
	if err := v.Source.Seek(0); err != nil {
		return err
	}
	v.Node.ClearAtEnd()
	v.Node.SetState(graph.Started)
	v.SetTarget(float32(s.DefaultVolume()))
	return nil
}

// StopSlot fades a playing slot to silence.
func (e *Engine) StopSlot(slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !bank.ValidSlot(slot) {
		return fmt.Errorf("stop: %w: slot %d", types.ErrBadArgument, slot)
	}
	if v := e.pool.FindForCell(slotPlayStep, 0, slot); v != nil {
		v.SetTarget(0)
	}
	return nil
}

// StopAll fades every slot-play voice to silence.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool.ForEachActive(func(v *voice.Voice) {
		if v.Step == slotPlayStep {
			v.SetTarget(0)
		}
	})
}

// PreviewSample auditions a file that is not in the bank through the
// dedicated sample-preview voice. pitchRatio and volume < 0 mean "use 1.0".
func (e *Engine) PreviewSample(path string, pitchRatio, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if path == "" {
		return fmt.Errorf("preview: %w: empty path", types.ErrBadArgument)
	}
	if pitchRatio < 0 {
		pitchRatio = 1.0
	}
	if volume < 0 {
		volume = 1.0
	}
	if !types.ValidPitch(pitchRatio) || !types.ValidVolume(volume) {
		return fmt.Errorf("preview: %w: pitch %f volume %f", types.ErrBadArgument, pitchRatio, volume)
	}
	frames, err := bank.DecodeFile(path)
	if err != nil {
		return err
	}
	if old := e.samplePreview.Load(); old != nil {
		e.cleanupVoice(old)
	}
	// Preview sources never enter the bank, so the plain resample strategy
	// is used regardless of the engine's configured one.
	dec := bank.NewMemoryDecoder(frames)
	v, err := e.pool.CreateFromDecoder(samplePreviewStep, 0, grid.NoSlot, dec,
		volume, pitchRatio, types.PitchResample, nil, e.graph, e.currentFrame.Load())
	if err != nil {
		return err
	}
	v.Node.SetState(graph.Started)
	v.SetTarget(float32(volume))
	e.samplePreview.Store(v)
	return nil
}

// StopSamplePreview fades the sample-preview voice out.
func (e *Engine) StopSamplePreview() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v := e.samplePreview.Load(); v != nil && v.Active() {
		v.SetTarget(0)
	}
}

// PreviewCell auditions one grid cell through the dedicated cell-preview
// voice. Negative pitchRatio or volume fall back to the cell's resolved
// values.
func (e *Engine) PreviewCell(step, column int, pitchRatio, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cell := e.grid.Cell(step, column)
	if cell == nil {
		return fmt.Errorf("preview: %w: (%d,%d)", types.ErrBadArgument, step, column)
	}
	if cell.Slot == grid.NoSlot || !e.bank.IsLoaded(cell.Slot) {
		return fmt.Errorf("preview: %w: cell (%d,%d) has no loaded sample", types.ErrBadState, step, column)
	}
	resolvedVol, resolvedPitch := e.resolveCellParams(step, column, cell.Slot)
	if pitchRatio < 0 {
		pitchRatio = resolvedPitch
	}
	if volume < 0 {
		volume = resolvedVol
	}
	if !types.ValidPitch(pitchRatio) || !types.ValidVolume(volume) {
		return fmt.Errorf("preview: %w: pitch %f volume %f", types.ErrBadArgument, pitchRatio, volume)
	}
	if old := e.cellPreview.Load(); old != nil {
		e.cleanupVoice(old)
	}
	dec, err := e.bank.NewDecoder(cell.Slot)
	if err != nil {
		return err
	}
	v, err := e.pool.CreateFromDecoder(cellPreviewStep, column, cell.Slot, dec,
		volume, pitchRatio, e.cfg.PitchStrategy, e.cache, e.graph, e.currentFrame.Load())
	if err != nil {
		dec.Close()
		return err
	}
	v.Node.SetState(graph.Started)
	v.SetTarget(float32(volume))
	e.cellPreview.Store(v)
	return nil
}

// StopCellPreview fades the cell-preview voice out.
func (e *Engine) StopCellPreview() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v := e.cellPreview.Load(); v != nil && v.Active() {
		v.SetTarget(0)
	}
}
