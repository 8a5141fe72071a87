// Package engine composes the bank, grid, transport, voice pool and mixing
// graph into the sequencer audio core, drives them from the sink callback,
// and exposes the host-facing operations.
package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gridbeat/gridbeat/internal/bank"
	"github.com/gridbeat/gridbeat/internal/graph"
	"github.com/gridbeat/gridbeat/internal/grid"
	"github.com/gridbeat/gridbeat/internal/pitch"
	"github.com/gridbeat/gridbeat/internal/record"
	"github.com/gridbeat/gridbeat/internal/transport"
	"github.com/gridbeat/gridbeat/internal/types"
	"github.com/gridbeat/gridbeat/internal/voice"
)

// Marker coordinates for voices that do not belong to a grid cell.
const (
	slotPlayStep      = -1
	samplePreviewStep = -2
	cellPreviewStep   = -3
)

// maxCallbackFrames bounds one mixing pass; larger sink requests are served
// in chunks so no buffer has to grow on the audio thread.
const maxCallbackFrames = types.NominalPeriod

const pitchCacheEntries = 64
const pitchCacheBytes = 256 * 1024 * 1024

// Engine is the audio core. One per process; see the api façade.
type Engine struct {
	mu sync.Mutex // serializes host-thread operations

	cfg   types.Config
	bank  *bank.Bank
	grid  *grid.Grid
	pool  *voice.Pool
	graph *graph.Graph
	clock *transport.Transport
	tap   *record.Tap
	cache *pitch.Cache
	sink  Sink

	// currentlyPlaying tracks, per column, the voice that owns the column's
	// sound slot; replaced voices are faded out.
	currentlyPlaying [types.MaxColumns]atomic.Pointer[voice.Voice]

	samplePreview atomic.Pointer[voice.Voice]
	cellPreview   atomic.Pointer[voice.Voice]

	currentFrame atomic.Uint64
	callbacks    atomic.Uint64
	framesOut    atomic.Uint64
}

// New builds an engine from cfg. The sink is attached separately with Open.
func New(cfg types.Config) *Engine {
	e := &Engine{
		cfg:   cfg,
		bank:  bank.New(cfg),
		grid:  grid.New(),
		pool:  voice.NewPool(cfg),
		graph: graph.New(maxCallbackFrames),
		tap:   record.New(),
	}
	e.clock = transport.New(cfg.BPM, e.grid.TotalSteps())
	if cfg.PitchStrategy == types.PitchPreprocess {
		e.cache = pitch.NewCache(pitchCacheEntries, pitchCacheBytes)
	}
	return e
}

// Open binds the sink and starts the callback stream.
func (e *Engine) Open(s Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink != nil {
		return fmt.Errorf("open: %w: sink already attached", types.ErrBadState)
	}
	if err := s.Start(e.Render); err != nil {
		return err
	}
	e.sink = s
	return nil
}

// Close tears the engine down: transport stopped, recording finalized,
// voices and bank released, sink closed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Stop()
	if e.tap.Active() {
		if _, err := e.tap.Stop(); err != nil {
			log.Printf("recording finalization on close: %v", err)
		}
	}
	if e.sink != nil {
		e.sink.Stop()
		e.sink = nil
	}
	e.pool.CleanupAll(e.graph)
	for c := range e.currentlyPlaying {
		e.currentlyPlaying[c].Store(nil)
	}
	e.samplePreview.Store(nil)
	e.cellPreview.Store(nil)
	e.bank.UnloadAll()
}

// Render is the audio callback orchestrator. Per period, in order: advance
// the frame counter, run the sequencer clock (firing step triggers), update
// envelopes, monitor voices, mix, and feed the recording tap. It never takes
// the host mutex. The mix itself allocates nothing, but stream-mode decoders
// and the stretch strategy allocate while they decode on this path.
func (e *Engine) Render(out []float32, frames int) {
	for frames > 0 {
		chunk := frames
		if chunk > maxCallbackFrames {
			chunk = maxCallbackFrames
		}
		e.renderChunk(out[:chunk*types.Channels], chunk)
		out = out[chunk*types.Channels:]
		frames -= chunk
	}
}

func (e *Engine) renderChunk(out []float32, frames int) {
	e.currentFrame.Add(uint64(frames))
	e.clock.Advance(frames, e.fireStep)
	e.pool.TickSmoothing()
	e.pool.Monitor()
	e.graph.Read(out, frames)
	e.tap.Write(out, frames)
	e.callbacks.Add(1)
	e.framesOut.Add(uint64(frames))
}

// fireStep triggers one step: for every column whose cell names a sample,
// the cell's voice is retriggered at its resolved volume and pitch, fading
// out whichever voice previously owned the column. Empty cells leave the
// previous voice running. Audio thread.
func (e *Engine) fireStep(step int) {
	cols := e.grid.Columns()
	for c := 0; c < cols; c++ {
		cell := e.grid.Cell(step, c)
		if cell == nil || cell.Slot == grid.NoSlot {
			continue
		}
		v := e.pool.FindForCell(step, c, cell.Slot)
		if v == nil {
			continue
		}
		slot := e.bank.Slot(cell.Slot)
		target := e.grid.ResolveVolume(step, c, slot.DefaultVolume())
		targetPitch := e.grid.ResolvePitch(step, c, slot.DefaultPitch())

		prev := e.currentlyPlaying[c].Load()
		if prev != nil && prev != v && prev.Active() {
			prev.SetTarget(0)
		}
		// Local copies guard against a host-side teardown racing this
		// trigger; the voice just renders silence until the next edit.
		src, node := v.Source, v.Node
		if src == nil || node == nil {
			continue
		}
		// Retrigger: rewind even when the same voice fired last time.
		if err := src.Seek(0); err != nil {
			continue
		}
		// Preprocess sources cannot re-pitch on the audio thread; the baked
		// ratio was applied at creation and host-side edits rebuild the
		// voice, so a rebuild request here is already satisfied.
		if err := src.SetPitch(targetPitch); err != nil && !errors.Is(err, pitch.ErrNeedsRebuild) {
			continue
		}
		v.SetTarget(float32(target))
		node.ClearAtEnd()
		node.SetState(graph.Started)
		e.currentlyPlaying[c].Store(v)
	}
}

// cleanupVoice tears down a voice and drops any per-column reference to it.
func (e *Engine) cleanupVoice(v *voice.Voice) {
	if v == nil {
		return
	}
	for c := range e.currentlyPlaying {
		if e.currentlyPlaying[c].Load() == v {
			e.currentlyPlaying[c].Store(nil)
		}
	}
	e.pool.Cleanup(v, e.graph)
}

// resolveCellParams returns the effective volume and pitch for a cell.
func (e *Engine) resolveCellParams(step, column, slot int) (float64, float64) {
	s := e.bank.Slot(slot)
	return e.grid.ResolveVolume(step, column, s.DefaultVolume()),
		e.grid.ResolvePitch(step, column, s.DefaultPitch())
}

// rebuildVoice recreates a voice in place with new parameters. Used when the
// preprocessed pitch strategy cannot change ratio without rebaking.
func (e *Engine) rebuildVoice(v *voice.Voice, volume, pitchRatio float64) error {
	step, column, slot := v.Step, v.Column, v.Slot
	e.cleanupVoice(v)
	_, err := e.pool.Create(step, column, slot, volume, pitchRatio,
		e.cfg.PitchStrategy, e.bank, e.cache, e.graph, e.currentFrame.Load())
	return err
}

// --- Bank operations -------------------------------------------------------

// Load decodes a file into a bank slot.
func (e *Engine) Load(slot int, path string, inMemory bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	// A reloaded slot invalidates the voices playing its old sample.
	if e.bank.IsLoaded(slot) {
		e.dropVoicesForSlot(slot)
	}
	if err := e.bank.Load(slot, path, inMemory); err != nil {
		return err
	}
	if e.cache != nil {
		e.cache.DropSlot(slot)
	}
	// Cells already pointing at this slot get their voices back.
	return e.rebuildVoicesForSlot(slot)
}

// Unload releases a bank slot and every voice playing it.
func (e *Engine) Unload(slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropVoicesForSlot(slot)
	if e.cache != nil && bank.ValidSlot(slot) {
		e.cache.DropSlot(slot)
	}
	return e.bank.Unload(slot)
}

func (e *Engine) dropVoicesForSlot(slot int) {
	var doomed []*voice.Voice
	e.pool.ForEachActive(func(v *voice.Voice) {
		if v.Slot == slot {
			doomed = append(doomed, v)
		}
	})
	for _, v := range doomed {
		e.cleanupVoice(v)
	}
}

func (e *Engine) rebuildVoicesForSlot(slot int) error {
	total := e.grid.TotalSteps()
	cols := e.grid.Columns()
	for s := 0; s < total; s++ {
		for c := 0; c < cols; c++ {
			cell := e.grid.Cell(s, c)
			if cell == nil || cell.Slot != slot {
				continue
			}
			vol, pr := e.resolveCellParams(s, c, slot)
			if _, err := e.pool.Create(s, c, slot, vol, pr,
				e.cfg.PitchStrategy, e.bank, e.cache, e.graph, e.currentFrame.Load()); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsLoaded reports whether slot holds a sample.
func (e *Engine) IsLoaded(slot int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.IsLoaded(slot)
}

// SlotCount returns the bank capacity.
func (e *Engine) SlotCount() int { return types.MaxSlots }

// SlotMemory returns the bytes slot counts against the caps.
func (e *Engine) SlotMemory(slot int) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.MemoryUsage(slot)
}

// TotalMemory returns the global in-memory tally.
func (e *Engine) TotalMemory() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.TotalMemory()
}

// MemorySlotCount returns how many slots are in memory.
func (e *Engine) MemorySlotCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.MemorySlotCount()
}

// MaxMemorySlots returns the in-memory slot cap.
func (e *Engine) MaxMemorySlots() int { return e.bank.MaxMemorySlots() }

// MaxFileSize returns the per-file byte cap.
func (e *Engine) MaxFileSize() int64 { return e.bank.MaxFileBytes() }

// MaxTotalMemory returns the global byte cap.
func (e *Engine) MaxTotalMemory() int64 { return e.bank.MaxMemoryBytes() }

// AvailableMemory returns the headroom under the global cap.
func (e *Engine) AvailableMemory() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.AvailableMemory()
}

// --- Defaults --------------------------------------------------------------

// SetDefaultVolume updates a slot default and propagates it to every voice
// whose cell carries no volume override.
func (e *Engine) SetDefaultVolume(slot int, v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.bank.SetDefaultVolume(slot, v); err != nil {
		return err
	}
	e.pool.ForEachActive(func(vc *voice.Voice) {
		if vc.Slot != slot || vc.Step < 0 {
			return
		}
		if cell := e.grid.Cell(vc.Step, vc.Column); cell != nil {
			if _, overridden := cell.VolumeOverride(); overridden {
				return
			}
		}
		vc.Volume = v
		if e.currentlyPlaying[vc.Column].Load() == vc {
			vc.SetTarget(float32(v))
		}
	})
	return nil
}

// GetDefaultVolume returns a slot's default volume.
func (e *Engine) GetDefaultVolume(slot int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !bank.ValidSlot(slot) {
		return 0, fmt.Errorf("default volume: %w: slot %d", types.ErrBadArgument, slot)
	}
	return e.bank.Slot(slot).DefaultVolume(), nil
}

// SetDefaultPitch updates a slot default pitch and re-pitches every voice
// whose cell carries no pitch override. Under the preprocess strategy the
// affected voices are rebuilt against the rebaked buffer.
func (e *Engine) SetDefaultPitch(slot int, p float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.bank.SetDefaultPitch(slot, p); err != nil {
		return err
	}
	var rebuild []*voice.Voice
	e.pool.ForEachActive(func(vc *voice.Voice) {
		if vc.Slot != slot || vc.Step < 0 {
			return
		}
		if cell := e.grid.Cell(vc.Step, vc.Column); cell != nil {
			if _, overridden := cell.PitchOverride(); overridden {
				return
			}
		}
		vc.Pitch = p
		if err := vc.Source.SetPitch(p); errors.Is(err, pitch.ErrNeedsRebuild) {
			rebuild = append(rebuild, vc)
		}
	})
	for _, vc := range rebuild {
		if err := e.rebuildVoice(vc, vc.Volume, p); err != nil {
			return err
		}
	}
	return nil
}

// GetDefaultPitch returns a slot's default pitch ratio.
func (e *Engine) GetDefaultPitch(slot int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !bank.ValidSlot(slot) {
		return 0, fmt.Errorf("default pitch: %w: slot %d", types.ErrBadArgument, slot)
	}
	return e.bank.Slot(slot).DefaultPitch(), nil
}

// --- Grid operations -------------------------------------------------------

// SetColumns sets the active column count.
func (e *Engine) SetColumns(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.SetColumns(n)
}

// Columns returns the active column count.
func (e *Engine) Columns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.Columns()
}

// SetCell points a cell at a slot and swaps its voice: the old voice is torn
// down, overrides are cleared, and a muted voice for the new sample stands
// ready for the next trigger.
func (e *Engine) SetCell(step, column, slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.bank.IsLoaded(slot) {
		return fmt.Errorf("set cell: %w: slot %d not loaded", types.ErrBadState, slot)
	}
	cell := e.grid.Cell(step, column)
	if cell == nil {
		return fmt.Errorf("set cell: %w: (%d,%d)", types.ErrBadArgument, step, column)
	}
	oldSlot := cell.Slot
	if oldSlot == slot {
		return nil
	}

	// New voice first so pool exhaustion leaves everything unchanged.
	s := e.bank.Slot(slot)
	v, err := e.pool.Create(step, column, slot, s.DefaultVolume(), s.DefaultPitch(),
		e.cfg.PitchStrategy, e.bank, e.cache, e.graph, e.currentFrame.Load())
	if err != nil {
		return err
	}
	if oldSlot != grid.NoSlot {
		e.cleanupVoice(e.pool.FindForCell(step, column, oldSlot))
	}
	if err := e.grid.SetCell(step, column, slot); err != nil {
		e.cleanupVoice(v)
		return err
	}
	return nil
}

// ClearCell silences a cell and removes its voice.
func (e *Engine) ClearCell(step, column int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cell := e.grid.Cell(step, column)
	if cell == nil {
		return fmt.Errorf("clear cell: %w: (%d,%d)", types.ErrBadArgument, step, column)
	}
	if cell.Slot != grid.NoSlot {
		e.cleanupVoice(e.pool.FindForCell(step, column, cell.Slot))
	}
	return e.grid.ClearCell(step, column)
}

// ClearAll silences the whole grid.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	var doomed []*voice.Voice
	e.pool.ForEachActive(func(v *voice.Voice) {
		if v.Step >= 0 {
			doomed = append(doomed, v)
		}
	})
	for _, v := range doomed {
		e.cleanupVoice(v)
	}
	e.grid.ClearAll()
}

// --- Overrides -------------------------------------------------------------

// SetCellVolume installs a volume override and applies it to the cell's
// voice immediately when that voice owns its column.
func (e *Engine) SetCellVolume(step, column int, v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.grid.SetVolumeOverride(step, column, v); err != nil {
		return err
	}
	e.applyCellVolume(step, column)
	return nil
}

// ResetCellVolume removes a volume override, falling back to the default.
func (e *Engine) ResetCellVolume(step, column int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.grid.ResetVolumeOverride(step, column); err != nil {
		return err
	}
	e.applyCellVolume(step, column)
	return nil
}

func (e *Engine) applyCellVolume(step, column int) {
	cell := e.grid.Cell(step, column)
	if cell == nil || cell.Slot == grid.NoSlot {
		return
	}
	vc := e.pool.FindForCell(step, column, cell.Slot)
	if vc == nil {
		return
	}
	vol, _ := e.resolveCellParams(step, column, cell.Slot)
	vc.Volume = vol
	if e.currentlyPlaying[column].Load() == vc {
		vc.SetTarget(float32(vol))
	}
}

// GetCellVolume returns the effective volume for a cell.
func (e *Engine) GetCellVolume(step, column int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cell := e.grid.Cell(step, column)
	if cell == nil {
		return 0, fmt.Errorf("cell volume: %w: (%d,%d)", types.ErrBadArgument, step, column)
	}
	if v, ok := cell.VolumeOverride(); ok {
		return v, nil
	}
	if cell.Slot == grid.NoSlot {
		return 1.0, nil
	}
	return e.bank.Slot(cell.Slot).DefaultVolume(), nil
}

// SetCellPitch installs a pitch override, rebuilding the voice when the
// strategy bakes pitch into the buffer.
func (e *Engine) SetCellPitch(step, column int, p float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.grid.SetPitchOverride(step, column, p); err != nil {
		return err
	}
	return e.applyCellPitch(step, column)
}

// ResetCellPitch removes a pitch override.
func (e *Engine) ResetCellPitch(step, column int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.grid.ResetPitchOverride(step, column); err != nil {
		return err
	}
	return e.applyCellPitch(step, column)
}

func (e *Engine) applyCellPitch(step, column int) error {
	cell := e.grid.Cell(step, column)
	if cell == nil || cell.Slot == grid.NoSlot {
		return nil
	}
	vc := e.pool.FindForCell(step, column, cell.Slot)
	if vc == nil {
		return nil
	}
	_, pr := e.resolveCellParams(step, column, cell.Slot)
	vc.Pitch = pr
	if err := vc.Source.SetPitch(pr); errors.Is(err, pitch.ErrNeedsRebuild) {
		return e.rebuildVoice(vc, vc.Volume, pr)
	} else if err != nil {
		return err
	}
	return nil
}

// GetCellPitch returns the effective pitch ratio for a cell.
func (e *Engine) GetCellPitch(step, column int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cell := e.grid.Cell(step, column)
	if cell == nil {
		return 0, fmt.Errorf("cell pitch: %w: (%d,%d)", types.ErrBadArgument, step, column)
	}
	if p, ok := cell.PitchOverride(); ok {
		return p, nil
	}
	if cell.Slot == grid.NoSlot {
		return 1.0, nil
	}
	return e.bank.Slot(cell.Slot).DefaultPitch(), nil
}

// --- Sections --------------------------------------------------------------

// InsertStep grows a section by one step, shifting later rows and rebuilding
// the voices whose cells moved.
func (e *Engine) InsertStep(section, atStep int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	affected, err := e.grid.InsertStep(section, atStep)
	if err != nil {
		return err
	}
	return e.rebuildVoicesFromStep(affected)
}

// DeleteStep removes a step from a section, shifting later rows up.
func (e *Engine) DeleteStep(section, atStep int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	affected, err := e.grid.DeleteStep(section, atStep)
	if err != nil {
		return err
	}
	return e.rebuildVoicesFromStep(affected)
}

// SetSectionSteps resizes a section.
func (e *Engine) SetSectionSteps(i, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	affected, err := e.grid.SetSectionSteps(i, n)
	if err != nil {
		return err
	}
	return e.rebuildVoicesFromStep(affected)
}

// rebuildVoicesFromStep invalidates every voice at or after step and
// recreates voices for the cells now occupying those rows.
func (e *Engine) rebuildVoicesFromStep(step int) error {
	var doomed []*voice.Voice
	e.pool.ForEachActive(func(v *voice.Voice) {
		if v.Step >= step {
			doomed = append(doomed, v)
		}
	})
	for _, v := range doomed {
		e.cleanupVoice(v)
	}
	total := e.grid.TotalSteps()
	cols := e.grid.Columns()
	var firstErr error
	for s := step; s < total; s++ {
		for c := 0; c < cols; c++ {
			cell := e.grid.Cell(s, c)
			if cell == nil || cell.Slot == grid.NoSlot || !e.bank.IsLoaded(cell.Slot) {
				continue
			}
			vol, pr := e.resolveCellParams(s, c, cell.Slot)
			if _, err := e.pool.Create(s, c, cell.Slot, vol, pr,
				e.cfg.PitchStrategy, e.bank, e.cache, e.graph, e.currentFrame.Load()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SectionCount returns the number of sections.
func (e *Engine) SectionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.SectionCount()
}

// SectionStart returns a section's first step.
func (e *Engine) SectionStart(i int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.SectionStart(i)
}

// SectionSteps returns a section's length.
func (e *Engine) SectionSteps(i int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.SectionSteps(i)
}

// SectionAtStep returns which section contains a step.
func (e *Engine) SectionAtStep(step int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid.SectionAtStep(step)
}

// --- Transport -------------------------------------------------------------

// Start begins playback at startStep with the given tempo.
func (e *Engine) Start(bpm, startStep int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Start(bpm, startStep)
}

// Stop halts the transport and fades every sounding voice to silence.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Stop()
	e.pool.ForEachActive(func(v *voice.Voice) {
		v.SetTarget(0)
	})
	for c := range e.currentlyPlaying {
		e.currentlyPlaying[c].Store(nil)
	}
}

// IsPlaying reports whether the transport runs.
func (e *Engine) IsPlaying() bool { return e.clock.Playing() }

// CurrentStep returns the last triggered step.
func (e *Engine) CurrentStep() int { return e.clock.CurrentStep() }

// SetBPM retunes the clock.
func (e *Engine) SetBPM(bpm int) error { return e.clock.SetBPM(bpm) }

// SetRegion sets the loop region [start, end).
func (e *Engine) SetRegion(start, end int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if end > e.grid.TotalSteps() {
		return fmt.Errorf("region: %w: end %d beyond grid", types.ErrBadArgument, end)
	}
	return e.clock.SetRegion(start, end)
}

// SetMode switches between loop and song mode.
func (e *Engine) SetMode(m types.PlayMode) { e.clock.SetMode(m) }

// TransportSnapshot returns the stable snapshot handle for external readers.
func (e *Engine) TransportSnapshot() *transport.Snapshot { return e.clock.Snapshot() }

// --- Diagnostics -----------------------------------------------------------

// ActiveVoiceCount returns the number of allocated voices.
func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.ActiveCount()
}

// MaxVoiceCount returns the pool capacity.
func (e *Engine) MaxVoiceCount() int { return e.pool.Capacity() }

// Stats returns callback counters for performance monitoring.
func (e *Engine) Stats() (callbacks, frames uint64, peakVoices int) {
	return e.callbacks.Load(), e.framesOut.Load(), e.pool.PeakActive()
}

// --- Recording -------------------------------------------------------------

// StartRecording opens a WAV capture on the graph endpoint.
func (e *Engine) StartRecording(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tap.Start(path)
}

// StopRecording finalizes the capture and returns its duration in ms.
func (e *Engine) StopRecording() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tap.Stop()
}

// IsRecording reports whether a capture is active.
func (e *Engine) IsRecording() bool { return e.tap.Active() }

// RecordingDurationMs returns the captured duration so far.
func (e *Engine) RecordingDurationMs() int64 { return e.tap.DurationMs() }
