// Package voice manages the fixed pool of cell voices. A voice drives one
// sample for one grid cell through one graph node: decoder -> pitch source
// -> node. Creation and teardown happen on the host thread; the audio thread
// only touches smoothing state and atomic fields.
package voice

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gridbeat/gridbeat/internal/bank"
	"github.com/gridbeat/gridbeat/internal/graph"
	"github.com/gridbeat/gridbeat/internal/pitch"
	"github.com/gridbeat/gridbeat/internal/types"
)

// Voice is one pool entry. Zero value is inactive.
type Voice struct {
	active atomic.Bool

	ID     uint64
	Step   int
	Column int
	Slot   int

	Decoder bank.Decoder
	Source  pitch.Source
	Node    *graph.Node

	// Resolved parameters at creation (or last update).
	Volume float64
	Pitch  float64

	// Smoothing state. currentVolume is advanced only by the audio thread
	// but published atomically so host-side reads stay clean; the target is
	// published atomically by whoever mutates it.
	currentVolume   atomic.Uint32 // float32 bits
	targetVolume    atomic.Uint32 // float32 bits
	riseCoeff       float32
	fallCoeff       float32
	smoothingActive atomic.Bool

	StartFrame uint64
	// EndedFrames counts Monitor passes (one per callback) that found the
	// node at end-of-stream; diagnostics only.
	EndedFrames uint64
}

// Active reports whether the voice is allocated.
func (v *Voice) Active() bool { return v.active.Load() }

// TargetVolume returns the published smoothing target.
func (v *Voice) TargetVolume() float32 {
	return math.Float32frombits(v.targetVolume.Load())
}

// CurrentVolume returns the smoothed volume as of the last callback.
func (v *Voice) CurrentVolume() float32 {
	return math.Float32frombits(v.currentVolume.Load())
}

func (v *Voice) setCurrentVolume(x float32) {
	v.currentVolume.Store(math.Float32bits(x))
}

// SmoothingActive reports whether the envelope is still converging.
func (v *Voice) SmoothingActive() bool { return v.smoothingActive.Load() }

// SetTarget publishes a new smoothing target in [0, 1]. If the envelope has
// already converged on that value this is a snap, not a restart.
func (v *Voice) SetTarget(target float32) {
	if target < 0 {
		target = 0
	} else if target > 1 {
		target = 1
	}
	v.targetVolume.Store(math.Float32bits(target))
	if abs32(v.CurrentVolume()-target) < types.SmoothThreshold {
		v.smoothingActive.Store(false)
		return
	}
	v.smoothingActive.Store(true)
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// Pool is the fixed-capacity voice pool.
type Pool struct {
	voices [types.MaxVoices]Voice
	nextID uint64

	activeCount int
	peakActive  int

	riseCoeff float32
	fallCoeff float32
}

// NewPool creates a pool with smoothing coefficients derived from cfg.
func NewPool(cfg types.Config) *Pool {
	return &Pool{
		riseCoeff: types.SmoothingCoeff(cfg.RiseTimeMs),
		fallCoeff: types.SmoothingCoeff(cfg.FallTimeMs),
	}
}

// findAvailable returns the first inactive entry.
func (p *Pool) findAvailable() *Voice {
	for i := range p.voices {
		if !p.voices[i].active.Load() {
			return &p.voices[i]
		}
	}
	return nil
}

// Create allocates a voice for (step, column, slot) with resolved volume and
// pitch, decoding from the bank. The voice comes up muted and stopped:
// ready, not audible. Host thread only.
func (p *Pool) Create(step, column, slot int, volume, pitchRatio float64,
	strategy types.PitchStrategy, b *bank.Bank, cache *pitch.Cache, g *graph.Graph,
	currentFrame uint64) (*Voice, error) {

	dec, err := b.NewDecoder(slot)
	if err != nil {
		return nil, fmt.Errorf("create voice: %w", err)
	}
	v, err := p.CreateFromDecoder(step, column, slot, dec, volume, pitchRatio, strategy, cache, g, currentFrame)
	if err != nil {
		dec.Close()
		return nil, err
	}
	return v, nil
}

// CreateFromDecoder is Create over a caller-supplied decoder; preview
// channels use it to play sources that never enter the bank.
func (p *Pool) CreateFromDecoder(step, column, slot int, dec bank.Decoder,
	volume, pitchRatio float64, strategy types.PitchStrategy, cache *pitch.Cache,
	g *graph.Graph, currentFrame uint64) (*Voice, error) {

	v := p.findAvailable()
	if v == nil {
		return nil, fmt.Errorf("create voice: %w", types.ErrPoolExhausted)
	}

	src, err := pitch.New(strategy, dec, pitchRatio, slot, cache)
	if err != nil {
		return nil, fmt.Errorf("create voice: %w", err)
	}

	p.nextID++
	v.ID = p.nextID
	v.Step = step
	v.Column = column
	v.Slot = slot
	v.Decoder = dec
	v.Source = src
	v.Volume = volume
	v.Pitch = pitchRatio
	v.setCurrentVolume(0)
	v.targetVolume.Store(math.Float32bits(float32(volume)))
	v.riseCoeff = p.riseCoeff
	v.fallCoeff = p.fallCoeff
	v.smoothingActive.Store(false)
	v.StartFrame = currentFrame
	v.EndedFrames = 0

	v.Node = g.Attach(src)
	v.active.Store(true)

	p.activeCount++
	if p.activeCount > p.peakActive {
		p.peakActive = p.activeCount
	}
	return v, nil
}

// Cleanup tears a voice down: detach the node, drop the source, drop the
// decoder, zero the entry. No-op on inactive voices. Host thread only.
func (p *Pool) Cleanup(v *Voice, g *graph.Graph) {
	if v == nil || !v.active.Load() {
		return
	}
	v.active.Store(false)
	if v.Node != nil {
		g.Detach(v.Node)
	}
	if v.Source != nil {
		v.Source.Close()
	}
	if v.Decoder != nil {
		v.Decoder.Close()
	}
	v.Node = nil
	v.Source = nil
	v.Decoder = nil
	v.Step = 0
	v.Column = 0
	v.Slot = 0
	v.Volume = 0
	v.Pitch = 0
	v.targetVolume.Store(0)
	v.setCurrentVolume(0)
	v.smoothingActive.Store(false)
	p.activeCount--
}

// CleanupAll tears down every active voice.
func (p *Pool) CleanupAll(g *graph.Graph) {
	for i := range p.voices {
		p.Cleanup(&p.voices[i], g)
	}
}

// FindForCell scans for the voice matching (step, column, slot). At most one
// such voice exists at any time.
func (p *Pool) FindForCell(step, column, slot int) *Voice {
	for i := range p.voices {
		v := &p.voices[i]
		if v.active.Load() && v.Step == step && v.Column == column && v.Slot == slot {
			return v
		}
	}
	return nil
}

// ForEachActive calls fn for every active voice.
func (p *Pool) ForEachActive(fn func(*Voice)) {
	for i := range p.voices {
		if p.voices[i].active.Load() {
			fn(&p.voices[i])
		}
	}
}

// ActiveCount returns the number of allocated voices.
func (p *Pool) ActiveCount() int { return p.activeCount }

// PeakActive returns the highwater mark of allocated voices.
func (p *Pool) PeakActive() int { return p.peakActive }

// Capacity returns the pool size.
func (p *Pool) Capacity() int { return types.MaxVoices }

// Monitor is the per-callback bookkeeping pass: it records end-of-stream
// statistics. It never frees voices; grid edits do that on the host thread.
// Audio thread only.
func (p *Pool) Monitor() {
	for i := range p.voices {
		v := &p.voices[i]
		if !v.active.Load() {
			continue
		}
		if n := v.Node; n != nil && n.AtEnd() {
			v.EndedFrames++
		}
	}
}
