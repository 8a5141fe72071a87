// Package pitch adapts a sample decoder into a pitch-shifted frame source.
// Pitch is a speed factor implemented by resampling: ratio r plays the
// source r times faster, so target_rate = source_rate / r. Three strategies
// trade latency against quality; all satisfy the same Source contract.
package pitch

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/gridbeat/gridbeat/internal/bank"
	"github.com/gridbeat/gridbeat/internal/dsp"
	"github.com/gridbeat/gridbeat/internal/types"
)

// ErrNeedsRebuild is returned by SetPitch when the strategy cannot change
// ratio in place and the owning voice must be torn down and recreated.
var ErrNeedsRebuild = errors.New("pitch change requires voice rebuild")

// Source produces pitch-shifted interleaved stereo frames at the engine rate.
type Source interface {
	// Read fills out with up to len(out)/2 frames; io.EOF once the
	// underlying source is fully drained.
	Read(out []float32) (int, error)
	// Seek positions the underlying source and clears internal carry-over.
	Seek(frame int64) error
	Cursor() int64
	Length() int64
	// SetPitch swaps the ratio. Changes under the pitch epsilon are no-ops.
	SetPitch(ratio float64) error
	Ratio() float64
	Close() error
}

// targetRate derives the resampler output rate for a speed factor, clamped
// to the supported range.
func targetRate(ratio float64) int {
	t := int(float64(types.SampleRate)/ratio + 0.5)
	if t < types.MinTargetRate {
		t = types.MinTargetRate
	}
	if t > types.MaxTargetRate {
		t = types.MaxTargetRate
	}
	return t
}

// New builds a source over dec for the given strategy. The cache is consulted
// only by the preprocess strategy and may be nil for the others.
func New(strategy types.PitchStrategy, dec bank.Decoder, ratio float64, slot int, cache *Cache) (Source, error) {
	if !types.ValidPitch(ratio) {
		return nil, fmt.Errorf("pitch: %w: ratio %f", types.ErrBadArgument, ratio)
	}
	switch strategy {
	case types.PitchResample:
		return newResampleSource(dec, ratio), nil
	case types.PitchStretch:
		return newStretchSource(dec, ratio), nil
	case types.PitchPreprocess:
		return newPreprocessSource(dec, ratio, slot, cache)
	default:
		return nil, fmt.Errorf("pitch: %w: strategy %d", types.ErrBadArgument, strategy)
	}
}

// resampleSource runs a per-read linear resampler. Each instance owns its
// scratch buffer; nothing is shared between voices.
type resampleSource struct {
	dec     bank.Decoder
	ratio   float64
	rs      *dsp.Resampler
	scratch []float32
	atEnd   bool
}

func newResampleSource(dec bank.Decoder, ratio float64) *resampleSource {
	s := &resampleSource{dec: dec}
	s.rebuild(ratio)
	return s
}

// rebuild swaps the resampler and resizes scratch for the nominal callback
// period at the new ratio. Runs on the host thread.
func (s *resampleSource) rebuild(ratio float64) {
	s.ratio = ratio
	s.rs = dsp.NewResampler(types.SampleRate, targetRate(ratio))
	need := s.rs.NeededInput(types.NominalPeriod)
	s.scratch = make([]float32, need*types.Channels)
}

func (s *resampleSource) Read(out []float32) (int, error) {
	if math.Abs(s.ratio-1.0) < types.PitchEpsilon {
		return s.dec.Read(out)
	}
	want := len(out) / types.Channels
	got := 0
	// Larger requests are served in nominal-period chunks so the scratch
	// buffer never has to grow on the audio thread.
	for got < want {
		chunk := want - got
		if chunk > types.NominalPeriod {
			chunk = types.NominalPeriod
		}
		needIn := s.rs.NeededInput(chunk)
		in := s.scratch[:needIn*types.Channels]
		n, err := s.dec.Read(in)
		if n == 0 {
			if got == 0 {
				return 0, io.EOF
			}
			break
		}
		produced, _ := s.rs.Process(in[:n*types.Channels], out[got*types.Channels:(got+chunk)*types.Channels])
		got += produced
		if err != nil || produced == 0 {
			break
		}
	}
	if got == 0 {
		return 0, io.EOF
	}
	return got, nil
}

func (s *resampleSource) Seek(frame int64) error {
	s.rs.Reset()
	return s.dec.Seek(frame)
}

func (s *resampleSource) Cursor() int64 { return s.dec.Cursor() }
func (s *resampleSource) Length() int64 { return s.dec.Length() }
func (s *resampleSource) Ratio() float64 { return s.ratio }

func (s *resampleSource) SetPitch(ratio float64) error {
	if !types.ValidPitch(ratio) {
		return fmt.Errorf("pitch: %w: ratio %f", types.ErrBadArgument, ratio)
	}
	if math.Abs(ratio-s.ratio) < types.PitchEpsilon {
		return nil
	}
	s.rebuild(ratio)
	return nil
}

func (s *resampleSource) Close() error { return s.dec.Close() }

// stretchSource feeds decoder chunks through a time-domain stretch
// processor. Near-unity ratios and small requests bypass the processor.
type stretchSource struct {
	dec     bank.Decoder
	ratio   float64
	st      *dsp.Stretcher
	scratch []float32
	drained bool
}

func newStretchSource(dec bank.Decoder, ratio float64) *stretchSource {
	return &stretchSource{
		dec:     dec,
		ratio:   ratio,
		st:      dsp.NewStretcher(ratio),
		scratch: make([]float32, types.NominalPeriod*types.Channels*2),
	}
}

func (s *stretchSource) bypass(frames int) bool {
	return math.Abs(s.ratio-1.0) < types.StretchBypass || frames < types.StretchMinReq
}

func (s *stretchSource) Read(out []float32) (int, error) {
	want := len(out) / types.Channels
	if s.bypass(want) {
		return s.dec.Read(out)
	}
	for s.st.Pending() < want && !s.drained {
		feed := int(float64(want-s.st.Pending())*s.ratio) + dspFeedPad
		if feed > len(s.scratch)/types.Channels {
			feed = len(s.scratch) / types.Channels
		}
		n, err := s.dec.Read(s.scratch[:feed*types.Channels])
		if n > 0 {
			s.st.Feed(s.scratch[:n*types.Channels])
		}
		if err != nil || n == 0 {
			s.drained = true
		}
	}
	got := s.st.Drain(out)
	if got == 0 && s.drained {
		return 0, io.EOF
	}
	return got, nil
}

// dspFeedPad keeps the stretcher's grain pipeline fed past the request.
const dspFeedPad = 1024

func (s *stretchSource) Seek(frame int64) error {
	s.st.Reset()
	s.drained = false
	return s.dec.Seek(frame)
}

func (s *stretchSource) Cursor() int64 { return s.dec.Cursor() }
func (s *stretchSource) Length() int64 { return s.dec.Length() }
func (s *stretchSource) Ratio() float64 { return s.ratio }

func (s *stretchSource) SetPitch(ratio float64) error {
	if !types.ValidPitch(ratio) {
		return fmt.Errorf("pitch: %w: ratio %f", types.ErrBadArgument, ratio)
	}
	if math.Abs(ratio-s.ratio) < types.PitchEpsilon {
		return nil
	}
	s.ratio = ratio
	s.st = dsp.NewStretcher(ratio)
	s.drained = false
	return nil
}

func (s *stretchSource) Close() error { return s.dec.Close() }

// preprocessSource plays a pitch-baked buffer synthesized once per
// (slot, ratio) and shared through the cache. Runtime reads are plain copies.
type preprocessSource struct {
	frames []float32
	pos    int64
	ratio  float64
}

func newPreprocessSource(dec bank.Decoder, ratio float64, slot int, cache *Cache) (*preprocessSource, error) {
	if cache != nil {
		if frames, ok := cache.Get(slot, ratio); ok {
			return &preprocessSource{frames: frames, ratio: ratio}, nil
		}
	}
	frames, err := renderShifted(dec, ratio)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Put(slot, ratio, frames)
	}
	return &preprocessSource{frames: frames, ratio: ratio}, nil
}

// renderShifted drains the decoder and resamples the whole sample offline.
func renderShifted(dec bank.Decoder, ratio float64) ([]float32, error) {
	if err := dec.Seek(0); err != nil {
		return nil, err
	}
	var all []float32
	buf := make([]float32, 4096*types.Channels)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			all = append(all, buf[:n*types.Channels]...)
		}
		if err != nil || n == 0 {
			break
		}
	}
	if math.Abs(ratio-1.0) < types.PitchEpsilon {
		return all, nil
	}
	to := int(float64(types.SampleRate)/ratio + 0.5)
	return dsp.ResampleAll(all, types.SampleRate, to), nil
}

func (s *preprocessSource) Read(out []float32) (int, error) {
	total := int64(len(s.frames)) / types.Channels
	if s.pos >= total {
		return 0, io.EOF
	}
	want := int64(len(out)) / types.Channels
	if rem := total - s.pos; want > rem {
		want = rem
	}
	copy(out, s.frames[s.pos*types.Channels:(s.pos+want)*types.Channels])
	s.pos += want
	return int(want), nil
}

func (s *preprocessSource) Seek(frame int64) error {
	if frame < 0 {
		return fmt.Errorf("pitch: %w: frame %d", types.ErrBadArgument, frame)
	}
	s.pos = frame
	return nil
}

// Cursor and Length report the cached buffer's own extent.
func (s *preprocessSource) Cursor() int64 { return s.pos }
func (s *preprocessSource) Length() int64 { return int64(len(s.frames)) / types.Channels }
func (s *preprocessSource) Ratio() float64 { return s.ratio }

// SetPitch cannot rebake the buffer in place; the voice must be recreated.
func (s *preprocessSource) SetPitch(ratio float64) error {
	if math.Abs(ratio-s.ratio) < types.PitchEpsilon {
		return nil
	}
	return ErrNeedsRebuild
}

func (s *preprocessSource) Close() error { return nil }
