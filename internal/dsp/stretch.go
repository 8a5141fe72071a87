package dsp

// Stretcher is a time-domain speed-change processor built on overlapping
// windowed grains (synchronized overlap-add without the search step). It
// trades a grain of latency for fewer interpolation artifacts than the plain
// linear resampler at large ratios. Input is fed in chunks; output is
// drained as it becomes available. Interleaved stereo throughout.
type Stretcher struct {
	ratio float64 // speed factor: >1 consumes input faster than it emits

	grain   int // frames per grain
	overlap int // crossfaded frames between grains
	window  []float32

	input   []float32 // pending input frames (interleaved)
	output  []float32 // synthesized frames not yet drained
	inPos   float64   // fractional read position into input
	tailL   []float32 // previous grain tail for crossfade
	primed  bool
}

const (
	stretchGrain   = 512
	stretchOverlap = 128
)

// NewStretcher creates a stretch processor for the given speed factor.
func NewStretcher(ratio float64) *Stretcher {
	s := &Stretcher{
		ratio:   ratio,
		grain:   stretchGrain,
		overlap: stretchOverlap,
	}
	s.window = make([]float32, s.overlap)
	for i := range s.window {
		s.window[i] = float32(i) / float32(s.overlap)
	}
	s.tailL = make([]float32, s.overlap*2)
	return s
}

// Ratio returns the configured speed factor.
func (s *Stretcher) Ratio() float64 { return s.ratio }

// Feed appends interleaved stereo input frames for processing.
func (s *Stretcher) Feed(in []float32) {
	s.input = append(s.input, in...)
	s.synthesize()
}

// Pending returns the number of output frames ready to drain.
func (s *Stretcher) Pending() int { return len(s.output) / 2 }

// Drain copies up to len(out)/2 ready frames into out and returns the count.
func (s *Stretcher) Drain(out []float32) int {
	n := len(out) / 2
	if avail := len(s.output) / 2; n > avail {
		n = avail
	}
	copy(out, s.output[:n*2])
	s.output = s.output[n*2:]
	return n
}

// Reset drops all buffered input and output.
func (s *Stretcher) Reset() {
	s.input = s.input[:0]
	s.output = s.output[:0]
	s.inPos = 0
	s.primed = false
}

// synthesize consumes as many whole grains as the input buffer allows. Each
// grain emits grain-overlap frames, advances the input position by
// (grain-overlap)*ratio frames and is crossfaded against the previous
// grain's tail.
func (s *Stretcher) synthesize() {
	hop := float64(s.grain-s.overlap) * s.ratio
	for {
		start := int(s.inPos)
		if start+s.grain >= len(s.input)/2 {
			break
		}
		base := start * 2
		if !s.primed {
			// First grain passes through whole; stash its tail.
			s.output = append(s.output, s.input[base:base+(s.grain-s.overlap)*2]...)
			copy(s.tailL, s.input[base+(s.grain-s.overlap)*2:base+s.grain*2])
			s.primed = true
		} else {
			for i := 0; i < s.overlap; i++ {
				w := s.window[i]
				l := s.tailL[i*2]*(1-w) + s.input[base+i*2]*w
				r := s.tailL[i*2+1]*(1-w) + s.input[base+i*2+1]*w
				s.output = append(s.output, l, r)
			}
			s.output = append(s.output, s.input[base+s.overlap*2:base+(s.grain-s.overlap)*2]...)
			copy(s.tailL, s.input[base+(s.grain-s.overlap)*2:base+s.grain*2])
		}
		s.inPos += hop
	}

	// Trim consumed frames so the input buffer does not grow without bound.
	trim := int(s.inPos)
	if trim > 0 && trim <= len(s.input)/2 {
		s.input = append(s.input[:0], s.input[trim*2:]...)
		s.inPos -= float64(trim)
	}
}
