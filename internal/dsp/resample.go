// Package dsp provides the small signal-processing pieces the engine needs:
// linear resampling for pitch-as-speed playback and a time-domain stretch
// processor for the higher-quality realtime strategy.
package dsp

// Resampler converts interleaved stereo float32 between two rates using
// linear interpolation. Each instance keeps the last input frame so chunked
// streaming stays continuous across calls.
type Resampler struct {
	ratio    float64 // toRate / fromRate
	frac     float64 // fractional read position into the current chunk
	lastL    float32
	lastR    float32
	haveLast bool
}

// NewResampler creates a stereo resampler converting fromRate to toRate.
func NewResampler(fromRate, toRate int) *Resampler {
	return &Resampler{ratio: float64(toRate) / float64(fromRate)}
}

// Ratio returns the output/input rate ratio.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Reset clears carried state so the next Process starts fresh.
func (r *Resampler) Reset() {
	r.frac = 0
	r.lastL = 0
	r.lastR = 0
	r.haveLast = false
}

// NeededInput returns how many input frames roughly produce outFrames,
// rounded up so a subsequent Process call can always fill the request.
func (r *Resampler) NeededInput(outFrames int) int {
	n := int(float64(outFrames)/r.ratio) + 2
	if n < 1 {
		n = 1
	}
	return n
}

// Process resamples interleaved stereo input into out, returning the number
// of output frames written and the number of input frames consumed. It never
// writes more than len(out)/2 frames.
func (r *Resampler) Process(in []float32, out []float32) (produced, consumed int) {
	inFrames := len(in) / 2
	outFrames := len(out) / 2
	if inFrames == 0 || outFrames == 0 {
		return 0, 0
	}

	// Position advances by 1/ratio input frames per output frame. Index -1
	// refers to the frame carried over from the previous chunk.
	step := 1.0 / r.ratio
	pos := r.frac
	if r.haveLast {
		pos -= 1.0
	}

	n := 0
	for n < outFrames {
		idx := int(pos)
		if pos < 0 {
			idx = -1
		}
		if idx+1 >= inFrames {
			break
		}
		frac := float32(pos - float64(idx))

		var l0, r0 float32
		if idx < 0 {
			l0, r0 = r.lastL, r.lastR
			frac = float32(pos + 1.0)
		} else {
			l0, r0 = in[idx*2], in[idx*2+1]
		}
		l1, r1 := in[(idx+1)*2], in[(idx+1)*2+1]

		out[n*2] = l0 + (l1-l0)*frac
		out[n*2+1] = r0 + (r1-r0)*frac
		n++
		pos += step
	}

	r.lastL = in[(inFrames-1)*2]
	r.lastR = in[(inFrames-1)*2+1]
	r.haveLast = true
	if pos < 0 {
		pos = 0
	}
	r.frac = pos - float64(inFrames-1)
	if r.frac < 0 {
		r.frac = 0
	}
	return n, inFrames
}

// ResampleAll converts a whole interleaved stereo buffer at once. Used by
// offline paths (preprocessed pitch, decode-time rate conversion).
func ResampleAll(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	inFrames := len(in) / 2
	ratio := float64(toRate) / float64(fromRate)
	outFrames := int(float64(inFrames) * ratio)
	if outFrames < 1 {
		outFrames = 1
	}
	out := make([]float32, outFrames*2)
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) / ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))
		if idx >= inFrames-1 {
			idx = inFrames - 1
			frac = 0
		}
		l0, r0 := in[idx*2], in[idx*2+1]
		l1, r1 := l0, r0
		if idx+1 < inFrames {
			l1, r1 = in[(idx+1)*2], in[(idx+1)*2+1]
		}
		out[i*2] = l0 + (l1-l0)*frac
		out[i*2+1] = r0 + (r1-r0)*frac
	}
	return out
}
