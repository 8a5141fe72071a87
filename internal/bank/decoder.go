package bank

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/gridbeat/gridbeat/internal/dsp"
	"github.com/gridbeat/gridbeat/internal/types"
)

// Decoder produces interleaved stereo float32 frames at the engine rate.
// Each voice owns a private decoder; cursors are never shared.
type Decoder interface {
	// Read fills out with up to len(out)/2 frames and returns how many were
	// produced. io.EOF is returned once the source is fully drained.
	Read(out []float32) (int, error)
	// Seek positions the cursor at the given output frame.
	Seek(frame int64) error
	Cursor() int64
	Length() int64
	Close() error
}

// memoryDecoder is a cursor over a slot's shared decoded frames. Reads and
// seeks never allocate, so retriggers are safe on the audio thread.
type memoryDecoder struct {
	frames []float32 // shared, immutable after load
	pos    int64
}

// NewMemoryDecoder returns a decoder over predecoded engine-format frames.
func NewMemoryDecoder(frames []float32) Decoder {
	return &memoryDecoder{frames: frames}
}

func (d *memoryDecoder) Read(out []float32) (int, error) {
	total := int64(len(d.frames)) / types.Channels
	if d.pos >= total {
		return 0, io.EOF
	}
	want := int64(len(out)) / types.Channels
	if rem := total - d.pos; want > rem {
		want = rem
	}
	copy(out, d.frames[d.pos*types.Channels:(d.pos+want)*types.Channels])
	d.pos += want
	return int(want), nil
}

func (d *memoryDecoder) Seek(frame int64) error {
	if frame < 0 {
		return fmt.Errorf("seek: %w: frame %d", types.ErrBadArgument, frame)
	}
	d.pos = frame
	return nil
}

func (d *memoryDecoder) Cursor() int64 { return d.pos }
func (d *memoryDecoder) Length() int64 { return int64(len(d.frames)) / types.Channels }
func (d *memoryDecoder) Close() error  { return nil }

// streamDecoder decodes a WAV file incrementally, converting channel count
// and sample rate to engine format on the fly.
type streamDecoder struct {
	path string
	f    *os.File
	dec  *wav.Decoder

	srcRate     int
	srcChans    int
	scale       float32
	intBuf      *audio.IntBuffer
	pending     []float32 // converted frames not yet handed out
	resampler   *dsp.Resampler
	pos         int64
	length      int64
	exhausted   bool
}

const streamChunkFrames = 2048

// NewStreamDecoder opens path and prepares incremental decoding.
func NewStreamDecoder(path string) (Decoder, error) {
	d := &streamDecoder{path: path}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *streamDecoder) open() error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrOpenFailed, err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s is not a valid wav file", types.ErrDecodeFailed, d.path)
	}
	d.f = f
	d.dec = dec
	d.srcRate = int(dec.SampleRate)
	d.srcChans = int(dec.NumChans)
	bits := int(dec.BitDepth)
	if bits == 0 {
		bits = 16
	}
	d.scale = 1.0 / float32(int(1)<<(bits-1))
	d.intBuf = &audio.IntBuffer{
		Format: &audio.Format{NumChannels: d.srcChans, SampleRate: d.srcRate},
		Data:   make([]int, streamChunkFrames*d.srcChans),
	}
	if d.srcRate != types.SampleRate {
		d.resampler = dsp.NewResampler(d.srcRate, types.SampleRate)
	}
	if dur, err := dec.Duration(); err == nil {
		d.length = int64(dur.Seconds() * float64(types.SampleRate))
	}
	d.pending = d.pending[:0]
	d.pos = 0
	d.exhausted = false
	return nil
}

func (d *streamDecoder) Read(out []float32) (int, error) {
	want := len(out) / types.Channels
	got := 0
	for got < want {
		if len(d.pending) >= types.Channels {
			n := len(d.pending) / types.Channels
			if n > want-got {
				n = want - got
			}
			copy(out[got*types.Channels:], d.pending[:n*types.Channels])
			d.pending = d.pending[n*types.Channels:]
			got += n
			continue
		}
		if d.exhausted {
			break
		}
		if err := d.fill(); err != nil {
			d.exhausted = true
		}
	}
	d.pos += int64(got)
	if got == 0 && d.exhausted {
		return 0, io.EOF
	}
	return got, nil
}

// fill decodes one source chunk into pending, converted to engine format.
func (d *streamDecoder) fill() error {
	n, err := d.dec.PCMBuffer(d.intBuf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return err
	}
	srcFrames := n / d.srcChans
	stereo := make([]float32, srcFrames*types.Channels)
	for i := 0; i < srcFrames; i++ {
		var l, r float32
		switch d.srcChans {
		case 1:
			l = float32(d.intBuf.Data[i]) * d.scale
			r = l
		default:
			l = float32(d.intBuf.Data[i*d.srcChans]) * d.scale
			r = float32(d.intBuf.Data[i*d.srcChans+1]) * d.scale
		}
		stereo[i*2] = l
		stereo[i*2+1] = r
	}
	if d.resampler == nil {
		d.pending = append(d.pending, stereo...)
		return err
	}
	outFrames := int(float64(srcFrames)*d.resampler.Ratio()) + 2
	out := make([]float32, outFrames*types.Channels)
	produced, _ := d.resampler.Process(stereo, out)
	d.pending = append(d.pending, out[:produced*types.Channels]...)
	return err
}

// Seek re-arms the underlying decoder and skips forward to frame. Seeking to
// zero is the common retrigger path.
func (d *streamDecoder) Seek(frame int64) error {
	if frame < 0 {
		return fmt.Errorf("seek: %w: frame %d", types.ErrBadArgument, frame)
	}
	d.f.Close()
	if d.resampler != nil {
		d.resampler.Reset()
	}
	if err := d.open(); err != nil {
		return err
	}
	skip := frame
	scratch := make([]float32, streamChunkFrames*types.Channels)
	for skip > 0 {
		n := int64(streamChunkFrames)
		if n > skip {
			n = skip
		}
		got, err := d.Read(scratch[:n*types.Channels])
		if got == 0 || err != nil {
			break
		}
		skip -= int64(got)
	}
	d.pos = frame - skip
	return nil
}

func (d *streamDecoder) Cursor() int64 { return d.pos }
func (d *streamDecoder) Length() int64 { return d.length }

func (d *streamDecoder) Close() error {
	if d.f != nil {
		err := d.f.Close()
		d.f = nil
		return err
	}
	return nil
}

// DecodeFile reads an entire WAV file into engine-format frames. Used for
// in-memory slots, sample previews and the preprocessed pitch path.
func DecodeFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrOpenFailed, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav file", types.ErrDecodeFailed, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecodeFailed, err)
	}
	chans := buf.Format.NumChannels
	if chans < 1 {
		return nil, fmt.Errorf("%w: no channels in %s", types.ErrDecodeFailed, path)
	}
	bits := int(dec.BitDepth)
	if bits == 0 {
		bits = 16
	}
	scale := 1.0 / float32(int(1)<<(bits-1))

	srcFrames := len(buf.Data) / chans
	stereo := make([]float32, srcFrames*types.Channels)
	for i := 0; i < srcFrames; i++ {
		var l, r float32
		if chans == 1 {
			l = float32(buf.Data[i]) * scale
			r = l
		} else {
			l = float32(buf.Data[i*chans]) * scale
			r = float32(buf.Data[i*chans+1]) * scale
		}
		stereo[i*2] = l
		stereo[i*2+1] = r
	}
	if int(dec.SampleRate) != types.SampleRate {
		stereo = dsp.ResampleAll(stereo, int(dec.SampleRate), types.SampleRate)
	}
	return stereo, nil
}
