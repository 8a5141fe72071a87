package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbeat/gridbeat/internal/bank"
	"github.com/gridbeat/gridbeat/internal/graph"
	"github.com/gridbeat/gridbeat/internal/types"
)

func testFrames(frames int) []float32 {
	buf := make([]float32, frames*types.Channels)
	for i := range buf {
		buf[i] = 0.5
	}
	return buf
}

func newTestVoice(t *testing.T, p *Pool, g *graph.Graph, step, col, slot int, vol float64) *Voice {
	t.Helper()
	dec := bank.NewMemoryDecoder(testFrames(4800))
	v, err := p.CreateFromDecoder(step, col, slot, dec, vol, 1.0, types.PitchResample, nil, g, 0)
	require.NoError(t, err)
	return v
}

func TestCreateInitializesMuted(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)

	v := newTestVoice(t, p, g, 0, 0, 3, 0.8)
	assert.True(t, v.Active())
	assert.Equal(t, float32(0), v.CurrentVolume())
	assert.Equal(t, float32(0.8), v.TargetVolume())
	assert.Equal(t, graph.Stopped, v.Node.State())
	assert.Equal(t, float32(0), v.Node.Volume())
	assert.Equal(t, 1, p.ActiveCount())
	assert.Equal(t, 1, g.Count())
}

func TestMonotoneIDs(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)
	v1 := newTestVoice(t, p, g, 0, 0, 0, 1)
	v2 := newTestVoice(t, p, g, 1, 0, 0, 1)
	assert.Greater(t, v2.ID, v1.ID)

	p.Cleanup(v1, g)
	v3 := newTestVoice(t, p, g, 2, 0, 0, 1)
	assert.Greater(t, v3.ID, v2.ID)
}

func TestCleanupReleasesEverything(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)
	v := newTestVoice(t, p, g, 0, 0, 3, 0.8)

	p.Cleanup(v, g)
	assert.False(t, v.Active())
	assert.Nil(t, v.Node)
	assert.Nil(t, v.Source)
	assert.Nil(t, v.Decoder)
	assert.Equal(t, 0, p.ActiveCount())
	assert.Equal(t, 0, g.Count())

	// Cleaning an inactive voice is a no-op.
	p.Cleanup(v, g)
	assert.Equal(t, 0, p.ActiveCount())
}

func TestFindForCell(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)
	newTestVoice(t, p, g, 2, 5, 7, 1)

	v := p.FindForCell(2, 5, 7)
	require.NotNil(t, v)
	assert.Equal(t, 2, v.Step)
	assert.Equal(t, 5, v.Column)
	assert.Equal(t, 7, v.Slot)

	assert.Nil(t, p.FindForCell(2, 5, 8))
	assert.Nil(t, p.FindForCell(3, 5, 7))
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)
	for i := 0; i < types.MaxVoices; i++ {
		newTestVoice(t, p, g, i%types.MaxSteps, i/types.MaxSteps, 0, 1)
	}
	dec := bank.NewMemoryDecoder(testFrames(100))
	_, err := p.CreateFromDecoder(0, 63, 1, dec, 1, 1, types.PitchResample, nil, g, 0)
	assert.ErrorIs(t, err, types.ErrPoolExhausted)
	assert.Equal(t, types.MaxVoices, p.ActiveCount())
	assert.Equal(t, types.MaxVoices, p.PeakActive())
}

func TestSmoothingConvergesUpAndDown(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)
	v := newTestVoice(t, p, g, 0, 0, 0, 1.0)

	v.SetTarget(1.0)
	require.True(t, v.SmoothingActive())
	prev := v.CurrentVolume()
	for i := 0; i < 200 && v.SmoothingActive(); i++ {
		p.TickSmoothing()
		cur := v.CurrentVolume()
		assert.GreaterOrEqual(t, cur, prev, "rise must be monotone")
		prev = cur
	}
	assert.Equal(t, float32(1.0), v.CurrentVolume())
	assert.False(t, v.SmoothingActive())
	assert.Equal(t, float32(1.0), v.Node.Volume())

	v.SetTarget(0)
	prev = v.CurrentVolume()
	for i := 0; i < 400 && v.SmoothingActive(); i++ {
		p.TickSmoothing()
		cur := v.CurrentVolume()
		assert.LessOrEqual(t, cur, prev, "fall must be monotone")
		prev = cur
	}
	assert.Equal(t, float32(0), v.CurrentVolume())
	// Fully faded voices stop drawing input.
	assert.Equal(t, graph.Stopped, v.Node.State())
}

func TestRiseFasterThanFall(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)
	v := newTestVoice(t, p, g, 0, 0, 0, 1.0)

	v.SetTarget(1.0)
	riseTicks := 0
	for v.SmoothingActive() {
		p.TickSmoothing()
		riseTicks++
	}
	v.SetTarget(0)
	fallTicks := 0
	for v.SmoothingActive() {
		p.TickSmoothing()
		fallTicks++
	}
	assert.Less(t, riseTicks, fallTicks)
}

func TestSetTargetClamps(t *testing.T) {
	p := NewPool(types.DefaultConfig())
	g := graph.New(512)
	v := newTestVoice(t, p, g, 0, 0, 0, 1.0)
	v.SetTarget(2.0)
	assert.Equal(t, float32(1.0), v.TargetVolume())
	v.SetTarget(-0.5)
	assert.Equal(t, float32(0), v.TargetVolume())
}
