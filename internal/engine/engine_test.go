package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbeat/gridbeat/internal/types"
)

// writeTestWav writes a PCM16 test file with a constant sample value.
func writeTestWav(t *testing.T, dir, name string, frames, rate, chans, value int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, chans, 1)
	data := make([]int, frames*chans)
	for i := range data {
		data[i] = value
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: chans, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

// newOfflineEngine builds an engine driven by the deterministic pseudo-sink.
func newOfflineEngine(t *testing.T, cfg types.Config) (*Engine, *OfflineSink) {
	t.Helper()
	e := New(cfg)
	sink := NewOfflineSink()
	require.NoError(t, e.Open(sink))
	t.Cleanup(e.Close)
	return e, sink
}

func pull(t *testing.T, s *OfflineSink, frames int) []float32 {
	t.Helper()
	out := make([]float32, frames*types.Channels)
	require.NoError(t, s.Pull(out, frames))
	return out
}

func TestScenarioBasicLoop(t *testing.T) {
	dir := t.TempDir()
	// Half a second, mono, becomes stereo after conversion.
	sample := writeTestWav(t, dir, "kick.wav", 24000, 48000, 1, 16384)

	e, sink := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetColumns(1))
	require.NoError(t, e.SetCell(0, 0, 0))
	require.NoError(t, e.SetCell(4, 0, 0))
	require.NoError(t, e.SetRegion(0, 8))
	require.NoError(t, e.Start(120, 0))

	out := pull(t, sink, 24000)
	assert.Equal(t, 4, e.CurrentStep())
	// Step 0 fired: signal is present once the envelope has risen.
	attack := out[2048*types.Channels]
	assert.NotZero(t, attack)

	out = pull(t, sink, 24000)
	// Past region end 8 the clock wrapped to 0.
	assert.Equal(t, 0, e.CurrentStep())
	assert.NotZero(t, out[2048*types.Channels])
}

func TestScenarioOverrideVsDefault(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 4800, 48000, 1, 8192)

	e, _ := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetDefaultVolume(0, 0.8))
	require.NoError(t, e.SetCell(0, 0, 0))

	v, err := e.GetCellVolume(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.8, v)

	require.NoError(t, e.SetCellVolume(0, 0, 0.25))
	v, _ = e.GetCellVolume(0, 0)
	assert.Equal(t, 0.25, v)

	// Default changes do not touch overridden cells.
	require.NoError(t, e.SetDefaultVolume(0, 0.5))
	v, _ = e.GetCellVolume(0, 0)
	assert.Equal(t, 0.25, v)

	require.NoError(t, e.ResetCellVolume(0, 0))
	v, _ = e.GetCellVolume(0, 0)
	assert.Equal(t, 0.5, v)
}

func TestScenarioVoiceReplacementSameColumn(t *testing.T) {
	dir := t.TempDir()
	a := writeTestWav(t, dir, "a.wav", 48000, 48000, 1, 8192)
	b := writeTestWav(t, dir, "b.wav", 48000, 48000, 1, 8192)

	e, sink := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, a, true))
	require.NoError(t, e.Load(1, b, true))
	require.NoError(t, e.SetColumns(1))
	require.NoError(t, e.SetCell(0, 0, 0))
	require.NoError(t, e.SetCell(1, 0, 1))
	require.NoError(t, e.Start(120, 0))

	// Render through step 1 (fires at frame 6000).
	pull(t, sink, 8192)
	require.Equal(t, 1, e.CurrentStep())

	va := e.pool.FindForCell(0, 0, 0)
	vb := e.pool.FindForCell(1, 0, 1)
	require.NotNil(t, va)
	require.NotNil(t, vb)
	// The replaced voice fades to zero, the new one to its resolved volume.
	assert.Equal(t, float32(0), va.TargetVolume())
	assert.Equal(t, float32(1), vb.TargetVolume())

	// Within a handful of callbacks both envelopes converge.
	pull(t, sink, 8192)
	assert.Equal(t, float32(0), va.CurrentVolume())
	assert.Equal(t, float32(1), vb.CurrentVolume())
}

func TestEmptyCellLeavesColumnPlaying(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "long.wav", 96000, 48000, 1, 8192)

	e, sink := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetColumns(1))
	require.NoError(t, e.SetCell(0, 0, 0))
	// Step 1 is empty: the step-0 voice keeps its target.
	require.NoError(t, e.Start(120, 0))

	pull(t, sink, 8192)
	require.Equal(t, 1, e.CurrentStep())
	v := e.pool.FindForCell(0, 0, 0)
	require.NotNil(t, v)
	assert.Equal(t, float32(1), v.TargetVolume())
}

func TestScenarioRecordingDeterminism(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.wav")

	e, sink := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.StartRecording(out))
	require.True(t, e.IsRecording())

	require.NoError(t, sink.PullDiscard(96000))

	assert.Equal(t, int64(2000), e.RecordingDurationMs())
	ms, err := e.StopRecording()
	require.NoError(t, err)
	assert.Equal(t, int64(2000), ms)
	assert.False(t, e.IsRecording())

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(44+96000*types.Channels*4), info.Size())
}

func TestRecordingOpenFailureLeavesStateClean(t *testing.T) {
	e, _ := newOfflineEngine(t, types.DefaultConfig())
	assert.ErrorIs(t, e.StartRecording("/nonexistent/dir/x.wav"), types.ErrOpenFailed)
	assert.False(t, e.IsRecording())
	_, err := e.StopRecording()
	assert.ErrorIs(t, err, types.ErrBadState)
}

func TestSetCellValidation(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 480, 48000, 1, 100)

	e, _ := newOfflineEngine(t, types.DefaultConfig())
	// Unloaded slot is a state error.
	assert.ErrorIs(t, e.SetCell(0, 0, 5), types.ErrBadState)

	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetColumns(2))
	assert.ErrorIs(t, e.SetCell(0, 2, 0), types.ErrBadArgument)
}

func TestSetCellSwapsVoice(t *testing.T) {
	dir := t.TempDir()
	a := writeTestWav(t, dir, "a.wav", 4800, 48000, 1, 100)
	b := writeTestWav(t, dir, "b.wav", 4800, 48000, 1, 100)

	e, _ := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, a, true))
	require.NoError(t, e.Load(1, b, true))

	require.NoError(t, e.SetCell(0, 0, 0))
	assert.Equal(t, 1, e.ActiveVoiceCount())
	require.NotNil(t, e.pool.FindForCell(0, 0, 0))

	require.NoError(t, e.SetCell(0, 0, 1))
	assert.Equal(t, 1, e.ActiveVoiceCount())
	assert.Nil(t, e.pool.FindForCell(0, 0, 0))
	require.NotNil(t, e.pool.FindForCell(0, 0, 1))

	require.NoError(t, e.ClearCell(0, 0))
	assert.Equal(t, 0, e.ActiveVoiceCount())
}

func TestUnloadDropsVoices(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 4800, 48000, 1, 100)

	e, _ := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetCell(0, 0, 0))
	require.NoError(t, e.SetCell(1, 0, 0))
	assert.Equal(t, 2, e.ActiveVoiceCount())

	require.NoError(t, e.Unload(0))
	assert.Equal(t, 0, e.ActiveVoiceCount())
	assert.False(t, e.IsLoaded(0))
}

func TestReloadRestoresVoices(t *testing.T) {
	dir := t.TempDir()
	a := writeTestWav(t, dir, "a.wav", 4800, 48000, 1, 100)
	b := writeTestWav(t, dir, "b.wav", 2400, 48000, 1, 100)

	e, _ := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, a, true))
	require.NoError(t, e.SetCell(0, 0, 0))

	// Reloading the slot with another file keeps the cell playable.
	require.NoError(t, e.Load(0, b, true))
	assert.Equal(t, 1, e.ActiveVoiceCount())
	require.NotNil(t, e.pool.FindForCell(0, 0, 0))
}

func TestDefaultPitchPropagation(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 4800, 48000, 1, 100)

	e, _ := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetCell(0, 0, 0))
	require.NoError(t, e.SetCell(1, 0, 0))
	// Cell (1,0) pins its own pitch; only (0,0) follows the default.
	require.NoError(t, e.SetCellPitch(1, 0, 2.0))

	require.NoError(t, e.SetDefaultPitch(0, 0.5))

	v0 := e.pool.FindForCell(0, 0, 0)
	v1 := e.pool.FindForCell(1, 0, 0)
	require.NotNil(t, v0)
	require.NotNil(t, v1)
	assert.Equal(t, 0.5, v0.Pitch)
	assert.Equal(t, 2.0, v1.Pitch)

	p, err := e.GetCellPitch(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)
}

func TestStopFadesEverything(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 96000, 48000, 1, 8192)

	e, sink := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetColumns(1))
	require.NoError(t, e.SetCell(0, 0, 0))
	require.NoError(t, e.Start(120, 0))
	pull(t, sink, 2048)

	e.Stop()
	assert.False(t, e.IsPlaying())
	assert.Equal(t, 0, e.CurrentStep())
	v := e.pool.FindForCell(0, 0, 0)
	require.NotNil(t, v)
	assert.Equal(t, float32(0), v.TargetVolume())

	// After the fall time the output is silent.
	pull(t, sink, 8192)
	out := pull(t, sink, 512)
	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
}

func TestInsertStepRebuildsVoices(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 4800, 48000, 1, 100)

	e, _ := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetSectionSteps(0, 8))
	require.NoError(t, e.SetCell(4, 0, 0))

	require.NoError(t, e.InsertStep(0, 4))
	assert.Nil(t, e.pool.FindForCell(4, 0, 0))
	require.NotNil(t, e.pool.FindForCell(5, 0, 0))

	require.NoError(t, e.DeleteStep(0, 4))
	require.NotNil(t, e.pool.FindForCell(4, 0, 0))
	assert.Nil(t, e.pool.FindForCell(5, 0, 0))
}

func TestPlaySlotProducesOutput(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 48000, 48000, 1, 16384)

	e, sink := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.Play(0))

	out := pull(t, sink, 4096)
	nonzero := false
	for _, s := range out {
		if s != 0 {
			nonzero = true
			break
		}
	}
	assert.True(t, nonzero)

	require.NoError(t, e.StopSlot(0))
	pull(t, sink, 8192)
	out = pull(t, sink, 512)
	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
}

func TestPreviewSampleAndCell(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "p.wav", 9600, 48000, 1, 8192)

	e, sink := newOfflineEngine(t, types.DefaultConfig())
	require.NoError(t, e.PreviewSample(sample, 1.0, 0.9))
	out := pull(t, sink, 2048)
	nonzero := false
	for _, s := range out {
		if s != 0 {
			nonzero = true
			break
		}
	}
	assert.True(t, nonzero)
	e.StopSamplePreview()

	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetCell(0, 0, 0))
	require.NoError(t, e.SetCellVolume(0, 0, 0.4))
	// Negative parameters fall back to the cell's resolved values.
	require.NoError(t, e.PreviewCell(0, 0, -1, -1))
	e.StopCellPreview()

	assert.ErrorIs(t, e.PreviewCell(3, 0, 1, 1), types.ErrBadState)
	assert.ErrorIs(t, e.PreviewSample("", 1, 1), types.ErrBadArgument)
}

func TestPreprocessStrategyRebuildOnPitchChange(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 4800, 48000, 1, 8192)

	cfg := types.DefaultConfig()
	cfg.PitchStrategy = types.PitchPreprocess
	e, _ := newOfflineEngine(t, cfg)
	require.NoError(t, e.Load(0, sample, true))
	require.NoError(t, e.SetCell(0, 0, 0))

	before := e.pool.FindForCell(0, 0, 0)
	require.NotNil(t, before)
	beforeID := before.ID

	// A pitch override rebuilds the voice against a rebaked buffer.
	require.NoError(t, e.SetCellPitch(0, 0, 2.0))
	after := e.pool.FindForCell(0, 0, 0)
	require.NotNil(t, after)
	assert.NotEqual(t, beforeID, after.ID)
	assert.Equal(t, 2.0, after.Pitch)
}

func TestDiagnostics(t *testing.T) {
	e, sink := newOfflineEngine(t, types.DefaultConfig())
	assert.Equal(t, 0, e.ActiveVoiceCount())
	assert.Equal(t, types.MaxVoices, e.MaxVoiceCount())

	require.NoError(t, sink.PullDiscard(4096))
	callbacks, frames, _ := e.Stats()
	assert.Equal(t, uint64(8), callbacks)
	assert.Equal(t, uint64(4096), frames)
}
