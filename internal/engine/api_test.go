package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbeat/gridbeat/internal/types"
)

func TestFacadeNotInitialized(t *testing.T) {
	require.Equal(t, types.StatusOK, Cleanup())
	assert.False(t, IsInitialized())

	assert.Equal(t, types.StatusNotInitialized, LoadSample(0, "x.wav", true))
	assert.Equal(t, types.StatusNotInitialized, SetCell(0, 0, 0))
	assert.Equal(t, types.StatusNotInitialized, StartPlayback(120, 0))
	assert.Equal(t, types.StatusNotInitialized, StartRecording("x.wav"))
	assert.False(t, IsPlaying())
	assert.False(t, IsRecording())
	assert.Nil(t, TransportSnapshot())
}

func TestFacadeLifecycle(t *testing.T) {
	dir := t.TempDir()
	sample := writeTestWav(t, dir, "s.wav", 4800, 48000, 1, 8192)

	sink, st := InitOffline(types.DefaultConfig())
	require.Equal(t, types.StatusOK, st)
	defer Cleanup()
	require.True(t, IsInitialized())

	// A second init returns success without reinitializing.
	_, st = InitOffline(types.DefaultConfig())
	assert.Equal(t, types.StatusOK, st)

	assert.Equal(t, types.MaxSlots, SlotCount())
	assert.Equal(t, types.StatusOK, LoadSample(0, sample, true))
	assert.True(t, IsSampleLoaded(0))
	assert.Greater(t, TotalMemory(), int64(0))
	assert.Equal(t, 1, MemorySlotCount())
	assert.Greater(t, AvailableMemory(), int64(0))

	assert.Equal(t, types.StatusOK, SetColumns(1))
	assert.Equal(t, types.StatusOK, SetCell(0, 0, 0))
	assert.Equal(t, 1, ActiveVoiceCount())
	assert.Equal(t, types.MaxVoices, MaxVoiceCount())

	assert.Equal(t, types.StatusOK, SetCellVolume(0, 0, 0.5))
	assert.Equal(t, 0.5, GetCellVolume(0, 0))
	assert.Equal(t, types.StatusOK, ResetCellVolume(0, 0))
	assert.Equal(t, 1.0, GetCellVolume(0, 0))
	assert.Equal(t, types.StatusBadArgument, SetCellVolume(0, 0, 2.0))

	assert.Equal(t, types.StatusOK, SetDefaultPitch(0, 2.0))
	assert.Equal(t, 2.0, GetDefaultPitch(0))
	assert.Equal(t, 2.0, GetCellPitch(0, 0))

	assert.Equal(t, types.StatusBadArgument, SetBPM(0))
	assert.Equal(t, types.StatusBadArgument, SetBPM(301))
	assert.Equal(t, types.StatusOK, SetBPM(140))

	assert.Equal(t, types.StatusOK, SetRegion(0, 8))
	assert.Equal(t, types.StatusOK, SetMode(types.LoopMode))
	assert.Equal(t, types.StatusOK, StartPlayback(140, 0))
	assert.True(t, IsPlaying())

	require.NoError(t, sink.PullDiscard(4096))
	snap := TransportSnapshot()
	require.NotNil(t, snap)
	d := snap.Read()
	assert.True(t, d.Playing)
	assert.Equal(t, 140, d.BPM)

	assert.Equal(t, types.StatusOK, StopPlayback())
	assert.False(t, IsPlaying())
	assert.Equal(t, 0, CurrentStep())

	assert.Equal(t, 1, SectionCount())
	assert.Equal(t, 0, SectionStart(0))
	assert.Equal(t, types.MaxSteps, SectionSteps(0))
	assert.Equal(t, 0, SectionAtStep(3))

	assert.Equal(t, types.StatusOK, PlaySlot(0))
	assert.Equal(t, types.StatusOK, StopSlot(0))
	assert.Equal(t, types.StatusOK, StopAllSlots())

	rec := filepath.Join(dir, "cap.wav")
	assert.Equal(t, types.StatusOK, StartRecording(rec))
	assert.True(t, IsRecording())
	require.NoError(t, sink.PullDiscard(48000))
	assert.Equal(t, int64(1000), RecordingDurationMs())
	ms, st := StopRecording()
	assert.Equal(t, types.StatusOK, st)
	assert.Equal(t, int64(1000), ms)

	require.Equal(t, types.StatusOK, Cleanup())
	assert.False(t, IsInitialized())
	// Cleanup is idempotent.
	assert.Equal(t, types.StatusOK, Cleanup())
}
