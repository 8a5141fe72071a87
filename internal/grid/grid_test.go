package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbeat/gridbeat/internal/types"
)

func TestNewGridDefaults(t *testing.T) {
	g := New()
	assert.Equal(t, types.MaxColumns, g.Columns())
	assert.Equal(t, types.MaxSteps, g.TotalSteps())
	assert.Equal(t, 1, g.SectionCount())
	assert.Equal(t, 0, g.SectionStart(0))
	assert.Equal(t, types.MaxSteps, g.SectionSteps(0))
	for s := 0; s < types.MaxSteps; s++ {
		for c := 0; c < types.MaxColumns; c++ {
			assert.Equal(t, NoSlot, g.Cell(s, c).Slot)
		}
	}
}

func TestSetColumnsBounds(t *testing.T) {
	g := New()
	require.NoError(t, g.SetColumns(1))
	assert.Equal(t, 1, g.Columns())
	assert.ErrorIs(t, g.SetColumns(0), types.ErrBadArgument)
	assert.ErrorIs(t, g.SetColumns(types.MaxColumns+1), types.ErrBadArgument)
}

func TestSetCellBeyondColumnsFails(t *testing.T) {
	g := New()
	require.NoError(t, g.SetColumns(2))
	assert.ErrorIs(t, g.SetCell(0, 2, 5), types.ErrBadArgument)
	assert.ErrorIs(t, g.SetCell(-1, 0, 5), types.ErrBadArgument)
	assert.ErrorIs(t, g.SetCell(types.MaxSteps, 0, 5), types.ErrBadArgument)
}

func TestOverrideRoundTrip(t *testing.T) {
	g := New()
	require.NoError(t, g.SetCell(0, 0, 3))

	require.NoError(t, g.SetVolumeOverride(0, 0, 0.25))
	v, ok := g.Cell(0, 0).VolumeOverride()
	require.True(t, ok)
	assert.Equal(t, 0.25, v)
	assert.Equal(t, 0.25, g.ResolveVolume(0, 0, 0.8))

	require.NoError(t, g.ResetVolumeOverride(0, 0))
	_, ok = g.Cell(0, 0).VolumeOverride()
	assert.False(t, ok)
	assert.Equal(t, 0.8, g.ResolveVolume(0, 0, 0.8))
}

func TestOverrideValidation(t *testing.T) {
	g := New()
	assert.ErrorIs(t, g.SetVolumeOverride(0, 0, 1.5), types.ErrBadArgument)
	assert.ErrorIs(t, g.SetPitchOverride(0, 0, 33.0), types.ErrBadArgument)
	assert.NoError(t, g.SetPitchOverride(0, 0, 1.0/32.0))
	assert.NoError(t, g.SetPitchOverride(0, 0, 32.0))
}

func TestSlotChangeClearsOverrides(t *testing.T) {
	g := New()
	require.NoError(t, g.SetCell(2, 3, 1))
	require.NoError(t, g.SetVolumeOverride(2, 3, 0.5))
	require.NoError(t, g.SetPitchOverride(2, 3, 2.0))

	// Same slot: overrides survive.
	require.NoError(t, g.SetCell(2, 3, 1))
	_, ok := g.Cell(2, 3).VolumeOverride()
	assert.True(t, ok)

	// Different slot: overrides are cleared.
	require.NoError(t, g.SetCell(2, 3, 7))
	_, ok = g.Cell(2, 3).VolumeOverride()
	assert.False(t, ok)
	_, ok = g.Cell(2, 3).PitchOverride()
	assert.False(t, ok)
}

func TestClearCell(t *testing.T) {
	g := New()
	require.NoError(t, g.SetCell(1, 1, 4))
	require.NoError(t, g.SetVolumeOverride(1, 1, 0.5))
	require.NoError(t, g.ClearCell(1, 1))
	assert.Equal(t, NoSlot, g.Cell(1, 1).Slot)
	_, ok := g.Cell(1, 1).VolumeOverride()
	assert.False(t, ok)
}

func TestSectionsTileAfterEdits(t *testing.T) {
	g := New()
	// Split the default section into two by shrinking and appending: start
	// from one 32-step section, carve it into 16+16 via SetSectionSteps is
	// not a split, so emulate the common shape: shrink to 16, the table
	// still tiles [0,16).
	_, err := g.SetSectionSteps(0, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, g.TotalSteps())
	assert.Equal(t, 0, g.SectionStart(0))

	// Insert inside the section: later starts shift, tiling holds.
	affected, err := g.InsertStep(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, affected)
	assert.Equal(t, 17, g.TotalSteps())
	assert.Equal(t, 17, g.SectionSteps(0))

	affected, err = g.DeleteStep(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, affected)
	assert.Equal(t, 16, g.TotalSteps())
}

func TestInsertStepShiftsCells(t *testing.T) {
	g := New()
	_, err := g.SetSectionSteps(0, 8)
	require.NoError(t, err)
	require.NoError(t, g.SetCell(4, 0, 9))

	_, err = g.InsertStep(0, 4)
	require.NoError(t, err)
	// The occupied row moved down one; the inserted row is empty.
	assert.Equal(t, NoSlot, g.Cell(4, 0).Slot)
	assert.Equal(t, 9, g.Cell(5, 0).Slot)
}

func TestDeleteStepShiftsCells(t *testing.T) {
	g := New()
	_, err := g.SetSectionSteps(0, 8)
	require.NoError(t, err)
	require.NoError(t, g.SetCell(5, 0, 9))

	_, err = g.DeleteStep(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 9, g.Cell(4, 0).Slot)
}

func TestInsertIntoFullGridFails(t *testing.T) {
	g := New()
	_, err := g.InsertStep(0, 0)
	assert.ErrorIs(t, err, types.ErrBadState)
}

func TestSectionAtStep(t *testing.T) {
	g := New()
	assert.Equal(t, 0, g.SectionAtStep(0))
	assert.Equal(t, 0, g.SectionAtStep(types.MaxSteps-1))
	assert.Equal(t, -1, g.SectionAtStep(types.MaxSteps))
	assert.Equal(t, -1, g.SectionAtStep(-1))
}
