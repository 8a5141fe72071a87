// Package grid holds the 2-D step-by-column arrangement of cells, the
// per-cell overrides, and the section table that tiles the step axis.
// Host thread only; the engine publishes derived voice state separately.
package grid

import (
	"fmt"

	"github.com/gridbeat/gridbeat/internal/types"
)

// NoSlot marks an empty cell.
const NoSlot = -1

// Cell is one (step, column) entry. Overrides are explicit presence, never a
// sentinel value.
type Cell struct {
	Slot int // NoSlot when silent

	volumeOverride float64
	hasVolume      bool
	pitchOverride  float64
	hasPitch       bool
}

// VolumeOverride returns the cell's volume override, if present.
func (c *Cell) VolumeOverride() (float64, bool) { return c.volumeOverride, c.hasVolume }

// PitchOverride returns the cell's pitch override, if present.
func (c *Cell) PitchOverride() (float64, bool) { return c.pitchOverride, c.hasPitch }

// clearOverrides drops both overrides; done whenever the slot reference
// changes or the cell is cleared.
func (c *Cell) clearOverrides() {
	c.hasVolume = false
	c.hasPitch = false
	c.volumeOverride = 0
	c.pitchOverride = 0
}

// Section is an ordered, consecutive run of steps.
type Section struct {
	Start int
	Steps int
}

// Grid is the fixed-size arrangement plus its section table. Sections tile
// [0, TotalSteps) without gaps or overlap.
type Grid struct {
	cells    [types.MaxSteps][types.MaxColumns]Cell
	columns  int
	sections []Section
}

// New creates a grid with every cell silent, all columns enabled, and a
// single section covering the whole step axis.
func New() *Grid {
	g := &Grid{columns: types.MaxColumns}
	for s := range g.cells {
		for c := range g.cells[s] {
			g.cells[s][c].Slot = NoSlot
		}
	}
	g.sections = []Section{{Start: 0, Steps: types.MaxSteps}}
	return g
}

// Columns returns the active column count.
func (g *Grid) Columns() int { return g.columns }

// SetColumns sets the active column count.
func (g *Grid) SetColumns(n int) error {
	if n < 1 || n > types.MaxColumns {
		return fmt.Errorf("columns: %w: %d", types.ErrBadArgument, n)
	}
	g.columns = n
	return nil
}

// TotalSteps returns the number of steps covered by the section table.
func (g *Grid) TotalSteps() int {
	n := 0
	for _, s := range g.sections {
		n += s.Steps
	}
	return n
}

// validCoord checks a (step, column) pair against the playable area.
func (g *Grid) validCoord(step, column int) error {
	if step < 0 || step >= g.TotalSteps() {
		return fmt.Errorf("cell: %w: step %d", types.ErrBadArgument, step)
	}
	if column < 0 || column >= g.columns {
		return fmt.Errorf("cell: %w: column %d", types.ErrBadArgument, column)
	}
	return nil
}

// Cell returns the cell at (step, column), or nil when out of range.
func (g *Grid) Cell(step, column int) *Cell {
	if g.validCoord(step, column) != nil {
		return nil
	}
	return &g.cells[step][column]
}

// SetCell points (step, column) at slot. Changing the slot clears both
// overrides.
func (g *Grid) SetCell(step, column, slot int) error {
	if err := g.validCoord(step, column); err != nil {
		return err
	}
	c := &g.cells[step][column]
	if c.Slot != slot {
		c.clearOverrides()
	}
	c.Slot = slot
	return nil
}

// ClearCell silences (step, column) and drops its overrides.
func (g *Grid) ClearCell(step, column int) error {
	if err := g.validCoord(step, column); err != nil {
		return err
	}
	c := &g.cells[step][column]
	c.Slot = NoSlot
	c.clearOverrides()
	return nil
}

// ClearAll silences every cell.
func (g *Grid) ClearAll() {
	for s := range g.cells {
		for c := range g.cells[s] {
			g.cells[s][c].Slot = NoSlot
			g.cells[s][c].clearOverrides()
		}
	}
}

// SetVolumeOverride installs a per-cell volume override.
func (g *Grid) SetVolumeOverride(step, column int, v float64) error {
	if err := g.validCoord(step, column); err != nil {
		return err
	}
	if !types.ValidVolume(v) {
		return fmt.Errorf("volume override: %w: %f", types.ErrBadArgument, v)
	}
	c := &g.cells[step][column]
	c.volumeOverride = v
	c.hasVolume = true
	return nil
}

// ResetVolumeOverride removes a per-cell volume override.
func (g *Grid) ResetVolumeOverride(step, column int) error {
	if err := g.validCoord(step, column); err != nil {
		return err
	}
	g.cells[step][column].hasVolume = false
	return nil
}

// SetPitchOverride installs a per-cell pitch override.
func (g *Grid) SetPitchOverride(step, column int, p float64) error {
	if err := g.validCoord(step, column); err != nil {
		return err
	}
	if !types.ValidPitch(p) {
		return fmt.Errorf("pitch override: %w: %f", types.ErrBadArgument, p)
	}
	c := &g.cells[step][column]
	c.pitchOverride = p
	c.hasPitch = true
	return nil
}

// ResetPitchOverride removes a per-cell pitch override.
func (g *Grid) ResetPitchOverride(step, column int) error {
	if err := g.validCoord(step, column); err != nil {
		return err
	}
	g.cells[step][column].hasPitch = false
	return nil
}

// ResolveVolume returns the cell override when present, the slot default
// otherwise.
func (g *Grid) ResolveVolume(step, column int, slotDefault float64) float64 {
	c := g.Cell(step, column)
	if c != nil && c.hasVolume {
		return c.volumeOverride
	}
	return slotDefault
}

// ResolvePitch is the pitch counterpart of ResolveVolume.
func (g *Grid) ResolvePitch(step, column int, slotDefault float64) float64 {
	c := g.Cell(step, column)
	if c != nil && c.hasPitch {
		return c.pitchOverride
	}
	return slotDefault
}

// SectionCount returns the number of sections.
func (g *Grid) SectionCount() int { return len(g.sections) }

// SectionStart returns section i's first step, or -1 when out of range.
func (g *Grid) SectionStart(i int) int {
	if i < 0 || i >= len(g.sections) {
		return -1
	}
	return g.sections[i].Start
}

// SectionSteps returns section i's length, or -1 when out of range.
func (g *Grid) SectionSteps(i int) int {
	if i < 0 || i >= len(g.sections) {
		return -1
	}
	return g.sections[i].Steps
}

// SectionAtStep returns the index of the section containing step, or -1.
func (g *Grid) SectionAtStep(step int) int {
	for i, s := range g.sections {
		if step >= s.Start && step < s.Start+s.Steps {
			return i
		}
	}
	return -1
}

// renumber restores the tiling invariant after a length change.
func (g *Grid) renumber() {
	start := 0
	for i := range g.sections {
		g.sections[i].Start = start
		start += g.sections[i].Steps
	}
}

// InsertStep grows section by one step at atStep (an absolute step index
// inside the section), shifting later cell rows down. Cells shifted past the
// grid capacity are discarded. Returns the first affected step so callers
// can invalidate voices from there on.
func (g *Grid) InsertStep(section, atStep int) (int, error) {
	if section < 0 || section >= len(g.sections) {
		return 0, fmt.Errorf("insert step: %w: section %d", types.ErrBadArgument, section)
	}
	s := &g.sections[section]
	if atStep < s.Start || atStep > s.Start+s.Steps {
		return 0, fmt.Errorf("insert step: %w: step %d outside section", types.ErrBadArgument, atStep)
	}
	if g.TotalSteps() >= types.MaxSteps {
		return 0, fmt.Errorf("insert step: %w: grid is full", types.ErrBadState)
	}
	for row := types.MaxSteps - 1; row > atStep; row-- {
		g.cells[row] = g.cells[row-1]
	}
	for c := range g.cells[atStep] {
		g.cells[atStep][c].Slot = NoSlot
		g.cells[atStep][c].clearOverrides()
	}
	s.Steps++
	g.renumber()
	return atStep, nil
}

// DeleteStep removes atStep from section, shifting later cell rows up.
// Returns the first affected step.
func (g *Grid) DeleteStep(section, atStep int) (int, error) {
	if section < 0 || section >= len(g.sections) {
		return 0, fmt.Errorf("delete step: %w: section %d", types.ErrBadArgument, section)
	}
	s := &g.sections[section]
	if atStep < s.Start || atStep >= s.Start+s.Steps {
		return 0, fmt.Errorf("delete step: %w: step %d outside section", types.ErrBadArgument, atStep)
	}
	if s.Steps <= 1 && len(g.sections) == 1 {
		return 0, fmt.Errorf("delete step: %w: cannot delete the last step", types.ErrBadState)
	}
	for row := atStep; row < types.MaxSteps-1; row++ {
		g.cells[row] = g.cells[row+1]
	}
	last := types.MaxSteps - 1
	for c := range g.cells[last] {
		g.cells[last][c].Slot = NoSlot
		g.cells[last][c].clearOverrides()
	}
	s.Steps--
	if s.Steps == 0 {
		g.sections = append(g.sections[:section], g.sections[section+1:]...)
	}
	g.renumber()
	return atStep, nil
}

// SetSectionSteps resizes section i to n steps, inserting at or deleting
// from its end. Returns the first affected step.
func (g *Grid) SetSectionSteps(i, n int) (int, error) {
	if i < 0 || i >= len(g.sections) {
		return 0, fmt.Errorf("section steps: %w: section %d", types.ErrBadArgument, i)
	}
	if n < 1 {
		return 0, fmt.Errorf("section steps: %w: %d steps", types.ErrBadArgument, n)
	}
	s := g.sections[i]
	affected := s.Start + minInt(s.Steps, n)
	for s.Steps < n {
		if _, err := g.InsertStep(i, g.sections[i].Start+g.sections[i].Steps); err != nil {
			return 0, err
		}
		s = g.sections[i]
	}
	for s.Steps > n {
		if _, err := g.DeleteStep(i, g.sections[i].Start+g.sections[i].Steps-1); err != nil {
			return 0, err
		}
		s = g.sections[i]
	}
	return affected, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
