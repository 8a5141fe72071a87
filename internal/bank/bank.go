// Package bank owns the fixed array of sample slots: loading and decoding
// sources, per-slot playback defaults, and the memory accounting that keeps
// in-memory samples under the configured caps.
package bank

import (
	"fmt"
	"os"

	"github.com/gridbeat/gridbeat/internal/types"
)

// Slot is one entry in the bank. A loaded slot always records its file path;
// an in-memory slot also owns the decoded frames, while a stream-mode slot
// holds no frames and its voices decode from the path.
type Slot struct {
	loaded        bool
	inMemory      bool
	path          string
	frames        []float32 // engine-format frames, immutable once loaded
	fileBytes     int64     // original file size, counted against the caps
	defaultVolume float64
	defaultPitch  float64
}

// Loaded reports whether the slot holds a decoding source.
func (s *Slot) Loaded() bool { return s.loaded }

// InMemory reports whether the slot's sample is held in memory.
func (s *Slot) InMemory() bool { return s.inMemory }

// Path returns the slot's source file path, or "" when empty.
func (s *Slot) Path() string { return s.path }

// Frames exposes the shared decoded buffer of an in-memory slot. Multiple
// decoders may read it concurrently; it is immutable after load.
func (s *Slot) Frames() []float32 { return s.frames }

// DefaultVolume returns the slot's default volume.
func (s *Slot) DefaultVolume() float64 { return s.defaultVolume }

// DefaultPitch returns the slot's default pitch ratio.
func (s *Slot) DefaultPitch() float64 { return s.defaultPitch }

// Bank is the fixed array of sample slots plus the global memory tally.
// All mutation happens on the host thread; accessors used from the audio
// thread only touch data that is immutable while a slot stays loaded.
type Bank struct {
	slots          [types.MaxSlots]Slot
	maxFileBytes   int64
	maxMemorySlots int
	maxMemoryBytes int64
	totalBytes     int64
	memorySlots    int
}

// New creates a bank with the given caps. Non-positive values fall back to
// the defaults.
func New(cfg types.Config) *Bank {
	b := &Bank{
		maxFileBytes:   cfg.MaxFileBytes,
		maxMemorySlots: cfg.MaxMemorySlots,
		maxMemoryBytes: cfg.MaxMemoryBytes,
	}
	if b.maxFileBytes <= 0 {
		b.maxFileBytes = types.DefaultMaxFileBytes
	}
	if b.maxMemorySlots <= 0 {
		b.maxMemorySlots = types.DefaultMaxMemorySlots
	}
	if b.maxMemoryBytes <= 0 {
		b.maxMemoryBytes = types.DefaultMaxMemoryBytes
	}
	for i := range b.slots {
		b.slots[i].defaultVolume = 1.0
		b.slots[i].defaultPitch = 1.0
	}
	return b
}

// ValidSlot reports whether index names a slot.
func ValidSlot(slot int) bool { return slot >= 0 && slot < types.MaxSlots }

// Slot returns the slot at index. Index must be valid.
func (b *Bank) Slot(slot int) *Slot { return &b.slots[slot] }

// Load decodes path into slot. inMemory reads and decodes the whole file up
// front; otherwise voices stream from disk. A previously loaded slot is
// unloaded first. On failure the slot is left unchanged except that a
// previous sample, if any, stays unloaded.
func (b *Bank) Load(slot int, path string, inMemory bool) error {
	if !ValidSlot(slot) {
		return fmt.Errorf("load: %w: slot %d", types.ErrBadArgument, slot)
	}
	if path == "" {
		return fmt.Errorf("load: %w: empty path", types.ErrBadArgument)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("load: %w: %v", types.ErrOpenFailed, err)
	}

	if b.slots[slot].loaded {
		b.Unload(slot)
	}

	if inMemory {
		size := info.Size()
		// Caps are checked before anything is retained.
		if size > b.maxFileBytes {
			return fmt.Errorf("load: %w: file is %d bytes, cap %d", types.ErrMemoryLimitExceeded, size, b.maxFileBytes)
		}
		if b.memorySlots+1 > b.maxMemorySlots {
			return fmt.Errorf("load: %w: %d in-memory slots already", types.ErrMemoryLimitExceeded, b.memorySlots)
		}
		if b.totalBytes+size > b.maxMemoryBytes {
			return fmt.Errorf("load: %w: %d + %d exceeds cap %d", types.ErrMemoryLimitExceeded, b.totalBytes, size, b.maxMemoryBytes)
		}
		frames, err := DecodeFile(path)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		s := &b.slots[slot]
		s.loaded = true
		s.inMemory = true
		s.path = path
		s.frames = frames
		s.fileBytes = size
		b.totalBytes += size
		b.memorySlots++
		return nil
	}

	// Stream mode only verifies the file decodes; voices open their own
	// decoders later.
	probe, err := NewStreamDecoder(path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	probe.Close()
	s := &b.slots[slot]
	s.loaded = true
	s.inMemory = false
	s.path = path
	s.frames = nil
	s.fileBytes = 0
	return nil
}

// Unload releases slot's sample and restores its defaults to 1.0. Unloading
// an empty slot is a no-op.
func (b *Bank) Unload(slot int) error {
	if !ValidSlot(slot) {
		return fmt.Errorf("unload: %w: slot %d", types.ErrBadArgument, slot)
	}
	s := &b.slots[slot]
	if !s.loaded {
		return nil
	}
	if s.inMemory {
		b.totalBytes -= s.fileBytes
		b.memorySlots--
	}
	*s = Slot{defaultVolume: 1.0, defaultPitch: 1.0}
	return nil
}

// UnloadAll clears every slot. Used at engine teardown.
func (b *Bank) UnloadAll() {
	for i := range b.slots {
		b.Unload(i)
	}
}

// NewDecoder creates a fresh private decoder over slot's source.
func (b *Bank) NewDecoder(slot int) (Decoder, error) {
	if !ValidSlot(slot) {
		return nil, fmt.Errorf("decoder: %w: slot %d", types.ErrBadArgument, slot)
	}
	s := &b.slots[slot]
	if !s.loaded {
		return nil, fmt.Errorf("decoder: %w: slot %d not loaded", types.ErrBadState, slot)
	}
	if s.inMemory {
		return NewMemoryDecoder(s.frames), nil
	}
	return NewStreamDecoder(s.path)
}

// IsLoaded reports whether slot holds a sample.
func (b *Bank) IsLoaded(slot int) bool {
	return ValidSlot(slot) && b.slots[slot].loaded
}

// FilePath returns slot's source path, or "".
func (b *Bank) FilePath(slot int) string {
	if !ValidSlot(slot) {
		return ""
	}
	return b.slots[slot].path
}

// MemoryUsage returns the bytes slot counts against the global tally.
func (b *Bank) MemoryUsage(slot int) int64 {
	if !ValidSlot(slot) || !b.slots[slot].inMemory {
		return 0
	}
	return b.slots[slot].fileBytes
}

// TotalMemory returns the global in-memory byte tally.
func (b *Bank) TotalMemory() int64 { return b.totalBytes }

// MemorySlotCount returns how many slots are loaded in memory.
func (b *Bank) MemorySlotCount() int { return b.memorySlots }

// MaxMemorySlots returns the in-memory slot cap.
func (b *Bank) MaxMemorySlots() int { return b.maxMemorySlots }

// MaxFileBytes returns the per-file cap.
func (b *Bank) MaxFileBytes() int64 { return b.maxFileBytes }

// MaxMemoryBytes returns the global cap.
func (b *Bank) MaxMemoryBytes() int64 { return b.maxMemoryBytes }

// AvailableMemory returns the headroom under the global cap.
func (b *Bank) AvailableMemory() int64 { return b.maxMemoryBytes - b.totalBytes }

// SetDefaultVolume validates and stores slot's default volume. The caller
// propagates the change to voices without an override.
func (b *Bank) SetDefaultVolume(slot int, v float64) error {
	if !ValidSlot(slot) || !types.ValidVolume(v) {
		return fmt.Errorf("default volume: %w: slot %d volume %f", types.ErrBadArgument, slot, v)
	}
	if !b.slots[slot].loaded {
		return fmt.Errorf("default volume: %w: slot %d not loaded", types.ErrBadState, slot)
	}
	b.slots[slot].defaultVolume = v
	return nil
}

// SetDefaultPitch validates and stores slot's default pitch ratio.
func (b *Bank) SetDefaultPitch(slot int, p float64) error {
	if !ValidSlot(slot) || !types.ValidPitch(p) {
		return fmt.Errorf("default pitch: %w: slot %d pitch %f", types.ErrBadArgument, slot, p)
	}
	if !b.slots[slot].loaded {
		return fmt.Errorf("default pitch: %w: slot %d not loaded", types.ErrBadState, slot)
	}
	b.slots[slot].defaultPitch = p
	return nil
}
