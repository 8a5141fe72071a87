package engine

import (
	"sync"

	"github.com/gridbeat/gridbeat/internal/transport"
	"github.com/gridbeat/gridbeat/internal/types"
)

// The call-in façade. There is intentionally one engine per process; every
// operation returns an integer status (0 success, negative failure) or, for
// accessors and predicates, a plain value, and never panics across the
// boundary. All functions are host-thread calls.

var (
	apiMu sync.Mutex
	api   *Engine
)

// Init creates the process engine over the real device sink. Calling it
// again while initialized returns success without reinitializing.
func Init() int {
	return initWith(types.DefaultConfig(), NewMalgoSink())
}

// InitOffline creates the process engine over the deterministic offline
// sink and returns it alongside the status, so a host can pull frames.
func InitOffline(cfg types.Config) (*OfflineSink, int) {
	s := NewOfflineSink()
	return s, initWith(cfg, s)
}

func initWith(cfg types.Config, sink Sink) int {
	apiMu.Lock()
	defer apiMu.Unlock()
	if api != nil {
		return types.StatusOK
	}
	e := New(cfg)
	if err := e.Open(sink); err != nil {
		return types.StatusFromError(err)
	}
	api = e
	return types.StatusOK
}

// Cleanup tears the process engine down. Safe to call when not initialized.
func Cleanup() int {
	apiMu.Lock()
	defer apiMu.Unlock()
	if api == nil {
		return types.StatusOK
	}
	api.Close()
	api = nil
	return types.StatusOK
}

// IsInitialized reports whether the process engine exists.
func IsInitialized() bool {
	apiMu.Lock()
	defer apiMu.Unlock()
	return api != nil
}

// current fetches the engine or a NotInitialized status.
func current() (*Engine, int) {
	apiMu.Lock()
	defer apiMu.Unlock()
	if api == nil {
		return nil, types.StatusNotInitialized
	}
	return api, types.StatusOK
}

func status(err error) int { return types.StatusFromError(err) }

// --- Bank ------------------------------------------------------------------

func LoadSample(slot int, path string, inMemory bool) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.Load(slot, path, inMemory))
}

func UnloadSample(slot int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.Unload(slot))
}

func IsSampleLoaded(slot int) bool {
	e, st := current()
	return st == types.StatusOK && e.IsLoaded(slot)
}

func SlotCount() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.SlotCount()
}

func SlotMemory(slot int) int64 {
	e, st := current()
	if st != types.StatusOK {
		return 0
	}
	return e.SlotMemory(slot)
}

func TotalMemory() int64 {
	e, st := current()
	if st != types.StatusOK {
		return 0
	}
	return e.TotalMemory()
}

func MemorySlotCount() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.MemorySlotCount()
}

func MaxMemorySlots() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.MaxMemorySlots()
}

func MaxFileSize() int64 {
	e, st := current()
	if st != types.StatusOK {
		return 0
	}
	return e.MaxFileSize()
}

func MaxTotalMemory() int64 {
	e, st := current()
	if st != types.StatusOK {
		return 0
	}
	return e.MaxTotalMemory()
}

func AvailableMemory() int64 {
	e, st := current()
	if st != types.StatusOK {
		return 0
	}
	return e.AvailableMemory()
}

// --- Slot play -------------------------------------------------------------

func PlaySlot(slot int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.Play(slot))
}

func StopSlot(slot int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.StopSlot(slot))
}

func StopAllSlots() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	e.StopAll()
	return types.StatusOK
}

// --- Defaults --------------------------------------------------------------

func SetDefaultVolume(slot int, v float64) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetDefaultVolume(slot, v))
}

func GetDefaultVolume(slot int) float64 {
	e, st := current()
	if st != types.StatusOK {
		return -1
	}
	v, err := e.GetDefaultVolume(slot)
	if err != nil {
		return -1
	}
	return v
}

func SetDefaultPitch(slot int, p float64) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetDefaultPitch(slot, p))
}

func GetDefaultPitch(slot int) float64 {
	e, st := current()
	if st != types.StatusOK {
		return -1
	}
	p, err := e.GetDefaultPitch(slot)
	if err != nil {
		return -1
	}
	return p
}

// --- Grid ------------------------------------------------------------------

func SetColumns(n int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetColumns(n))
}

func SetCell(step, column, slot int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetCell(step, column, slot))
}

func ClearCell(step, column int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.ClearCell(step, column))
}

func ClearAll() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	e.ClearAll()
	return types.StatusOK
}

// --- Overrides -------------------------------------------------------------

func SetCellVolume(step, column int, v float64) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetCellVolume(step, column, v))
}

func ResetCellVolume(step, column int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.ResetCellVolume(step, column))
}

func GetCellVolume(step, column int) float64 {
	e, st := current()
	if st != types.StatusOK {
		return -1
	}
	v, err := e.GetCellVolume(step, column)
	if err != nil {
		return -1
	}
	return v
}

func SetCellPitch(step, column int, p float64) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetCellPitch(step, column, p))
}

func ResetCellPitch(step, column int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.ResetCellPitch(step, column))
}

func GetCellPitch(step, column int) float64 {
	e, st := current()
	if st != types.StatusOK {
		return -1
	}
	p, err := e.GetCellPitch(step, column)
	if err != nil {
		return -1
	}
	return p
}

// --- Sections --------------------------------------------------------------

func InsertStep(section, atStep int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.InsertStep(section, atStep))
}

func DeleteStep(section, atStep int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.DeleteStep(section, atStep))
}

func SectionCount() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.SectionCount()
}

func SectionStart(i int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.SectionStart(i)
}

func SectionSteps(i int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.SectionSteps(i)
}

func SectionAtStep(step int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.SectionAtStep(step)
}

func SetSectionSteps(i, n int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetSectionSteps(i, n))
}

// --- Transport -------------------------------------------------------------

func StartPlayback(bpm, startStep int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.Start(bpm, startStep))
}

func StopPlayback() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	e.Stop()
	return types.StatusOK
}

func IsPlaying() bool {
	e, st := current()
	return st == types.StatusOK && e.IsPlaying()
}

func CurrentStep() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.CurrentStep()
}

func SetBPM(bpm int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetBPM(bpm))
}

func SetRegion(start, end int) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.SetRegion(start, end))
}

func SetMode(m types.PlayMode) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	e.SetMode(m)
	return types.StatusOK
}

// TransportSnapshot returns the stable snapshot handle, or nil before Init.
func TransportSnapshot() *transport.Snapshot {
	e, st := current()
	if st != types.StatusOK {
		return nil
	}
	return e.TransportSnapshot()
}

// --- Preview ---------------------------------------------------------------

func PreviewSample(path string, pitchRatio, volume float64) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.PreviewSample(path, pitchRatio, volume))
}

func PreviewCell(step, column int, pitchRatio, volume float64) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.PreviewCell(step, column, pitchRatio, volume))
}

func StopSamplePreview() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	e.StopSamplePreview()
	return types.StatusOK
}

func StopCellPreview() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	e.StopCellPreview()
	return types.StatusOK
}

// --- Recording -------------------------------------------------------------

func StartRecording(path string) int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return status(e.StartRecording(path))
}

// StopRecording finalizes the capture; on success the returned int64 is the
// captured duration in milliseconds.
func StopRecording() (int64, int) {
	e, st := current()
	if st != types.StatusOK {
		return 0, st
	}
	ms, err := e.StopRecording()
	return ms, status(err)
}

func IsRecording() bool {
	e, st := current()
	return st == types.StatusOK && e.IsRecording()
}

func RecordingDurationMs() int64 {
	e, st := current()
	if st != types.StatusOK {
		return 0
	}
	return e.RecordingDurationMs()
}

// --- Diagnostics -----------------------------------------------------------

func ActiveVoiceCount() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.ActiveVoiceCount()
}

func MaxVoiceCount() int {
	e, st := current()
	if st != types.StatusOK {
		return st
	}
	return e.MaxVoiceCount()
}
