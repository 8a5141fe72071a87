package transport

import "sync/atomic"

// Snapshot is the externally readable transport state. Publication follows
// the even/odd version protocol: a writer bumps the version to odd, writes
// the fields, bumps it to even. A reader snapshots the version, reads the
// fields, re-reads the version, and retries if it changed or is odd. No
// mutex on either side.
type Snapshot struct {
	version     atomic.Uint32
	playing     atomic.Int32
	currentStep atomic.Int32
	bpm         atomic.Int32
	regionStart atomic.Int32
	regionEnd   atomic.Int32
	mode        atomic.Int32
}

// SnapshotData is one consistent reading of the snapshot.
type SnapshotData struct {
	Version     uint32
	Playing     bool
	CurrentStep int
	BPM         int
	RegionStart int
	RegionEnd   int
	Mode        int
}

// tryBegin attempts to open a write transaction. Fails when another write is
// in flight, which the audio thread treats as "skip this publish".
func (s *Snapshot) tryBegin() (uint32, bool) {
	v := s.version.Load()
	if v%2 != 0 {
		return 0, false
	}
	return v, s.version.CompareAndSwap(v, v+1)
}

func (s *Snapshot) write(playing bool, step, bpm, regionStart, regionEnd, mode int) {
	p := int32(0)
	if playing {
		p = 1
	}
	s.playing.Store(p)
	s.currentStep.Store(int32(step))
	s.bpm.Store(int32(bpm))
	s.regionStart.Store(int32(regionStart))
	s.regionEnd.Store(int32(regionEnd))
	s.mode.Store(int32(mode))
}

// TryPublish writes a new snapshot unless a concurrent write is in flight.
// Never blocks; used from the audio thread.
func (s *Snapshot) TryPublish(playing bool, step, bpm, regionStart, regionEnd, mode int) bool {
	v, ok := s.tryBegin()
	if !ok {
		return false
	}
	s.write(playing, step, bpm, regionStart, regionEnd, mode)
	s.version.Store(v + 2)
	return true
}

// Publish writes a new snapshot, spinning briefly if the audio thread is
// mid-publish. Host thread only.
func (s *Snapshot) Publish(playing bool, step, bpm, regionStart, regionEnd, mode int) {
	for {
		if s.TryPublish(playing, step, bpm, regionStart, regionEnd, mode) {
			return
		}
	}
}

// Read returns one consistent snapshot, retrying while a write is in flight.
func (s *Snapshot) Read() SnapshotData {
	for {
		v1 := s.version.Load()
		if v1%2 != 0 {
			continue
		}
		d := SnapshotData{
			Version:     v1,
			Playing:     s.playing.Load() == 1,
			CurrentStep: int(s.currentStep.Load()),
			BPM:         int(s.bpm.Load()),
			RegionStart: int(s.regionStart.Load()),
			RegionEnd:   int(s.regionEnd.Load()),
			Mode:        int(s.mode.Load()),
		}
		if s.version.Load() == v1 {
			return d
		}
	}
}

// Version exposes the raw version counter for protocol tests.
func (s *Snapshot) Version() uint32 { return s.version.Load() }
