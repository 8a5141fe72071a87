package voice

import (
	"github.com/gridbeat/gridbeat/internal/graph"
	"github.com/gridbeat/gridbeat/internal/types"
)

// TickSmoothing advances every converging envelope by one callback period
// and pushes the result to the node gains. Exponential rise/fall with
// asymmetric coefficients; once both target and current sit under the
// threshold the node is stopped so it stops drawing input. Audio thread
// only.
func (p *Pool) TickSmoothing() {
	for i := range p.voices {
		v := &p.voices[i]
		if !v.active.Load() || !v.smoothingActive.Load() {
			continue
		}
		target := v.TargetVolume()
		current := v.CurrentVolume()
		diff := target - current
		if abs32(diff) < types.SmoothThreshold {
			current = target
			v.smoothingActive.Store(false)
		} else {
			coeff := v.riseCoeff
			if diff < 0 {
				coeff = v.fallCoeff
			}
			current += coeff * diff
		}
		v.setCurrentVolume(current)
		if n := v.Node; n != nil {
			n.SetVolume(current)
			if target <= types.SmoothThreshold && current <= types.SmoothThreshold {
				n.SetState(graph.Stopped)
			}
		}
	}
}
