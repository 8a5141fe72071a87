// Package graph mixes the active voice nodes into a single stereo endpoint.
// Attach and detach happen on the host thread and publish a new node list
// atomically, so a node either participates in a whole callback read or not
// at all. Read never allocates and never takes a lock.
package graph

import (
	"math"
	"sync"
	"sync/atomic"
)

// Reader is the frame source a node pulls from.
type Reader interface {
	Read(out []float32) (int, error)
}

// Node state values.
const (
	Stopped int32 = iota
	Started
)

// Node is one stereo input bus of the mixer.
type Node struct {
	source Reader
	gain   atomic.Uint32 // float32 bits
	state  atomic.Int32
	atEnd  atomic.Bool
}

// SetVolume sets the node's bus gain. Callable from any thread.
func (n *Node) SetVolume(v float32) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	n.gain.Store(math.Float32bits(v))
}

// Volume returns the node's current bus gain.
func (n *Node) Volume() float32 { return math.Float32frombits(n.gain.Load()) }

// SetState starts or stops the node. A stopped node stops drawing from its
// source and contributes silence.
func (n *Node) SetState(s int32) { n.state.Store(s) }

// State returns the node's run state.
func (n *Node) State() int32 { return n.state.Load() }

// AtEnd reports whether the node's source has been fully drained.
func (n *Node) AtEnd() bool { return n.atEnd.Load() }

// ClearAtEnd re-arms a node whose source was rewound.
func (n *Node) ClearAtEnd() { n.atEnd.Store(false) }

// Graph is the mixer. The node list is copy-on-write: mutations build a new
// slice under the host mutex and publish it with an atomic pointer swap.
type Graph struct {
	mu    sync.Mutex
	nodes atomic.Pointer[[]*Node]

	scratch []float32 // audio-thread only
}

// New creates a graph able to serve reads up to maxFrames per callback.
func New(maxFrames int) *Graph {
	g := &Graph{scratch: make([]float32, maxFrames*2)}
	empty := make([]*Node, 0)
	g.nodes.Store(&empty)
	return g
}

// Attach adds a node for source, initially stopped with zero gain.
func (g *Graph) Attach(source Reader) *Node {
	n := &Node{source: source}
	n.SetVolume(0)
	g.mu.Lock()
	old := *g.nodes.Load()
	next := make([]*Node, len(old)+1)
	copy(next, old)
	next[len(old)] = n
	g.nodes.Store(&next)
	g.mu.Unlock()
	return n
}

// Detach removes a node. After Detach returns, the node is out of the
// published list; it may still be mixed by one in-flight read, so the caller
// must not destroy the node's source until the next callback boundary.
func (g *Graph) Detach(n *Node) {
	g.mu.Lock()
	old := *g.nodes.Load()
	next := make([]*Node, 0, len(old))
	for _, x := range old {
		if x != n {
			next = append(next, x)
		}
	}
	g.nodes.Store(&next)
	g.mu.Unlock()
}

// Count returns the number of attached nodes.
func (g *Graph) Count() int { return len(*g.nodes.Load()) }

// Read mixes all started nodes into out, processing them in attachment
// order. Sources that hit their end contribute silence for the remaining
// frames. Always writes the first frames*2 samples of out.
func (g *Graph) Read(out []float32, frames int) {
	for i := 0; i < frames*2; i++ {
		out[i] = 0
	}
	nodes := *g.nodes.Load()
	for _, n := range nodes {
		if n.state.Load() != Started {
			continue
		}
		gain := math.Float32frombits(n.gain.Load())
		buf := g.scratch[:frames*2]
		got, err := n.source.Read(buf)
		if got > 0 {
			for i := 0; i < got*2; i++ {
				out[i] += buf[i] * gain
			}
		}
		if err != nil || got < frames {
			n.atEnd.Store(true)
		}
	}
}
