package graph

import (
	"fmt"

	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// Commit rebuilds and publishes the render sequence if the topology or the
// engine format changed since the last successful commit.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty && m.last != nil && !m.formatChangedLocked() {
		return nil
	}
	_, err := m.rebuildLocked()
	return err
}

// RebuildRenderSequence schedules the whole patch, builds a fresh render
// sequence and publishes it to the engine, if one is set. It rebuilds even
// when nothing changed; on an unchanged topology the unit order is the same
// every time.
func (m *Manager) RebuildRenderSequence() (*runtime.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuildLocked()
}

// formatChangedLocked reports whether the engine runs a different format
// than the one the last sequence was prepared for.
func (m *Manager) formatChangedLocked() bool {
	if m.engine == nil {
		return false
	}
	sr, bs := m.engine.Format()
	return sr != m.lastRate || bs != m.lastBlock
}

func (m *Manager) rebuildLocked() (*runtime.Sequence, error) {
	var sampleRate float64
	blockSize := m.blockSize
	if m.engine != nil {
		sampleRate, blockSize = m.engine.Format()
	}
	plan := m.planLocked(m.root)
	seq, err := runtime.Build(plan, blockSize,
		runtime.WithMidiCapacity(m.midiCapacity),
		runtime.WithRetired(m.retired))
	if err != nil {
		return nil, fmt.Errorf("build render sequence: %w", err)
	}
	if m.engine != nil {
		if err := m.engine.Publish(seq); err != nil {
			return nil, fmt.Errorf("publish render sequence: %w", err)
		}
	} else {
		for _, u := range m.retired {
			u.ReleaseResources()
		}
	}
	m.retired = nil
	m.dirty = false
	m.last = seq
	m.lastRate, m.lastBlock = sampleRate, blockSize
	m.logger.Debug("render sequence rebuilt", "sequence", seq.ID(), "nodes", len(m.nodes), "root_order", seq.Order())
	m.emit(domain.Event{Type: domain.EventSequencePublished, Graph: domain.RootID})
	return seq, nil
}

func (m *Manager) edgesLocked(g *graphState) []edge {
	edges := make([]edge, 0, len(g.arcs))
	for a := range g.arcs {
		edges = append(edges, edge{src: a.SrcNode, dst: a.DstNode, hard: m.isSignalLocked(a)})
	}
	return edges
}

func (m *Manager) planLocked(g *graphState) *runtime.Plan {
	plan := &runtime.Plan{Graph: g.owner, Arcs: g.sortedArcs()}
	if g == m.root {
		plan.Device = &m.device
	}
	for _, id := range schedule(g.nodes, m.edgesLocked(g)) {
		e := m.nodes[id]
		pn := runtime.PlanNode{ID: id, Unit: e.unit, Ports: e.node.Ports, Mute: e.mute}
		if e.graph != nil {
			if _, ok := e.unit.(ports.GraphHost); ok {
				pn.Child = m.planLocked(e.graph)
			}
		}
		plan.Nodes = append(plan.Nodes, pn)
	}
	return plan
}

// Order returns the render order of parent's graph as it would be built now.
func (m *Manager) Order(parent domain.NodeID) ([]domain.NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, err := m.graphLocked(parent)
	if err != nil {
		return nil, err
	}
	return schedule(g.nodes, m.edgesLocked(g)), nil
}
