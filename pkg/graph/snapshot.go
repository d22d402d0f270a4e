package graph

import (
	"errors"
	"fmt"

	"github.com/aretw0/patchbay/pkg/domain"
)

// Snapshot returns a serializable copy of the whole patch. Filters run in
// order on the copy before it is returned; pass domain.SanitizeProperties
// to strip session-unsafe state before persisting.
func (m *Manager) Snapshot(filters ...domain.SnapshotFilter) *domain.Snapshot {
	m.mu.RLock()
	s := m.snapshotLocked(m.root)
	s.Version = domain.SnapshotVersion
	s.Name = m.name
	m.mu.RUnlock()

	for _, f := range filters {
		f(s)
	}
	return s
}

func (m *Manager) snapshotLocked(g *graphState) *domain.Snapshot {
	s := &domain.Snapshot{
		Nodes: make([]domain.NodeSnapshot, 0, len(g.nodes)),
		Arcs:  g.sortedArcs(),
	}
	for _, id := range g.nodes {
		e := m.nodes[id]
		ns := domain.NodeSnapshot{
			ID:         id,
			Identifier: e.node.Identifier,
			Format:     e.node.Format,
			Ports:      e.node.Ports.Clone(),
			Properties: e.node.Properties.Clone(),
		}
		if e.graph != nil {
			ns.Graph = m.snapshotLocked(e.graph)
		}
		s.Nodes = append(s.Nodes, ns)
	}
	return s
}

// ErrInvalidSnapshot wraps structural problems found before anything is
// applied.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ApplySnapshot replaces the whole patch with snap and rebuilds the render
// sequence. Node ids are kept. Types that cannot be resolved come back as
// missing placeholders with their stored ports, so their arcs survive.
//
// A structurally invalid snapshot (duplicate or zero ids, unknown version)
// is rejected before anything changes. Arcs that fail validation are
// skipped and reported together in the returned error; the rest of the
// patch is applied.
func (m *Manager) ApplySnapshot(snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if snap.Version > domain.SnapshotVersion {
		return fmt.Errorf("%w: version %d is newer than supported %d", ErrInvalidSnapshot, snap.Version, domain.SnapshotVersion)
	}
	maxID, err := checkSnapshotIDs(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range append([]domain.NodeID(nil), m.root.nodes...) {
		m.removeLocked(m.nodes[id])
	}
	m.root = newGraphState(domain.RootID)
	if snap.Name != "" {
		m.name = snap.Name
	}
	if maxID >= m.nextID {
		m.nextID = maxID + 1
	}

	var errs []error
	missing := 0
	m.applyLocked(snap, m.root, &errs, &missing)
	if missing > 0 {
		m.logger.Warn("snapshot applied with missing types", "missing", missing)
	}
	m.dirty = true
	m.emit(domain.Event{Type: domain.EventTopologyChanged, Change: domain.ChangeSnapshotApplied, Graph: domain.RootID})

	if _, err := m.rebuildLocked(); err != nil {
		errs = append(errs, err)
	}
	m.logger.Info("snapshot applied", "nodes", len(m.nodes), "rejected", len(errs))
	return errors.Join(errs...)
}

func (m *Manager) applyLocked(snap *domain.Snapshot, g *graphState, errs *[]error, missing *int) {
	for _, ns := range snap.Nodes {
		desc := domain.NodeDescription{
			Identifier: ns.Identifier,
			Format:     ns.Format,
			Ports:      ns.Ports,
			Properties: ns.Properties,
		}
		e, ierr := m.createLocked(ns.ID, desc, g.owner, ns.Graph != nil)
		if ierr != nil {
			*missing++
			m.logger.Warn("node restored as placeholder", "node", ns.ID, "identifier", ns.Identifier, "err", ierr)
		}
		m.insertLocked(g, e)
		if ns.Graph != nil && e.graph != nil {
			m.applyLocked(ns.Graph, e.graph, errs, missing)
		}
	}
	for _, a := range snap.Arcs {
		if err := m.connectLocked(a); err != nil {
			*errs = append(*errs, err)
		}
	}
}

// checkSnapshotIDs verifies ids are non-zero and unique across all depths,
// and returns the largest.
func checkSnapshotIDs(snap *domain.Snapshot) (domain.NodeID, error) {
	seen := make(map[domain.NodeID]bool)
	var maxID domain.NodeID
	var err error
	snap.Walk(func(_ *domain.Snapshot, n *domain.NodeSnapshot) {
		switch {
		case err != nil:
		case n.ID == domain.RootID:
			err = fmt.Errorf("%w: node %q has the reserved id 0", ErrInvalidSnapshot, n.Identifier)
		case seen[n.ID]:
			err = fmt.Errorf("%w: node id %d used twice", ErrInvalidSnapshot, n.ID)
		default:
			seen[n.ID] = true
			maxID = max(maxID, n.ID)
		}
	})
	return maxID, err
}
