package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/patchbay/pkg/domain"
)

// Builder manages the graph construction. Keys are scoped to one builder;
// ids are unique across nested builders.
type Builder struct {
	name   string
	nodes  map[string]*NodeBuilder
	order  []string
	arcs   []pendingArc
	nextID *domain.NodeID
	errs   []error
}

type pendingArc struct {
	src, dst         string
	srcPort, dstPort uint32
}

// New creates a new patch builder.
func New(name string) *Builder {
	next := domain.NodeID(1)
	return &Builder{name: name, nodes: make(map[string]*NodeBuilder), nextID: &next}
}

func (b *Builder) child() *Builder {
	return &Builder{nodes: make(map[string]*NodeBuilder), nextID: b.nextID}
}

// Add creates a node of the given type under key.
// If the key already exists, it returns the existing builder.
func (b *Builder) Add(key, identifier string) *NodeBuilder {
	if nb, ok := b.nodes[key]; ok {
		return nb
	}
	nb := &NodeBuilder{
		key: key,
		node: domain.NodeSnapshot{
			ID:         *b.nextID,
			Identifier: identifier,
			Format:     domain.FormatInternal,
		},
		builder: b,
	}
	*b.nextID++
	b.nodes[key] = nb
	b.order = append(b.order, key)
	return nb
}

// Connect adds an arc between two keyed nodes. Keys are resolved by Build,
// so either node may be added later.
func (b *Builder) Connect(src string, srcPort uint32, dst string, dstPort uint32) *Builder {
	b.arcs = append(b.arcs, pendingArc{src: src, srcPort: srcPort, dst: dst, dstPort: dstPort})
	return b
}

// ID returns the id assigned to key.
func (b *Builder) ID(key string) (domain.NodeID, bool) {
	nb, ok := b.nodes[key]
	if !ok {
		return 0, false
	}
	return nb.node.ID, true
}

// Build compiles the builder into a snapshot. Arcs naming unknown keys are
// reported together; the topology itself is checked when the snapshot is
// applied.
func (b *Builder) Build() (*domain.Snapshot, error) {
	snap, errs := b.build()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to build patch %q: %w", b.name, errors.Join(errs...))
	}
	snap.Version = domain.SnapshotVersion
	snap.Name = b.name
	return snap, nil
}

func (b *Builder) build() (*domain.Snapshot, []error) {
	errs := append([]error(nil), b.errs...)
	snap := &domain.Snapshot{Nodes: make([]domain.NodeSnapshot, 0, len(b.order))}
	for _, key := range b.order {
		nb := b.nodes[key]
		ns := nb.node
		ns.Properties = ns.Properties.Clone()
		if nb.graph != nil {
			child, childErrs := nb.graph.build()
			for _, err := range childErrs {
				errs = append(errs, fmt.Errorf("in %q: %w", key, err))
			}
			ns.Graph = child
		}
		snap.Nodes = append(snap.Nodes, ns)
	}
	snap.Arcs = make([]domain.Arc, 0, len(b.arcs))
	for _, a := range b.arcs {
		src, srcOK := b.nodes[a.src]
		dst, dstOK := b.nodes[a.dst]
		switch {
		case !srcOK:
			errs = append(errs, fmt.Errorf("arc from unknown node %q", a.src))
		case !dstOK:
			errs = append(errs, fmt.Errorf("arc to unknown node %q", a.dst))
		default:
			snap.Arcs = append(snap.Arcs, domain.NewArc(src.node.ID, a.srcPort, dst.node.ID, a.dstPort))
		}
	}
	return snap, errs
}
