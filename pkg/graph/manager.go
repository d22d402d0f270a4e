package graph

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// Resolver turns type identifiers into units. *registry.Registry satisfies it.
type Resolver interface {
	Describe(identifier string) (domain.NodeDescription, error)
	Instantiate(identifier string) (ports.Unit, error)
}

// Publisher receives the render sequences the manager builds.
// *runtime.Engine satisfies it.
type Publisher interface {
	Publish(seq *runtime.Sequence) error
	Format() (sampleRate float64, blockSize int)
}

type nodeEntry struct {
	node  domain.Node
	unit  ports.Unit
	mute  *atomic.Bool
	graph *graphState
}

// graphState is the set of sibling nodes owned by one parent and the arcs
// among them.
type graphState struct {
	owner domain.NodeID
	nodes []domain.NodeID
	arcs  map[domain.Arc]struct{}
}

func newGraphState(owner domain.NodeID) *graphState {
	return &graphState{owner: owner, arcs: make(map[domain.Arc]struct{})}
}

func (g *graphState) sortedArcs() []domain.Arc {
	arcs := make([]domain.Arc, 0, len(g.arcs))
	for a := range g.arcs {
		arcs = append(arcs, a)
	}
	slices.SortFunc(arcs, func(a, b domain.Arc) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return arcs
}

// Manager is the sole mutator of a patch. All methods are safe for
// concurrent use by control goroutines; none may be called from the audio
// thread.
type Manager struct {
	mu sync.RWMutex

	name     string
	resolver Resolver
	engine   Publisher
	root     *graphState
	nodes    map[domain.NodeID]*nodeEntry
	nextID   domain.NodeID
	dirty    bool
	retired  []ports.Unit
	device   ports.Device
	last     *runtime.Sequence

	lastRate  float64
	lastBlock int

	blockSize    int
	midiCapacity int

	events *EventBus
	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

var _ ports.Editor = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom structured logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEngine sets where committed render sequences are published. Without
// one, Commit still schedules and builds but nothing runs.
func WithEngine(p Publisher) Option {
	return func(m *Manager) {
		m.engine = p
	}
}

// WithName names the patch. The name is stored in snapshots.
func WithName(name string) Option {
	return func(m *Manager) {
		m.name = name
	}
}

// WithHooks registers lifecycle callbacks. They run on the control thread
// while the manager's lock is held and must not call back into it.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = h
	}
}

// WithEventBus shares an existing bus instead of creating one.
func WithEventBus(b *EventBus) Option {
	return func(m *Manager) {
		m.events = b
	}
}

// WithBlockSize sets the block size used when no engine is attached.
func WithBlockSize(n int) Option {
	return func(m *Manager) {
		m.blockSize = n
	}
}

// WithMidiCapacity sets the per-port MIDI buffer size of built sequences.
func WithMidiCapacity(n int) Option {
	return func(m *Manager) {
		m.midiCapacity = n
	}
}

// New creates an empty patch whose units come from resolver.
func New(resolver Resolver, opts ...Option) *Manager {
	m := &Manager{
		resolver:     resolver,
		root:         newGraphState(domain.RootID),
		nodes:        make(map[domain.NodeID]*nodeEntry),
		nextID:       1,
		blockSize:    256,
		midiCapacity: domain.DefaultMidiCapacity,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if m.name != "" {
		m.logger = m.logger.With("patch", m.name)
	}
	if m.events == nil {
		m.events = NewEventBus()
	}
	return m
}

// Name returns the patch name.
func (m *Manager) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Events returns the bus change notifications are published on.
func (m *Manager) Events() *EventBus { return m.events }

// Dirty reports whether the topology changed since the last Commit.
func (m *Manager) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// graphLocked resolves a parent id to its graph.
func (m *Manager) graphLocked(parent domain.NodeID) (*graphState, error) {
	if parent == domain.RootID {
		return m.root, nil
	}
	e, ok := m.nodes[parent]
	if !ok {
		return nil, fmt.Errorf("parent %d: %w", parent, domain.ErrNodeNotFound)
	}
	if e.graph == nil {
		return nil, fmt.Errorf("parent %d: %w", parent, domain.ErrNotAGraph)
	}
	return e.graph, nil
}

func (m *Manager) entryLocked(id domain.NodeID) (*nodeEntry, error) {
	e, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, domain.ErrNodeNotFound)
	}
	return e, nil
}

func (m *Manager) parentGraphLocked(e *nodeEntry) *graphState {
	if e.node.Parent == domain.RootID {
		return m.root
	}
	return m.nodes[e.node.Parent].graph
}

func (m *Manager) nodeCopyLocked(e *nodeEntry) domain.Node {
	n := e.node
	n.Ports = n.Ports.Clone()
	n.Properties = n.Properties.Clone()
	if e.graph != nil {
		n.Children = slices.Clone(e.graph.nodes)
	}
	return n
}

// Nodes lists the nodes of parent's graph in ascending id order.
func (m *Manager) Nodes(parent domain.NodeID) ([]domain.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, err := m.graphLocked(parent)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Node, 0, len(g.nodes))
	for _, id := range g.nodes {
		out = append(out, m.nodeCopyLocked(m.nodes[id]))
	}
	return out, nil
}

// Node returns a copy of one node.
func (m *Manager) Node(id domain.NodeID) (domain.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.entryLocked(id)
	if err != nil {
		return domain.Node{}, err
	}
	return m.nodeCopyLocked(e), nil
}

// Arcs lists the arcs of parent's graph ordered by four-tuple.
func (m *Manager) Arcs(parent domain.NodeID) ([]domain.Arc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, err := m.graphLocked(parent)
	if err != nil {
		return nil, err
	}
	return g.sortedArcs(), nil
}

// Unit returns the processing unit backing a node, for callers that need
// type-specific access (a monitor's ring, a router's gains).
func (m *Manager) Unit(id domain.NodeID) (ports.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.entryLocked(id)
	if err != nil {
		return nil, err
	}
	return e.unit, nil
}

// Len returns the number of nodes in the patch, nested ones included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

func (m *Manager) emit(ev domain.Event) {
	ev.Timestamp = time.Now()
	m.events.Publish(ev)
}
