package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/google/uuid"
)

// AddNode instantiates desc.Identifier and inserts the node into parent's
// graph under a fresh id.
//
// If the type cannot be resolved, or its unit rejects the custom
// properties, a silent placeholder exposing desc.Ports is inserted instead
// and returned together with an *domain.InstantiationError, so the slot and
// any arcs stored against it survive.
func (m *Manager) AddNode(desc domain.NodeDescription, parent domain.NodeID) (domain.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, err := m.graphLocked(parent)
	if err != nil {
		return domain.Node{}, err
	}
	id := m.nextID
	m.nextID++

	e, ierr := m.createLocked(id, desc, parent, false)
	m.insertLocked(g, e)
	n := m.nodeCopyLocked(e)
	if ierr != nil {
		m.logger.Warn("node inserted as placeholder", "node", id, "identifier", desc.Identifier, "err", ierr)
		return n, &domain.InstantiationError{Node: n, Err: ierr}
	}
	m.logger.Debug("node added", "node", id, "identifier", desc.Identifier, "parent", parent)
	return n, nil
}

// createLocked builds the entry for a node. It never fails: on error the
// entry holds a placeholder unit and the error is returned alongside.
func (m *Manager) createLocked(id domain.NodeID, desc domain.NodeDescription, parent domain.NodeID, nested bool) (*nodeEntry, error) {
	props := desc.Properties.Clone()
	props.Missing = false
	props.Placeholder = false
	if props.UUID == "" {
		props.UUID = uuid.NewString()
	}
	if props.Name == "" {
		props.Name = desc.Name
	}

	format := desc.Format
	unit, err := m.resolver.Instantiate(desc.Identifier)
	if err == nil {
		if c, ok := unit.(ports.Configurable); ok {
			if cerr := c.Configure(props); cerr != nil {
				err = fmt.Errorf("configure: %w", cerr)
				props.Placeholder = true
				unit = nil
			}
		}
	} else {
		props.Missing = true
	}

	var layout domain.PortList
	if unit == nil {
		unit = nodes.NewMissing(desc.Ports)
		layout = desc.Ports.Clone()
	} else {
		layout = unit.Ports()
		if format == "" {
			if d, derr := m.resolver.Describe(desc.Identifier); derr == nil {
				format = d.Format
			}
		}
	}
	if _, ok := unit.(ports.GraphHost); ok {
		format = domain.FormatGraph
	}
	if format == "" {
		format = domain.FormatInternal
	}

	e := &nodeEntry{
		node: domain.Node{
			ID:         id,
			Identifier: desc.Identifier,
			Format:     format,
			Parent:     parent,
			Ports:      layout,
			Properties: props,
		},
		unit: unit,
		mute: &atomic.Bool{},
	}
	unit.Suspend(props.Bypass)
	e.mute.Store(props.Mute)
	if format == domain.FormatGraph || nested {
		e.graph = newGraphState(id)
	}
	return e, err
}

func (m *Manager) insertLocked(g *graphState, e *nodeEntry) {
	id := e.node.ID
	m.nodes[id] = e
	i, _ := slices.BinarySearch(g.nodes, id)
	g.nodes = slices.Insert(g.nodes, i, id)
	m.dirty = true
	m.emit(domain.Event{Type: domain.EventTopologyChanged, Change: domain.ChangeNodeAdded, Graph: g.owner, Node: id})
	if m.hooks.OnNodeAdded != nil {
		m.hooks.OnNodeAdded(m.nodeCopyLocked(e))
	}
}

// RemoveNode removes a node, every arc touching it and, for graph nodes,
// everything inside. Units are released once the audio thread can no
// longer reach them.
func (m *Manager) RemoveNode(id domain.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entryLocked(id)
	if err != nil {
		return err
	}
	m.removeLocked(e)
	m.logger.Debug("node removed", "node", id)
	return nil
}

func (m *Manager) removeLocked(e *nodeEntry) {
	id := e.node.ID
	if e.graph != nil {
		for _, child := range slices.Clone(e.graph.nodes) {
			m.removeLocked(m.nodes[child])
		}
	}
	g := m.parentGraphLocked(e)
	for a := range g.arcs {
		if a.Touches(id) {
			delete(g.arcs, a)
			m.emit(domain.Event{Type: domain.EventTopologyChanged, Change: domain.ChangeArcRemoved, Graph: g.owner, Arc: &a})
		}
	}
	if i, ok := slices.BinarySearch(g.nodes, id); ok {
		g.nodes = slices.Delete(g.nodes, i, i+1)
	}
	delete(m.nodes, id)
	m.retired = append(m.retired, e.unit)
	m.dirty = true
	m.emit(domain.Event{Type: domain.EventTopologyChanged, Change: domain.ChangeNodeRemoved, Graph: g.owner, Node: id})
	if m.hooks.OnNodeRemoved != nil {
		m.hooks.OnNodeRemoved(id)
	}
}

// Connect validates and inserts an arc. A rejected arc returns a
// *domain.ValidationError and leaves the graph untouched.
//
// Checks run in this order: both ports exist, not a self-loop, same parent
// graph, no signal cycle, direction and type, not a duplicate, and control
// input free. The cycle check comes before the port rules so that reversing
// an existing signal path always reports WouldCycle.
func (m *Manager) Connect(srcNode domain.NodeID, srcPort uint32, dstNode domain.NodeID, dstPort uint32) (domain.Arc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := domain.NewArc(srcNode, srcPort, dstNode, dstPort)
	if err := m.connectLocked(a); err != nil {
		return domain.Arc{}, err
	}
	return a, nil
}

func (m *Manager) connectLocked(a domain.Arc) error {
	src, err := m.entryLocked(a.SrcNode)
	if err != nil {
		return err
	}
	dst, err := m.entryLocked(a.DstNode)
	if err != nil {
		return err
	}
	sp, ok := src.node.Port(a.SrcPort)
	if !ok {
		return fmt.Errorf("node %d port %d: %w", a.SrcNode, a.SrcPort, domain.ErrPortNotFound)
	}
	dp, ok := dst.node.Port(a.DstPort)
	if !ok {
		return fmt.Errorf("node %d port %d: %w", a.DstNode, a.DstPort, domain.ErrPortNotFound)
	}
	if a.SrcNode == a.DstNode {
		return domain.Rejected(domain.ReasonSelfLoop, a)
	}
	if src.node.Parent != dst.node.Parent {
		return domain.Rejected(domain.ReasonCrossGraph, a)
	}
	g := m.parentGraphLocked(src)
	if sp.Type.IsSignal() && m.reachableLocked(g, a.DstNode, a.SrcNode) {
		return domain.Rejected(domain.ReasonWouldCycle, a)
	}
	if reason := domain.CheckPorts(sp, dp); reason != domain.ReasonNone {
		return domain.Rejected(reason, a)
	}
	if _, dup := g.arcs[a]; dup {
		return domain.Rejected(domain.ReasonDuplicate, a)
	}
	if dp.Type == domain.PortControl {
		for other := range g.arcs {
			if other.DstNode == a.DstNode && other.DstPort == a.DstPort {
				return domain.Rejected(domain.ReasonControlInputOccupied, a)
			}
		}
	}

	g.arcs[a] = struct{}{}
	m.dirty = true
	m.emit(domain.Event{Type: domain.EventTopologyChanged, Change: domain.ChangeArcAdded, Graph: g.owner, Arc: &a})
	return nil
}

// isSignalLocked reports whether arc a constrains the render order.
func (m *Manager) isSignalLocked(a domain.Arc) bool {
	e, ok := m.nodes[a.SrcNode]
	if !ok {
		return false
	}
	p, ok := e.node.Port(a.SrcPort)
	return ok && p.Type.IsSignal()
}

// reachableLocked walks signal arcs depth first from `from` and reports
// whether `to` can be reached.
func (m *Manager) reachableLocked(g *graphState, from, to domain.NodeID) bool {
	next := make(map[domain.NodeID][]domain.NodeID)
	for a := range g.arcs {
		if m.isSignalLocked(a) {
			next[a.SrcNode] = append(next[a.SrcNode], a.DstNode)
		}
	}
	seen := map[domain.NodeID]bool{from: true}
	stack := []domain.NodeID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, n := range next[cur] {
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return false
}

// Disconnect removes an existing arc.
func (m *Manager) Disconnect(a domain.Arc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.entryLocked(a.SrcNode)
	if err != nil {
		return fmt.Errorf("arc %s: %w", a, domain.ErrArcNotFound)
	}
	g := m.parentGraphLocked(src)
	if _, ok := g.arcs[a]; !ok {
		return fmt.Errorf("arc %s: %w", a, domain.ErrArcNotFound)
	}
	delete(g.arcs, a)
	m.dirty = true
	m.emit(domain.Event{Type: domain.EventTopologyChanged, Change: domain.ChangeArcRemoved, Graph: g.owner, Arc: &a})
	return nil
}

// ConnectStereo connects the first two audio outputs of src to the first
// two audio inputs of dst. Either both arcs are added or neither is.
func (m *Manager) ConnectStereo(src, dst domain.NodeID) ([]domain.Arc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	se, err := m.entryLocked(src)
	if err != nil {
		return nil, err
	}
	de, err := m.entryLocked(dst)
	if err != nil {
		return nil, err
	}
	outs := audioPorts(se.node.Ports, domain.FlowOutput)
	ins := audioPorts(de.node.Ports, domain.FlowInput)
	if len(outs) < 2 || len(ins) < 2 {
		return nil, fmt.Errorf("connect stereo %d -> %d: both nodes need two audio channels: %w", src, dst, domain.ErrPortNotFound)
	}
	var added []domain.Arc
	for ch := range 2 {
		a := domain.NewArc(src, outs[ch], dst, ins[ch])
		if err := m.connectLocked(a); err != nil {
			g := m.parentGraphLocked(se)
			for _, prev := range added {
				delete(g.arcs, prev)
				m.emit(domain.Event{Type: domain.EventTopologyChanged, Change: domain.ChangeArcRemoved, Graph: g.owner, Arc: &prev})
			}
			return nil, err
		}
		added = append(added, a)
	}
	return added, nil
}

func audioPorts(l domain.PortList, f domain.Flow) []uint32 {
	var idx []uint32
	for _, p := range l {
		if p.Type == domain.PortAudio && p.Flow == f {
			idx = append(idx, p.Index)
		}
	}
	return idx
}

// SetBypass toggles a node's bypass. The unit reads it lock-free; no
// rebuild is needed.
func (m *Manager) SetBypass(id domain.NodeID, bypass bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entryLocked(id)
	if err != nil {
		return err
	}
	e.node.Properties.Bypass = bypass
	e.unit.Suspend(bypass)
	m.propertyChanged(e, "bypass", bypass)
	return nil
}

// SetMute silences a node's outputs without touching the topology.
func (m *Manager) SetMute(id domain.NodeID, mute bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entryLocked(id)
	if err != nil {
		return err
	}
	e.node.Properties.Mute = mute
	e.mute.Store(mute)
	m.propertyChanged(e, "mute", mute)
	return nil
}

// Well-known property keys accepted by SetProperty. Anything else is stored
// in the custom map; a nil value deletes a custom key.
const (
	PropName   = "name"
	PropBypass = "bypass"
	PropMute   = "mute"
	PropX      = "x"
	PropY      = "y"
)

// ErrInvalidProperty is returned when a well-known property gets a value of the wrong type.
var ErrInvalidProperty = errors.New("invalid property value")

// SetProperty updates one property by key.
func (m *Manager) SetProperty(id domain.NodeID, key string, value any) error {
	switch key {
	case PropBypass, PropMute:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%s: %w: want bool, got %T", key, ErrInvalidProperty, value)
		}
		if key == PropBypass {
			return m.SetBypass(id, b)
		}
		return m.SetMute(id, b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entryLocked(id)
	if err != nil {
		return err
	}
	props := &e.node.Properties
	switch key {
	case "":
		return fmt.Errorf("empty property key")
	case PropName:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: %w: want string, got %T", key, ErrInvalidProperty, value)
		}
		props.Name = s
	case PropX, PropY:
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%s: %w: want number, got %T", key, ErrInvalidProperty, value)
		}
		if key == PropX {
			props.Position.X = f
		} else {
			props.Position.Y = f
		}
	default:
		if value == nil {
			delete(props.Custom, key)
			if len(props.Custom) == 0 {
				props.Custom = nil
			}
			break
		}
		if props.Custom == nil {
			props.Custom = make(map[string]any)
		}
		props.Custom[key] = value
	}
	m.propertyChanged(e, key, value)
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func (m *Manager) propertyChanged(e *nodeEntry, key string, value any) {
	m.emit(domain.Event{
		Type:     domain.EventNodePropertyChanged,
		Graph:    e.node.Parent,
		Node:     e.node.ID,
		Property: key,
		Value:    value,
	})
}
