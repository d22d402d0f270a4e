package domain

import "strings"

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is the serializable form of a graph. Nested graphs are stored
// inline on their owning node.
type Snapshot struct {
	Version int            `json:"version" yaml:"version"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes   []NodeSnapshot `json:"nodes" yaml:"nodes"`
	Arcs    []Arc          `json:"arcs" yaml:"arcs"`
}

// NodeSnapshot captures one node and, for graph nodes, its children.
type NodeSnapshot struct {
	ID         NodeID     `json:"id" yaml:"id"`
	Identifier string     `json:"identifier" yaml:"identifier"`
	Format     Format     `json:"format" yaml:"format"`
	Ports      PortList   `json:"ports" yaml:"ports"`
	Properties Properties `json:"properties" yaml:"properties"`
	Graph      *Snapshot  `json:"graph,omitempty" yaml:"graph,omitempty"`
}

// Clone returns a copy that shares no slices or maps with s, except
// nested values inside Custom property maps.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{Version: s.Version, Name: s.Name}
	out.Arcs = append([]Arc(nil), s.Arcs...)
	if s.Nodes != nil {
		out.Nodes = make([]NodeSnapshot, len(s.Nodes))
	}
	for i, n := range s.Nodes {
		out.Nodes[i] = NodeSnapshot{
			ID:         n.ID,
			Identifier: n.Identifier,
			Format:     n.Format,
			Ports:      n.Ports.Clone(),
			Properties: n.Properties.Clone(),
			Graph:      n.Graph.Clone(),
		}
	}
	return out
}

// Walk visits every node of the snapshot, depth first.
func (s *Snapshot) Walk(fn func(parent *Snapshot, n *NodeSnapshot)) {
	if s == nil {
		return
	}
	for i := range s.Nodes {
		fn(s, &s.Nodes[i])
		s.Nodes[i].Graph.Walk(fn)
	}
}

// CountNodes returns the number of nodes including nested ones.
func (s *Snapshot) CountNodes() int {
	n := 0
	s.Walk(func(*Snapshot, *NodeSnapshot) { n++ })
	return n
}

// SnapshotFilter transforms a snapshot before it leaves the graph manager.
// Filters receive a private copy and may modify it in place.
type SnapshotFilter func(*Snapshot)

// TransientPrefix marks custom properties that only make sense for the
// running process (live handles, caches) and must not be persisted.
const TransientPrefix = "_"

// SanitizeProperties removes session-unsafe state: the missing and
// placeholder markers and any transient custom key, at every depth.
func SanitizeProperties(s *Snapshot) {
	s.Walk(func(_ *Snapshot, n *NodeSnapshot) {
		n.Properties.Missing = false
		n.Properties.Placeholder = false
		for k := range n.Properties.Custom {
			if strings.HasPrefix(k, TransientPrefix) {
				delete(n.Properties.Custom, k)
			}
		}
		if len(n.Properties.Custom) == 0 {
			n.Properties.Custom = nil
		}
	})
}
