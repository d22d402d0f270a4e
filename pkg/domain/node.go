package domain

import (
	"maps"
	"strconv"
)

// NodeID identifies a node within a patch. Ids are allocated by the graph
// manager and never reused within one session.
type NodeID uint32

// RootID addresses the session root graph. No real node carries it.
const RootID NodeID = 0

func (id NodeID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Format tags where a node type comes from.
type Format string

const (
	FormatInternal Format = "internal"
	FormatPlugin   Format = "plugin"
	FormatGraph    Format = "graph"
)

// Position is the node's location in a graph editor.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Properties is the explicit set of well-known node properties.
// Free-form per-type data lives in Custom.
type Properties struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	UUID     string   `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Bypass   bool     `json:"bypass,omitempty" yaml:"bypass,omitempty"`
	Mute     bool     `json:"mute,omitempty" yaml:"mute,omitempty"`
	Position Position `json:"position" yaml:"position"`

	// Missing is set when the node's type could not be resolved. The node
	// keeps its ports so stored arcs survive.
	Missing bool `json:"missing,omitempty" yaml:"missing,omitempty"`
	// Placeholder is set on nodes created to stand in for another node.
	Placeholder bool `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`

	Custom map[string]any `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Clone returns a copy whose Custom map is independent of p.
// Nested values inside Custom are shared.
func (p Properties) Clone() Properties {
	out := p
	if p.Custom != nil {
		out.Custom = maps.Clone(p.Custom)
	}
	return out
}

// Node is the control-thread description of a processing unit.
type Node struct {
	ID         NodeID     `json:"id" yaml:"id"`
	Identifier string     `json:"identifier" yaml:"identifier"`
	Format     Format     `json:"format" yaml:"format"`
	Parent     NodeID     `json:"parent" yaml:"parent"`
	Ports      PortList   `json:"ports" yaml:"ports"`
	Properties Properties `json:"properties" yaml:"properties"`
	// Children lists the ids of nodes in this node's own graph, if any.
	Children []NodeID `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsGraph reports whether the node owns a nested graph.
func (n Node) IsGraph() bool { return n.Format == FormatGraph }

// DisplayName returns the node name, falling back to the identifier.
func (n Node) DisplayName() string {
	if n.Properties.Name != "" {
		return n.Properties.Name
	}
	return n.Identifier
}

// Port returns the port at index.
func (n Node) Port(index uint32) (Port, bool) { return n.Ports.Get(index) }

// NodeDescription is what a provider reports for a type identifier without
// starting real-time execution. It is also the request passed to AddNode.
type NodeDescription struct {
	Identifier string     `json:"identifier" yaml:"identifier"`
	Name       string     `json:"name" yaml:"name"`
	Format     Format     `json:"format" yaml:"format"`
	Category   string     `json:"category,omitempty" yaml:"category,omitempty"`
	Ports      PortList   `json:"ports,omitempty" yaml:"ports,omitempty"`
	Properties Properties `json:"properties" yaml:"properties"`
}
