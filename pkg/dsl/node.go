package dsl

import (
	"fmt"

	"github.com/aretw0/patchbay/pkg/domain"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	key     string
	node    domain.NodeSnapshot
	graph   *Builder
	builder *Builder
}

// Name sets the display name.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.node.Properties.Name = name
	return n
}

// Format overrides the plugin format, which defaults to internal.
func (n *NodeBuilder) Format(f domain.Format) *NodeBuilder {
	n.node.Format = f
	return n
}

// Bypass marks the node bypassed.
func (n *NodeBuilder) Bypass() *NodeBuilder {
	n.node.Properties.Bypass = true
	return n
}

// Mute marks the node muted.
func (n *NodeBuilder) Mute() *NodeBuilder {
	n.node.Properties.Mute = true
	return n
}

// At places the node in the editor canvas.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	n.node.Properties.Position = domain.Position{X: x, Y: y}
	return n
}

// Set stores a custom property. Units read their configuration from these.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	if n.node.Properties.Custom == nil {
		n.node.Properties.Custom = make(map[string]any)
	}
	n.node.Properties.Custom[key] = value
	return n
}

// Graph fills the child graph of a graph node. Keys inside fn are local to
// the child.
func (n *NodeBuilder) Graph(fn func(g *Builder)) *NodeBuilder {
	if n.node.Identifier != domain.TypeGraph {
		n.builder.errs = append(n.builder.errs, fmt.Errorf("node %q is %s, not a graph", n.key, n.node.Identifier))
		return n
	}
	if n.graph == nil {
		n.graph = n.builder.child()
	}
	fn(n.graph)
	return n
}

// To connects srcPort of this node to dstPort of dst.
func (n *NodeBuilder) To(dst string, srcPort, dstPort uint32) *NodeBuilder {
	n.builder.Connect(n.key, srcPort, dst, dstPort)
	return n
}

// Stereo connects ports 0 and 1 of this node to ports 0 and 1 of dst. It
// fits an audio input node feeding anything whose first two ports are audio
// inputs; other layouts need To.
func (n *NodeBuilder) Stereo(dst string) *NodeBuilder {
	return n.To(dst, 0, 0).To(dst, 1, 1)
}

// ID returns the id assigned to this node.
func (n *NodeBuilder) ID() domain.NodeID { return n.node.ID }
