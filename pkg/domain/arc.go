package domain

import "fmt"

// Arc is a directed connection between an output port and an input port.
// The four-tuple is its identity.
type Arc struct {
	SrcNode NodeID `json:"src_node" yaml:"src_node"`
	SrcPort uint32 `json:"src_port" yaml:"src_port"`
	DstNode NodeID `json:"dst_node" yaml:"dst_node"`
	DstPort uint32 `json:"dst_port" yaml:"dst_port"`
}

// NewArc is a convenience constructor.
func NewArc(srcNode NodeID, srcPort uint32, dstNode NodeID, dstPort uint32) Arc {
	return Arc{SrcNode: srcNode, SrcPort: srcPort, DstNode: dstNode, DstPort: dstPort}
}

// Touches reports whether either endpoint belongs to node id.
func (a Arc) Touches(id NodeID) bool { return a.SrcNode == id || a.DstNode == id }

func (a Arc) String() string {
	return fmt.Sprintf("%d:%d -> %d:%d", a.SrcNode, a.SrcPort, a.DstNode, a.DstPort)
}

// Less orders arcs by their four-tuple. Used for deterministic listings.
func (a Arc) Less(b Arc) bool {
	if a.SrcNode != b.SrcNode {
		return a.SrcNode < b.SrcNode
	}
	if a.SrcPort != b.SrcPort {
		return a.SrcPort < b.SrcPort
	}
	if a.DstNode != b.DstNode {
		return a.DstNode < b.DstNode
	}
	return a.DstPort < b.DstPort
}
