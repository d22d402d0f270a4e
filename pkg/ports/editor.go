package ports

import "github.com/aretw0/patchbay/pkg/domain"

// Editor is the control-thread surface of a patch. It is the interface used
// by adapters (HTTP, MCP) that edit a patch on behalf of remote clients.
type Editor interface {
	Nodes(parent domain.NodeID) ([]domain.Node, error)
	Node(id domain.NodeID) (domain.Node, error)
	Arcs(parent domain.NodeID) ([]domain.Arc, error)

	AddNode(desc domain.NodeDescription, parent domain.NodeID) (domain.Node, error)
	RemoveNode(id domain.NodeID) error
	Connect(srcNode domain.NodeID, srcPort uint32, dstNode domain.NodeID, dstPort uint32) (domain.Arc, error)
	Disconnect(arc domain.Arc) error

	SetBypass(id domain.NodeID, bypass bool) error
	SetMute(id domain.NodeID, mute bool) error
	SetProperty(id domain.NodeID, key string, value any) error

	Snapshot(filters ...domain.SnapshotFilter) *domain.Snapshot
	ApplySnapshot(snap *domain.Snapshot) error

	// Commit rebuilds and publishes the render sequence if the topology changed.
	Commit() error
}
