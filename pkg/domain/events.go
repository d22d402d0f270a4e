package domain

import "time"

// EventType defines the category of the event.
type EventType string

const (
	EventTopologyChanged     EventType = "topology_changed"
	EventNodePropertyChanged EventType = "node_property_changed"
	EventSequencePublished   EventType = "sequence_published"
)

// TopologyChange tells subscribers what kind of edit happened.
type TopologyChange string

const (
	ChangeNodeAdded       TopologyChange = "node_added"
	ChangeNodeRemoved     TopologyChange = "node_removed"
	ChangeArcAdded        TopologyChange = "arc_added"
	ChangeArcRemoved      TopologyChange = "arc_removed"
	ChangeSnapshotApplied TopologyChange = "snapshot_applied"
)

// Event is a change notification. It is only ever emitted and delivered on
// the control thread.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Change    TopologyChange `json:"change,omitempty"`
	Graph     NodeID         `json:"graph"`
	Node      NodeID         `json:"node,omitempty"`
	Arc       *Arc           `json:"arc,omitempty"`
	Property  string         `json:"property,omitempty"`
	Value     any            `json:"value,omitempty"`
}

// LifecycleHooks defines optional callbacks for host observability.
// They run synchronously on the control thread.
type LifecycleHooks struct {
	OnNodeAdded   func(Node)
	OnNodeRemoved func(NodeID)
	OnPublish     func(SequenceInfo)
	OnDispose     func(SequenceInfo)
}

// SequenceInfo summarizes a render sequence for observers.
type SequenceInfo struct {
	Generation uint64   `json:"generation"`
	Order      []NodeID `json:"order"`
	SampleRate float64  `json:"sample_rate"`
	BlockSize  int      `json:"block_size"`
}
