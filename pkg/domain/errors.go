package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no provider recognizes a type identifier.
var ErrNotFound = errors.New("type not found")

// ErrNodeNotFound is returned when a node id does not exist in the patch.
var ErrNodeNotFound = errors.New("node not found")

// ErrPortNotFound is returned when a port index does not exist on a node.
var ErrPortNotFound = errors.New("port not found")

// ErrArcNotFound is returned when disconnecting an arc that does not exist.
var ErrArcNotFound = errors.New("arc not found")

// ErrNotAGraph is returned when a node is used as a parent but owns no graph.
var ErrNotAGraph = errors.New("node does not own a graph")

// ErrPublishRace is returned by a strict publish while the previously
// published sequence has not been observed by the audio thread yet.
var ErrPublishRace = errors.New("previous render sequence not yet observed")

// ErrEngineClosed is returned when publishing to a closed engine.
var ErrEngineClosed = errors.New("engine closed")

// ErrSnapshotNotFound is returned when a stored patch cannot be found.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ReasonCode tells why an arc was rejected.
type ReasonCode string

const (
	ReasonNone                 ReasonCode = ""
	ReasonTypeMismatch         ReasonCode = "type_mismatch"
	ReasonDirection            ReasonCode = "direction"
	ReasonDuplicate            ReasonCode = "duplicate_arc"
	ReasonSelfLoop             ReasonCode = "self_loop"
	ReasonCrossGraph           ReasonCode = "cross_graph"
	ReasonWouldCycle           ReasonCode = "would_cycle"
	ReasonControlInputOccupied ReasonCode = "control_input_occupied"
)

// Reason sentinels allow errors.Is(err, domain.ErrWouldCycle) style checks.
var (
	ErrTypeMismatch         = &ValidationError{Reason: ReasonTypeMismatch}
	ErrDirection            = &ValidationError{Reason: ReasonDirection}
	ErrDuplicateArc         = &ValidationError{Reason: ReasonDuplicate}
	ErrSelfLoop             = &ValidationError{Reason: ReasonSelfLoop}
	ErrCrossGraph           = &ValidationError{Reason: ReasonCrossGraph}
	ErrWouldCycle           = &ValidationError{Reason: ReasonWouldCycle}
	ErrControlInputOccupied = &ValidationError{Reason: ReasonControlInputOccupied}
)

// ValidationError reports a rejected arc. The graph is left unchanged.
type ValidationError struct {
	Reason ReasonCode
	Arc    Arc
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("arc %s rejected: %s", e.Arc, e.Reason)
}

// Is matches any ValidationError carrying the same reason.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Reason == e.Reason
}

// Rejected builds a ValidationError for arc.
func Rejected(reason ReasonCode, arc Arc) error {
	return &ValidationError{Reason: reason, Arc: arc}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) ReasonCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ReasonNone
}

// LookupError is returned when a type identifier cannot be resolved.
type LookupError struct {
	Identifier string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNotFound, e.Identifier)
}

func (e *LookupError) Unwrap() error { return ErrNotFound }

// InstantiationError is returned by AddNode when the unit could not be
// created. Node holds the placeholder that was inserted in its place.
type InstantiationError struct {
	Node Node
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate %q (node %d): %v", e.Node.Identifier, e.Node.ID, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }
