// Package graph implements the graph manager: the only component allowed to
// change the nodes and arcs of a patch.
//
// Every edit runs on the control thread under the manager's lock, is
// validated against the arc rules, and marks the topology dirty. Commit
// schedules the graph with Kahn's algorithm, builds a render sequence off
// the audio thread and hands it to the engine. Bypass, mute and parameter
// changes bypass all of that: they are atomic updates the running units read
// directly.
package graph
