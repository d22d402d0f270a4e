/*
Package domain contains the core data model of the patchbay host.

It defines what a node, a port and a connection ARE, plus the rules that
decide whether two ports may be connected. The package is pure: it has no
I/O, no real-time code and no dependency on the registry or the runtime.

# Key Entities

  - Port: a typed, directional terminal owned by a Node (Audio, Control, Midi or OSC).
  - Node: an addressable processing unit description with ports, properties and an optional child graph.
  - Arc: a directed connection identified by the four-tuple (srcNode, srcPort, dstNode, dstPort).
  - Snapshot: the serializable form of a graph, used by persistence collaborators.
  - Event: a change notification (topology or property) delivered on the control thread.
*/
package domain
