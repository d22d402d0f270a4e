/*
Package ports defines the interfaces between the patchbay core and its
collaborators.

These interfaces decouple the graph engine from concrete node
implementations, storage backends and transports.

# Key Interfaces

  - Unit: the real-time processing contract every node implementation satisfies.
  - Provider: a factory contributing one or more node types to the registry.
  - Editor: the control-thread surface used by the HTTP and MCP adapters.
  - SnapshotStore: persists and loads patch snapshots.
  - DistributedLocker: coordinates patch edits across multiple host instances.
  - MessageChannel: the opaque byte channel to an out-of-process host.
*/
package ports
