/*
Package patchbay is the graph engine of an audio and MIDI processing host.

A patch is a graph of processing units connected by arcs between typed
ports. The control thread edits the patch through a graph manager; every
commit compiles the patch into an immutable render sequence that the
engine hands to the audio thread without locks. Superseded sequences are
only released once the audio thread can no longer reach them.

# Usage

	host, err := patchbay.New(patchbay.WithName("live"))
	if err != nil {
		log.Fatal(err)
	}
	defer host.Close()

	in, _ := host.Graph.AddNode(domain.NodeDescription{Identifier: domain.TypeAudioInput}, domain.RootID)
	out, _ := host.Graph.AddNode(domain.NodeDescription{Identifier: domain.TypeAudioOutput}, domain.RootID)
	if _, err := host.Graph.ConnectStereo(in.ID, out.ID); err != nil {
		log.Fatal(err)
	}
	if err := host.Graph.Commit(); err != nil {
		log.Fatal(err)
	}

Hosts driven by a real device call Engine.Process from the device
callback. The runtime Driver stands in for one in tools and tests.

# Persistence

Patches are stored as snapshots. WithStore plugs any ports.SnapshotStore
(memory, YAML files, Redis, S3) behind a session manager that serialises
concurrent saves of the same patch.
*/
package patchbay
