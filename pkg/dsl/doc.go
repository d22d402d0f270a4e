/*
Package dsl provides a Go DSL for building patch snapshots programmatically.

Nodes are named by string keys and connected by key, so a patch can be
written without tracking numeric ids. The result is a *domain.Snapshot
ready for Host.Apply, a store, or a patch file.

Example usage:

	package main

	import (
		"github.com/aretw0/patchbay"
		"github.com/aretw0/patchbay/pkg/domain"
		"github.com/aretw0/patchbay/pkg/dsl"
	)

	func main() {
		b := dsl.New("chain")

		b.Add("in", domain.TypeAudioInput).Stereo("fx")

		b.Add("fx", domain.TypeGraph).
			Name("effects").
			Graph(func(g *dsl.Builder) {
				g.Add("in", domain.TypeAudioInput).Stereo("out")
				g.Add("out", domain.TypeAudioOutput)
			}).
			To("out", 2, 0).
			To("out", 3, 1)

		b.Add("out", domain.TypeAudioOutput)

		snap, err := b.Build()
		// ... pass snap to host.Apply(snap)
	}
*/
package dsl
