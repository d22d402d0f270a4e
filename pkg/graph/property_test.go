package graph_test

import (
	"slices"
	"testing"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const (
	propThroughNodes = 6
	propControlNodes = 2
)

// propPatch creates six audio through nodes (ids 1-6) and two control nodes
// (ids 7-8). Every node has port 0 as input and port 1 as output.
func propPatch(t *testing.T) *graph.Manager {
	m := newManager(t)
	for range propThroughNodes {
		add(t, m, typeThrough, domain.RootID)
	}
	for range propControlNodes {
		add(t, m, typeControl, domain.RootID)
	}
	return m
}

// decodeArc spreads one generated int over a four-tuple.
func decodeArc(v int) domain.Arc {
	n := propThroughNodes + propControlNodes
	return domain.NewArc(
		domain.NodeID(v%n+1), uint32(v/n%2),
		domain.NodeID(v/(2*n)%n+1), uint32(v/(4*n)%2),
	)
}

func TestGraphInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("accepted arcs obey port rules and are unique", prop.ForAll(
		func(ops []int) bool {
			m := propPatch(t)
			for _, v := range ops {
				a := decodeArc(v)
				before, _ := m.Arcs(domain.RootID)
				_, err := m.Connect(a.SrcNode, a.SrcPort, a.DstNode, a.DstPort)
				after, _ := m.Arcs(domain.RootID)
				if err != nil {
					if len(after) != len(before) {
						return false
					}
					continue
				}
				if len(after) != len(before)+1 || slices.Contains(before, a) {
					return false
				}
				src, _ := m.Node(a.SrcNode)
				dst, _ := m.Node(a.DstNode)
				sp, _ := src.Port(a.SrcPort)
				dp, _ := dst.Port(a.DstPort)
				if !sp.IsOutput() || !dp.IsInput() || !domain.TypesCompatible(sp.Type, dp.Type) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1023)),
	))

	properties.Property("signal arcs stay acyclic and order is stable", prop.ForAll(
		func(ops []int) bool {
			m := propPatch(t)
			for _, v := range ops {
				a := decodeArc(v)
				before, _ := m.Arcs(domain.RootID)
				_, err := m.Connect(a.SrcNode, a.SrcPort, a.DstNode, a.DstPort)
				if domain.ReasonOf(err) == domain.ReasonWouldCycle {
					after, _ := m.Arcs(domain.RootID)
					if !slices.Equal(before, after) {
						return false
					}
				}
			}
			first, err := m.RebuildRenderSequence()
			if err != nil {
				return false
			}
			second, err := m.RebuildRenderSequence()
			if err != nil || !slices.Equal(first.Order(), second.Order()) {
				return false
			}
			pos := make(map[domain.NodeID]int)
			for i, id := range first.Order() {
				pos[id] = i
			}
			if len(pos) != propThroughNodes+propControlNodes {
				return false
			}
			arcs, _ := m.Arcs(domain.RootID)
			for _, a := range arcs {
				src, _ := m.Node(a.SrcNode)
				sp, _ := src.Port(a.SrcPort)
				if sp.Type.IsSignal() && pos[a.SrcNode] >= pos[a.DstNode] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1023)),
	))

	properties.Property("removing a node removes its arcs", prop.ForAll(
		func(ops []int, victim int) bool {
			m := propPatch(t)
			for _, v := range ops {
				a := decodeArc(v)
				_, _ = m.Connect(a.SrcNode, a.SrcPort, a.DstNode, a.DstPort)
			}
			id := domain.NodeID(victim)
			if err := m.RemoveNode(id); err != nil {
				return false
			}
			arcs, _ := m.Arcs(domain.RootID)
			for _, a := range arcs {
				if a.Touches(id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1023)),
		gen.IntRange(1, propThroughNodes+propControlNodes),
	))

	properties.TestingRun(t)
}
