package graph

import (
	"slices"

	"github.com/aretw0/patchbay/pkg/domain"
)

// edge is an arc reduced to what ordering needs.
type edge struct {
	src, dst domain.NodeID
	hard     bool
}

// schedule returns ids in render order using Kahn's algorithm.
//
// Hard edges (signal arcs) always run source first. Soft edges (control
// arcs) are honoured too, but they may form cycles: when no node is free,
// the lowest id without pending hard edges runs and its soft inputs carry
// the previous block's value. Ties always go to the lowest id, so the same
// topology yields the same order.
func schedule(ids []domain.NodeID, edges []edge) []domain.NodeID {
	hardIn := make(map[domain.NodeID]int, len(ids))
	softIn := make(map[domain.NodeID]int, len(ids))
	out := make(map[domain.NodeID][]edge, len(ids))
	for _, e := range edges {
		if e.src == e.dst {
			continue
		}
		out[e.src] = append(out[e.src], e)
		if e.hard {
			hardIn[e.dst]++
		} else {
			softIn[e.dst]++
		}
	}

	pending := slices.Clone(ids)
	slices.Sort(pending)

	var ready []domain.NodeID
	push := func(id domain.NodeID) {
		i, found := slices.BinarySearch(ready, id)
		if !found {
			ready = slices.Insert(ready, i, id)
		}
	}
	for _, id := range pending {
		if hardIn[id] == 0 && softIn[id] == 0 {
			push(id)
		}
	}

	done := make(map[domain.NodeID]bool, len(ids))
	order := make([]domain.NodeID, 0, len(ids))
	for len(order) < len(pending) {
		var next domain.NodeID
		if len(ready) > 0 {
			next, ready = ready[0], ready[1:]
		} else {
			// Only control cycles are left; break at the lowest free id.
			found := false
			for _, id := range pending {
				if !done[id] && hardIn[id] == 0 {
					next, found = id, true
					break
				}
			}
			if !found {
				// A signal cycle; cannot happen for validated graphs.
				for _, id := range pending {
					if !done[id] {
						next = id
						break
					}
				}
			}
		}
		if done[next] {
			continue
		}
		done[next] = true
		order = append(order, next)
		for _, e := range out[next] {
			if e.hard {
				hardIn[e.dst]--
			} else {
				softIn[e.dst]--
			}
			if !done[e.dst] && hardIn[e.dst] == 0 && softIn[e.dst] == 0 {
				push(e.dst)
			}
		}
	}
	return order
}
