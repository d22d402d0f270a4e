package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
)

// Report lists what a patch would lose if it were loaded as is.
type Report struct {
	Nodes int
	// Missing lists nodes whose type no provider knows.
	Missing []string
	// Rejected lists arcs the graph refused.
	Rejected []string
	// Isolated lists nodes with no arcs. They are not errors.
	Isolated []domain.NodeID
}

// Err summarises missing types and rejected arcs, or returns nil.
func (r *Report) Err() error {
	issues := append(append([]string(nil), r.Missing...), r.Rejected...)
	if len(issues) == 0 {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(issues), strings.Join(issues, "\n- "))
}

// ValidatePatch applies snap to a scratch graph backed by resolver and
// reports every node and arc that did not survive. Units created for the
// check are released before it returns.
func ValidatePatch(snap *domain.Snapshot, resolver graph.Resolver) (*Report, error) {
	m := graph.New(resolver)
	err := m.ApplySnapshot(snap)
	if errors.Is(err, graph.ErrInvalidSnapshot) {
		return nil, err
	}
	defer func() {
		_ = m.ApplySnapshot(&domain.Snapshot{Version: domain.SnapshotVersion})
	}()

	report := &Report{Nodes: snap.CountNodes()}
	if err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			report.Rejected = append(report.Rejected, "rejected arc: "+line)
		}
	}

	applied := m.Snapshot()
	applied.Walk(func(_ *domain.Snapshot, n *domain.NodeSnapshot) {
		if n.Properties.Missing {
			report.Missing = append(report.Missing, fmt.Sprintf("missing node type '%s' (node %d)", n.Identifier, n.ID))
		}
	})
	collectIsolated(applied, report)
	return report, nil
}

func collectIsolated(snap *domain.Snapshot, r *Report) {
	linked := make(map[domain.NodeID]bool)
	for _, a := range snap.Arcs {
		linked[a.SrcNode] = true
		linked[a.DstNode] = true
	}
	for _, n := range snap.Nodes {
		if !linked[n.ID] && n.Graph == nil {
			r.Isolated = append(r.Isolated, n.ID)
		}
		if n.Graph != nil {
			collectIsolated(n.Graph, r)
		}
	}
}
