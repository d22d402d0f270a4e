package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/patchbay/pkg/domain"
)

// Overlay marks nodes to highlight, for example the ones an edit touched.
type Overlay struct {
	Highlight []domain.NodeID
}

// GenerateMermaid renders a patch as a Mermaid flowchart. Shapes follow the
// node role:
//   - IO nodes: ([Stadium])
//   - nested graphs: a subgraph holding their children
//   - missing types: [/Parallelogram/] with the missing class
//   - everything else: [Rectangle]
//
// Audio arcs are solid, MIDI and OSC arcs dotted, control arcs thick. Each
// arc is labelled with its source and destination port indices.
func GenerateMermaid(snap *domain.Snapshot, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	if snap != nil {
		writeGraph(&sb, snap, 1)
	}

	sb.WriteString("\n    classDef missing fill:#fee2e2,stroke:#b91c1c,color:#000;\n")
	sb.WriteString("    classDef bypassed stroke-dasharray:5 5;\n")
	sb.WriteString("    classDef muted fill:#e5e7eb,color:#6b7280;\n")
	if snap != nil {
		snap.Walk(func(_ *domain.Snapshot, n *domain.NodeSnapshot) {
			switch {
			case n.Properties.Missing:
				fmt.Fprintf(&sb, "    class %s missing;\n", mermaidID(n.ID))
			case n.Properties.Mute:
				fmt.Fprintf(&sb, "    class %s muted;\n", mermaidID(n.ID))
			case n.Properties.Bypass:
				fmt.Fprintf(&sb, "    class %s bypassed;\n", mermaidID(n.ID))
			}
		})
	}

	if overlay != nil && len(overlay.Highlight) > 0 {
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		seen := make(map[domain.NodeID]bool)
		for _, id := range overlay.Highlight {
			if seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s current;\n", mermaidID(id))
		}
	}
	return sb.String()
}

func writeGraph(sb *strings.Builder, snap *domain.Snapshot, depth int) {
	indent := strings.Repeat("    ", depth)
	ports := make(map[domain.NodeID]domain.PortList, len(snap.Nodes))

	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		ports[n.ID] = n.Ports
		id := mermaidID(n.ID)
		label := escapeLabel(displayName(n))

		if n.Graph != nil {
			fmt.Fprintf(sb, "%ssubgraph %s[\"%s\"]\n", indent, id, label)
			writeGraph(sb, n.Graph, depth+1)
			fmt.Fprintf(sb, "%send\n", indent)
			continue
		}

		opener, closer := "[", "]"
		switch {
		case n.Properties.Missing:
			opener, closer = "[/", "/]"
		case isIO(n.Identifier):
			opener, closer = "([", "])"
		}
		fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, id, opener, label, closer)
	}

	for _, a := range snap.Arcs {
		arrow := "-->"
		if p, ok := ports[a.SrcNode].Get(a.SrcPort); ok {
			switch p.Type {
			case domain.PortMidi, domain.PortOSC:
				arrow = "-.->"
			case domain.PortControl:
				arrow = "==>"
			}
		}
		fmt.Fprintf(sb, "%s%s %s|%d:%d| %s\n", indent, mermaidID(a.SrcNode), arrow, a.SrcPort, a.DstPort, mermaidID(a.DstNode))
	}
}

func displayName(n *domain.NodeSnapshot) string {
	if n.Properties.Name != "" {
		return n.Properties.Name
	}
	return n.Identifier
}

func isIO(identifier string) bool {
	switch identifier {
	case domain.TypeAudioInput, domain.TypeAudioOutput, domain.TypeMidiInput, domain.TypeMidiOutput:
		return true
	}
	return false
}

func mermaidID(id domain.NodeID) string {
	return "n" + id.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
