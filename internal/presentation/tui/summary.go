package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/patchbay/pkg/domain"
)

// Summarize describes a patch as markdown: one table of nodes and one of
// arcs per graph, nested graphs in their own section.
func Summarize(snap *domain.Snapshot) string {
	var sb strings.Builder
	title := snap.Name
	if title == "" {
		title = "Untitled patch"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "%d nodes, snapshot version %d.\n\n", snap.CountNodes(), snap.Version)
	writeSection(&sb, snap, "Root graph", 2)
	return sb.String()
}

func writeSection(sb *strings.Builder, snap *domain.Snapshot, heading string, level int) {
	fmt.Fprintf(sb, "%s %s\n\n", strings.Repeat("#", level), heading)
	if len(snap.Nodes) == 0 {
		sb.WriteString("_empty_\n\n")
		return
	}

	sb.WriteString("| id | name | type | ports | state |\n")
	sb.WriteString("|---:|------|------|-------|-------|\n")
	for _, n := range snap.Nodes {
		name := n.Properties.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(sb, "| %d | %s | `%s` | %s | %s |\n",
			n.ID, escapeCell(name), n.Identifier, portSummary(n.Ports), state(n.Properties))
	}
	sb.WriteString("\n")

	if len(snap.Arcs) > 0 {
		sb.WriteString("| from | to |\n|------|----|\n")
		for _, a := range snap.Arcs {
			fmt.Fprintf(sb, "| %d:%d | %d:%d |\n", a.SrcNode, a.SrcPort, a.DstNode, a.DstPort)
		}
		sb.WriteString("\n")
	}

	for _, n := range snap.Nodes {
		if n.Graph == nil {
			continue
		}
		label := n.Properties.Name
		if label == "" {
			label = n.Identifier
		}
		writeSection(sb, n.Graph, fmt.Sprintf("Graph %d (%s)", n.ID, escapeCell(label)), min(level+1, 6))
	}
}

func portSummary(ports domain.PortList) string {
	var parts []string
	for _, t := range []domain.PortType{domain.PortAudio, domain.PortControl, domain.PortMidi, domain.PortOSC} {
		ins, outs := ports.Count(t, domain.FlowInput), ports.Count(t, domain.FlowOutput)
		if ins+outs > 0 {
			parts = append(parts, fmt.Sprintf("%s %d/%d", t, ins, outs))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func state(p domain.Properties) string {
	var flags []string
	if p.Missing {
		flags = append(flags, "missing")
	}
	if p.Placeholder {
		flags = append(flags, "placeholder")
	}
	if p.Bypass {
		flags = append(flags, "bypass")
	}
	if p.Mute {
		flags = append(flags, "mute")
	}
	if len(flags) == 0 {
		return "ok"
	}
	return strings.Join(flags, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
