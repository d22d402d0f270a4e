package tui_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aretw0/patchbay/internal/presentation/tui"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	snap := &domain.Snapshot{
		Version: domain.SnapshotVersion,
		Name:    "live",
		Nodes: []domain.NodeSnapshot{
			{ID: 1, Identifier: domain.TypeAudioInput, Ports: domain.Layout().AudioOuts(2).Build()},
			{
				ID: 2, Identifier: domain.TypeGraph, Format: domain.FormatGraph,
				Properties: domain.Properties{Name: "fx|rack", Bypass: true},
				Graph: &domain.Snapshot{
					Nodes: []domain.NodeSnapshot{{ID: 3, Identifier: "vendor.delay", Properties: domain.Properties{Missing: true}}},
				},
			},
		},
		Arcs: []domain.Arc{domain.NewArc(1, 0, 2, 0)},
	}

	md := tui.Summarize(snap)
	assert.True(t, strings.HasPrefix(md, "# live\n"))
	assert.Contains(t, md, "3 nodes")
	assert.Contains(t, md, "| 1 | - | `patchbay.audio-input` | audio 0/2 | ok |")
	assert.Contains(t, md, `fx\|rack`)
	assert.Contains(t, md, "| bypass |")
	assert.Contains(t, md, "| 1:0 | 2:0 |")
	assert.Contains(t, md, "### Graph 2")
	assert.Contains(t, md, "| missing |")
}

func TestSummarize_Empty(t *testing.T) {
	md := tui.Summarize(&domain.Snapshot{})
	assert.Contains(t, md, "# Untitled patch")
	assert.Contains(t, md, "_empty_")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "1.2.3\n")
	out := buf.String()
	assert.Contains(t, out, "v1.2.3")
	assert.Contains(t, out, "|___/")
}

func TestNewRenderer_Plain(t *testing.T) {
	render := tui.NewRenderer(false)
	out, err := render("# title")
	require.NoError(t, err)
	assert.Equal(t, "# title", out)
}
