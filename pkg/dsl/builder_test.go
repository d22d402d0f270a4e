package dsl_test

import (
	"testing"

	"github.com/aretw0/patchbay/internal/testutils"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SimpleChain(t *testing.T) {
	b := dsl.New("chain")
	b.Add("in", domain.TypeAudioInput).Name("Input").At(10, 20).Stereo("out")
	b.Add("out", domain.TypeAudioOutput).Set("gain", 0.5)

	snap, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, domain.SnapshotVersion, snap.Version)
	assert.Equal(t, "chain", snap.Name)
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, domain.NodeID(1), snap.Nodes[0].ID)
	assert.Equal(t, "Input", snap.Nodes[0].Properties.Name)
	assert.Equal(t, domain.Position{X: 10, Y: 20}, snap.Nodes[0].Properties.Position)
	assert.Equal(t, 0.5, snap.Nodes[1].Properties.Custom["gain"])
	assert.Equal(t, []domain.Arc{
		domain.NewArc(1, 0, 2, 0),
		domain.NewArc(1, 1, 2, 1),
	}, snap.Arcs)
}

func TestBuilder_AddIsIdempotent(t *testing.T) {
	b := dsl.New("x")
	first := b.Add("a", domain.TypeAudioRouter)
	again := b.Add("a", domain.TypeAudioRouter)
	assert.Same(t, first, again)

	id, ok := b.ID("a")
	assert.True(t, ok)
	assert.Equal(t, first.ID(), id)
}

func TestBuilder_NestedIDsAreUnique(t *testing.T) {
	b := dsl.New("nested")
	b.Add("in", domain.TypeAudioInput).To("fx", 0, 0).To("fx", 1, 1)
	b.Add("fx", domain.TypeGraph).Graph(func(g *dsl.Builder) {
		g.Add("in", domain.TypeAudioInput).Stereo("out")
		g.Add("out", domain.TypeAudioOutput)
	}).To("out", 2, 0).To("out", 3, 1)
	b.Add("out", domain.TypeAudioOutput)

	snap, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 5, snap.CountNodes())

	seen := map[domain.NodeID]bool{}
	snap.Walk(func(_ *domain.Snapshot, n *domain.NodeSnapshot) {
		assert.False(t, seen[n.ID], "id %d reused", n.ID)
		seen[n.ID] = true
	})

	child := snap.Nodes[1].Graph
	require.NotNil(t, child)
	assert.Equal(t, []domain.Arc{
		domain.NewArc(3, 0, 4, 0),
		domain.NewArc(3, 1, 4, 1),
	}, child.Arcs)
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("Unknown Key", func(t *testing.T) {
		b := dsl.New("broken")
		b.Add("in", domain.TypeAudioInput).Stereo("nowhere")
		_, err := b.Build()
		assert.ErrorContains(t, err, `arc to unknown node "nowhere"`)
	})

	t.Run("Graph On Plain Node", func(t *testing.T) {
		b := dsl.New("broken")
		b.Add("in", domain.TypeAudioInput).Graph(func(*dsl.Builder) {})
		_, err := b.Build()
		assert.ErrorContains(t, err, "not a graph")
	})

	t.Run("Nested Error Is Scoped", func(t *testing.T) {
		b := dsl.New("broken")
		b.Add("fx", domain.TypeGraph).Graph(func(g *dsl.Builder) {
			g.Connect("a", 0, "b", 0)
		})
		_, err := b.Build()
		assert.ErrorContains(t, err, `in "fx"`)
	})
}

func TestBuilder_AppliesToHost(t *testing.T) {
	h := testutils.NewHost(t)

	b := dsl.New("live")
	b.Add("in", domain.TypeAudioInput).Stereo("out")
	b.Add("out", domain.TypeAudioOutput).Mute()
	snap, err := b.Build()
	require.NoError(t, err)

	require.NoError(t, h.Apply(snap))
	arcs, err := h.Graph.Arcs(domain.RootID)
	require.NoError(t, err)
	assert.Len(t, arcs, 2)

	out, err := h.Graph.Node(2)
	require.NoError(t, err)
	assert.True(t, out.Properties.Mute)
}
