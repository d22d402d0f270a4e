package graph_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AddNode(t *testing.T) {
	t.Run("Ports Come From The Unit", func(t *testing.T) {
		m := newManager(t)
		n, err := m.AddNode(domain.NodeDescription{Identifier: domain.TypeAudioRouter}, domain.RootID)
		require.NoError(t, err)

		assert.Equal(t, domain.NodeID(1), n.ID)
		assert.Equal(t, domain.FormatInternal, n.Format)
		assert.Equal(t, 4, n.Ports.Count(domain.PortAudio, domain.FlowInput))
		assert.Equal(t, 4, n.Ports.Count(domain.PortAudio, domain.FlowOutput))
		assert.NotEmpty(t, n.Properties.UUID)
	})

	t.Run("Custom Properties Configure The Unit", func(t *testing.T) {
		m := newManager(t)
		n, err := m.AddNode(domain.NodeDescription{
			Identifier: domain.TypeScript,
			Properties: domain.Properties{Custom: map[string]any{"control_ins": 2, "midi_ins": 0}},
		}, domain.RootID)
		require.NoError(t, err)
		assert.Equal(t, 2, n.Ports.Count(domain.PortControl, domain.FlowInput))
		assert.Equal(t, 0, n.Ports.Count(domain.PortMidi, domain.FlowInput))
	})

	t.Run("Unknown Type Yields Missing Placeholder", func(t *testing.T) {
		reg := newRegistry(t)
		_, err := reg.Instantiate("unknown.type")
		require.ErrorIs(t, err, domain.ErrNotFound)

		m := graph.New(reg)
		src := add(t, m, typeSource, domain.RootID)
		layout := domain.Layout().AudioIns(1).Build()
		n, err := m.AddNode(domain.NodeDescription{Identifier: "unknown.type", Ports: layout}, domain.RootID)

		var ierr *domain.InstantiationError
		require.ErrorAs(t, err, &ierr)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, n.ID, ierr.Node.ID)
		assert.True(t, n.Properties.Missing)
		assert.Equal(t, layout, n.Ports)

		// The slot keeps working as a connection target.
		_, err = m.Connect(src, 0, n.ID, 0)
		assert.NoError(t, err)
		stored, err := m.Node(n.ID)
		require.NoError(t, err)
		assert.True(t, stored.Properties.Missing)
	})

	t.Run("Rejected Configuration Yields Placeholder", func(t *testing.T) {
		m := newManager(t)
		n, err := m.AddNode(domain.NodeDescription{
			Identifier: domain.TypeScript,
			Properties: domain.Properties{Custom: map[string]any{"audio_ins": 500}},
		}, domain.RootID)
		var ierr *domain.InstantiationError
		require.ErrorAs(t, err, &ierr)
		assert.True(t, n.Properties.Placeholder)
		assert.False(t, n.Properties.Missing)
	})

	t.Run("Ids Are Never Reused", func(t *testing.T) {
		m := newManager(t)
		a := add(t, m, typeSource, domain.RootID)
		require.NoError(t, m.RemoveNode(a))
		b := add(t, m, typeSource, domain.RootID)
		assert.Greater(t, b, a)
	})

	t.Run("Parent Must Be A Graph", func(t *testing.T) {
		m := newManager(t)
		src := add(t, m, typeSource, domain.RootID)
		_, err := m.AddNode(domain.NodeDescription{Identifier: typeSink}, src)
		assert.ErrorIs(t, err, domain.ErrNotAGraph)
		_, err = m.AddNode(domain.NodeDescription{Identifier: typeSink}, 99)
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})
}

func TestManager_Connect(t *testing.T) {
	t.Run("Reversing A Connection Would Cycle", func(t *testing.T) {
		m := newManager(t)
		a := add(t, m, typeSource, domain.RootID)
		b := add(t, m, typeSink, domain.RootID)

		first, err := m.Connect(a, 0, b, 0)
		require.NoError(t, err)

		_, err = m.Connect(b, 0, a, 0)
		assert.ErrorIs(t, err, domain.ErrWouldCycle)
		assert.Equal(t, domain.ReasonWouldCycle, domain.ReasonOf(err))

		require.NoError(t, m.Disconnect(first))
		_, err = m.Connect(b, 0, a, 0)
		assert.NotErrorIs(t, err, domain.ErrWouldCycle)
		arcs, err := m.Arcs(domain.RootID)
		require.NoError(t, err)
		assert.Empty(t, arcs)
	})

	t.Run("Feedback Path Succeeds Once Broken", func(t *testing.T) {
		m := newManager(t)
		a := add(t, m, typeThrough, domain.RootID)
		b := add(t, m, typeThrough, domain.RootID)

		first, err := m.Connect(a, 1, b, 0)
		require.NoError(t, err)
		_, err = m.Connect(b, 1, a, 0)
		require.ErrorIs(t, err, domain.ErrWouldCycle)

		require.NoError(t, m.Disconnect(first))
		_, err = m.Connect(b, 1, a, 0)
		assert.NoError(t, err)
	})

	t.Run("Duplicate Arc", func(t *testing.T) {
		m := newManager(t)
		a := add(t, m, typeSource, domain.RootID)
		b := add(t, m, typeSink, domain.RootID)
		_, err := m.Connect(a, 0, b, 0)
		require.NoError(t, err)

		_, err = m.Connect(a, 0, b, 0)
		assert.ErrorIs(t, err, domain.ErrDuplicateArc)
		arcs, _ := m.Arcs(domain.RootID)
		assert.Len(t, arcs, 1)
	})

	t.Run("Port Rules", func(t *testing.T) {
		m := newManager(t)
		src := add(t, m, typeSource, domain.RootID)
		thru := add(t, m, typeThrough, domain.RootID)
		midi := add(t, m, typeMidi, domain.RootID)
		sink := add(t, m, typeSink, domain.RootID)

		_, err := m.Connect(thru, 1, thru, 0)
		assert.ErrorIs(t, err, domain.ErrSelfLoop)

		_, err = m.Connect(src, 0, midi, 0)
		assert.ErrorIs(t, err, domain.ErrTypeMismatch)

		_, err = m.Connect(thru, 0, sink, 0)
		assert.ErrorIs(t, err, domain.ErrDirection)

		_, err = m.Connect(src, 3, sink, 0)
		assert.ErrorIs(t, err, domain.ErrPortNotFound)

		_, err = m.Connect(src, 0, 42, 0)
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)

		arcs, _ := m.Arcs(domain.RootID)
		assert.Empty(t, arcs)
	})

	t.Run("Cross Graph", func(t *testing.T) {
		m := newManager(t)
		g := add(t, m, domain.TypeGraph, domain.RootID)
		inner := add(t, m, typeSink, g)
		src := add(t, m, typeSource, domain.RootID)

		_, err := m.Connect(src, 0, inner, 0)
		assert.ErrorIs(t, err, domain.ErrCrossGraph)
	})

	t.Run("Control Inputs Take One Arc", func(t *testing.T) {
		m := newManager(t)
		c1 := add(t, m, typeControl, domain.RootID)
		c2 := add(t, m, typeControl, domain.RootID)
		c3 := add(t, m, typeControl, domain.RootID)

		_, err := m.Connect(c1, 1, c3, 0)
		require.NoError(t, err)
		_, err = m.Connect(c2, 1, c3, 0)
		assert.ErrorIs(t, err, domain.ErrControlInputOccupied)
	})

	t.Run("Control Automation And Feedback", func(t *testing.T) {
		m := newManager(t)
		c1 := add(t, m, typeControl, domain.RootID)
		c2 := add(t, m, typeControl, domain.RootID)
		sink := add(t, m, typeSink, domain.RootID)
		midi := add(t, m, typeMidi, domain.RootID)

		_, err := m.Connect(c1, 1, sink, 0)
		assert.NoError(t, err, "control may automate audio")
		_, err = m.Connect(c1, 1, midi, 0)
		assert.NoError(t, err, "control may automate midi")

		_, err = m.Connect(c1, 1, c2, 0)
		require.NoError(t, err)
		_, err = m.Connect(c2, 1, c1, 0)
		assert.NoError(t, err, "control loops do not constrain the order")

		order, err := m.Order(domain.RootID)
		require.NoError(t, err)
		assert.Equal(t, []domain.NodeID{c1, c2, sink, midi}, order)
	})

	t.Run("Connect Stereo", func(t *testing.T) {
		m := newManager(t)
		in := add(t, m, domain.TypeAudioInput, domain.RootID)
		out := add(t, m, domain.TypeAudioOutput, domain.RootID)

		arcs, err := m.ConnectStereo(in, out)
		require.NoError(t, err)
		assert.Equal(t, []domain.Arc{domain.NewArc(in, 0, out, 0), domain.NewArc(in, 1, out, 1)}, arcs)

		_, err = m.ConnectStereo(in, out)
		assert.ErrorIs(t, err, domain.ErrDuplicateArc)
		stored, _ := m.Arcs(domain.RootID)
		assert.Len(t, stored, 2)

		src := add(t, m, typeSource, domain.RootID)
		_, err = m.ConnectStereo(src, out)
		assert.ErrorIs(t, err, domain.ErrPortNotFound)
	})
}

func TestManager_RemoveNode(t *testing.T) {
	t.Run("Removes Every Arc", func(t *testing.T) {
		m := newManager(t)
		a := add(t, m, typeSource, domain.RootID)
		b := add(t, m, typeThrough, domain.RootID)
		c := add(t, m, typeSink, domain.RootID)
		_, err := m.Connect(a, 0, b, 0)
		require.NoError(t, err)
		_, err = m.Connect(b, 1, c, 0)
		require.NoError(t, err)
		_, err = m.Connect(a, 0, c, 0)
		require.NoError(t, err)

		require.NoError(t, m.RemoveNode(b))

		arcs, err := m.Arcs(domain.RootID)
		require.NoError(t, err)
		assert.Equal(t, []domain.Arc{domain.NewArc(a, 0, c, 0)}, arcs)
		for _, arc := range arcs {
			assert.False(t, arc.Touches(b))
		}
		_, err = m.Node(b)
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
		assert.ErrorIs(t, m.RemoveNode(b), domain.ErrNodeNotFound)
	})

	t.Run("Recurses Into Nested Graphs", func(t *testing.T) {
		m := newManager(t)
		g := add(t, m, domain.TypeGraph, domain.RootID)
		in := add(t, m, domain.TypeAudioInput, g)
		out := add(t, m, domain.TypeAudioOutput, g)
		_, err := m.ConnectStereo(in, out)
		require.NoError(t, err)

		parent, err := m.Node(g)
		require.NoError(t, err)
		assert.Equal(t, []domain.NodeID{in, out}, parent.Children)

		require.NoError(t, m.RemoveNode(g))
		assert.Equal(t, 0, m.Len())
	})
}

func TestManager_Properties(t *testing.T) {
	m := newManager(t)
	id := add(t, m, typeThrough, domain.RootID)
	unit, err := m.Unit(id)
	require.NoError(t, err)

	require.NoError(t, m.SetBypass(id, true))
	assert.True(t, unit.(*nodes.Missing).Suspended())

	require.NoError(t, m.SetProperty(id, graph.PropName, "verb"))
	require.NoError(t, m.SetProperty(id, graph.PropX, 12))
	require.NoError(t, m.SetProperty(id, graph.PropMute, true))
	require.NoError(t, m.SetProperty(id, "color", "red"))
	require.NoError(t, m.SetProperty(id, "_handle", 7))
	require.NoError(t, m.SetProperty(id, "_handle", nil))

	n, err := m.Node(id)
	require.NoError(t, err)
	assert.Equal(t, "verb", n.Properties.Name)
	assert.Equal(t, 12.0, n.Properties.Position.X)
	assert.True(t, n.Properties.Bypass)
	assert.True(t, n.Properties.Mute)
	assert.Equal(t, map[string]any{"color": "red"}, n.Properties.Custom)
	assert.Equal(t, "verb", n.DisplayName())

	assert.ErrorIs(t, m.SetProperty(id, graph.PropBypass, "yes"), graph.ErrInvalidProperty)
	assert.ErrorIs(t, m.SetProperty(id, graph.PropY, "top"), graph.ErrInvalidProperty)
	assert.ErrorIs(t, m.SetMute(99, true), domain.ErrNodeNotFound)
}

func TestManager_Events(t *testing.T) {
	m := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := m.Events().Subscribe(ctx, 16)

	id := add(t, m, typeSource, domain.RootID)
	require.NoError(t, m.SetMute(id, true))

	next := func() domain.Event {
		select {
		case ev := <-sub.Events():
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
		}
		return domain.Event{}
	}
	ev := next()
	assert.Equal(t, domain.EventTopologyChanged, ev.Type)
	assert.Equal(t, domain.ChangeNodeAdded, ev.Change)
	assert.Equal(t, id, ev.Node)

	ev = next()
	assert.Equal(t, domain.EventNodePropertyChanged, ev.Type)
	assert.Equal(t, "mute", ev.Property)
	assert.Equal(t, true, ev.Value)

	cancel()
	require.Eventually(t, func() bool { return m.Events().Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManager_Hooks(t *testing.T) {
	var added []domain.NodeID
	var removed []domain.NodeID
	m := newManager(t, graph.WithHooks(domain.LifecycleHooks{
		OnNodeAdded:   func(n domain.Node) { added = append(added, n.ID) },
		OnNodeRemoved: func(id domain.NodeID) { removed = append(removed, id) },
	}))
	g := add(t, m, domain.TypeGraph, domain.RootID)
	inner := add(t, m, typeSink, g)
	require.NoError(t, m.RemoveNode(g))

	assert.Equal(t, []domain.NodeID{g, inner}, added)
	assert.Equal(t, []domain.NodeID{inner, g}, removed)
}
