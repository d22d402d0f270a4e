package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constInput(v float32) runtime.DriverOption {
	return runtime.WithInput(func(_ int, buf []float32) {
		for i := range buf {
			buf[i] = v
		}
	})
}

func stereoThrough(inID, outID domain.NodeID) []domain.Arc {
	return []domain.Arc{arc(inID, 0, outID, 0), arc(inID, 1, outID, 1)}
}

func TestDriver(t *testing.T) {
	t.Run("Device Audio Through IO Nodes", func(t *testing.T) {
		e := newTestEngine()
		in, out := nodes.NewAudioInput(), nodes.NewAudioOutput()
		seq, err := runtime.Build(&runtime.Plan{
			Nodes:  []runtime.PlanNode{node(1, in), node(2, out)},
			Arcs:   stereoThrough(1, 2),
			Device: &ports.Device{},
		}, testBlock)
		require.NoError(t, err)
		require.NoError(t, e.Publish(seq))

		d := runtime.NewDriver(e, constInput(0.5))
		d.Step(2)
		assert.Equal(t, float32(0.5), d.Peak())
		assert.Equal(t, uint64(2), e.Stats().Blocks)
	})

	t.Run("Nested Graph", func(t *testing.T) {
		e := newTestEngine()
		rootIn, rootOut := nodes.NewAudioInput(), nodes.NewAudioOutput()
		innerIn, innerOut := nodes.NewAudioInput(), nodes.NewAudioOutput()
		g := nodes.NewGraph()

		// Graph ports: audio in 0-1, audio out 2-3, midi in 4, midi out 5.
		seq, err := runtime.Build(&runtime.Plan{
			Nodes: []runtime.PlanNode{
				node(1, rootIn),
				{ID: 2, Unit: g, Ports: g.Ports(), Child: &runtime.Plan{
					Graph: 2,
					Nodes: []runtime.PlanNode{node(3, innerIn), node(4, innerOut)},
					Arcs:  stereoThrough(3, 4),
				}},
				node(5, rootOut),
			},
			Arcs: []domain.Arc{
				arc(1, 0, 2, 0), arc(1, 1, 2, 1),
				arc(2, 2, 5, 0), arc(2, 3, 5, 1),
			},
			Device: &ports.Device{},
		}, testBlock)
		require.NoError(t, err)
		require.Len(t, seq.Children(), 1)
		assert.Len(t, seq.Units(), 5)

		require.NoError(t, e.Publish(seq))
		d := runtime.NewDriver(e, constInput(0.25))
		d.Step(1)
		assert.Equal(t, float32(0.25), d.Peak())
		assert.Equal(t, runtime.StateActive, seq.Children()[0].State())

		g.Suspend(true)
		d.Step(1)
		assert.Equal(t, float32(0.25), d.Peak(), "bypassed graph passes its inputs through")
	})

	t.Run("Midi Through IO Nodes", func(t *testing.T) {
		e := newTestEngine()
		in, out := nodes.NewMidiInput(), nodes.NewMidiOutput()
		seq, err := runtime.Build(&runtime.Plan{
			Nodes:  []runtime.PlanNode{node(1, in), node(2, out)},
			Arcs:   []domain.Arc{arc(1, 0, 2, 0)},
			Device: &ports.Device{},
		}, testBlock)
		require.NoError(t, err)
		require.NoError(t, e.Publish(seq))

		d := runtime.NewDriver(e)
		note := domain.NewMidiMessage(3, domain.MidiNoteOn|1, 60, 100)
		require.True(t, d.SendMidi(note))
		d.Step(1)

		got, ok := d.ReceiveMidi()
		require.True(t, ok)
		assert.Equal(t, note, got)
		_, ok = d.ReceiveMidi()
		assert.False(t, ok)
	})

	t.Run("Run Attaches Until Cancelled", func(t *testing.T) {
		e := newTestEngine()
		d := runtime.NewDriver(e, runtime.WithPeriod(time.Millisecond))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.NoError(t, d.Run(ctx))

		assert.False(t, e.Attached())
		assert.Positive(t, e.Generation())
	})
}
