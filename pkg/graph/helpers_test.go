package graph_test

import (
	"maps"
	"slices"
	"testing"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/aretw0/patchbay/pkg/registry"
	"github.com/stretchr/testify/require"
)

const (
	typeSource  = "test.source"
	typeSink    = "test.sink"
	typeThrough = "test.through"
	typeControl = "test.control"
	typeMidi    = "test.midi"
)

// layouts backs the test provider. Every unit is a silent placeholder with
// the given ports, which is all the manager needs.
var layouts = map[string]domain.PortList{
	typeSource:  domain.Layout().AudioOuts(1).Build(),
	typeSink:    domain.Layout().AudioIns(1).Build(),
	typeThrough: domain.Layout().AudioIns(1).AudioOuts(1).Build(),
	typeControl: domain.Layout().ControlIns(1).ControlOuts(1).Build(),
	typeMidi:    domain.Layout().MidiIns(1).MidiOuts(1).Build(),
}

type layoutProvider struct{}

func (layoutProvider) Name() string { return "test" }

func (layoutProvider) KnownTypes() []string {
	return slices.Sorted(maps.Keys(layouts))
}

func (layoutProvider) Describe(id string) (domain.NodeDescription, bool) {
	l, ok := layouts[id]
	if !ok {
		return domain.NodeDescription{}, false
	}
	return domain.NodeDescription{Identifier: id, Name: id, Format: domain.FormatPlugin, Ports: l.Clone()}, true
}

func (layoutProvider) Instantiate(id string) (ports.Unit, bool) {
	l, ok := layouts[id]
	if !ok {
		return nil, false
	}
	return nodes.NewMissing(l), true
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterProvider(nodes.NewProvider()))
	require.NoError(t, reg.RegisterProvider(layoutProvider{}))
	reg.Seal()
	return reg
}

func newManager(t *testing.T, opts ...graph.Option) *graph.Manager {
	t.Helper()
	return graph.New(newRegistry(t), opts...)
}

func add(t *testing.T, m *graph.Manager, identifier string, parent domain.NodeID) domain.NodeID {
	t.Helper()
	n, err := m.AddNode(domain.NodeDescription{Identifier: identifier}, parent)
	require.NoError(t, err)
	return n.ID
}
