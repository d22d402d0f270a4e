package domain_test

import (
	"testing"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPorts(t *testing.T) {
	out := func(pt domain.PortType) domain.Port { return domain.Port{Flow: domain.FlowOutput, Type: pt} }
	in := func(pt domain.PortType) domain.Port { return domain.Port{Flow: domain.FlowInput, Type: pt} }

	tests := []struct {
		name string
		src  domain.Port
		dst  domain.Port
		want domain.ReasonCode
	}{
		{"audio to audio", out(domain.PortAudio), in(domain.PortAudio), domain.ReasonNone},
		{"midi to midi", out(domain.PortMidi), in(domain.PortMidi), domain.ReasonNone},
		{"osc to osc", out(domain.PortOSC), in(domain.PortOSC), domain.ReasonNone},
		{"control automates audio", out(domain.PortControl), in(domain.PortAudio), domain.ReasonNone},
		{"control automates midi", out(domain.PortControl), in(domain.PortMidi), domain.ReasonNone},
		{"audio to control", out(domain.PortAudio), in(domain.PortControl), domain.ReasonTypeMismatch},
		{"audio to midi", out(domain.PortAudio), in(domain.PortMidi), domain.ReasonTypeMismatch},
		{"input as source", in(domain.PortAudio), in(domain.PortAudio), domain.ReasonDirection},
		{"output as destination", out(domain.PortAudio), out(domain.PortAudio), domain.ReasonDirection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CheckPorts(tt.src, tt.dst))
		})
	}
}

func TestLayoutBuilder(t *testing.T) {
	ports := domain.Layout().AudioIns(2, "L", "R").AudioOuts(2).MidiIns(1).Build()
	require.Len(t, ports, 5)

	for i, p := range ports {
		assert.Equal(t, uint32(i), p.Index)
	}
	assert.Equal(t, "L", ports[0].Name)
	assert.Equal(t, "audio output 2", ports[3].Name)
	assert.Equal(t, 1, ports[3].Channel)
	assert.Equal(t, 2, ports.Count(domain.PortAudio, domain.FlowOutput))
	assert.Equal(t, 1, ports.Nth(3))
	assert.Equal(t, 0, ports.Nth(4))
	assert.Equal(t, -1, ports.Nth(9))

	_, ok := ports.Get(7)
	assert.False(t, ok)
}

func TestPortType_IsSignal(t *testing.T) {
	assert.True(t, domain.PortAudio.IsSignal())
	assert.True(t, domain.PortMidi.IsSignal())
	assert.False(t, domain.PortControl.IsSignal())
	assert.False(t, domain.PortType("cv").Valid())
}
