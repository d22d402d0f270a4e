package nodes

import (
	"fmt"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// ScriptBody is the real-time part of a user script. Its Process has the
// same constraints as ports.Unit.Process.
type ScriptBody interface {
	Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer)
}

// ScriptBodyFunc adapts a function to ScriptBody.
type ScriptBodyFunc func(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer)

func (f ScriptBodyFunc) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	f(in, out, midiIn, midiOut)
}

// ScriptCompiler turns script source into a body. The host ships none; a
// language runtime plugs in through the provider.
type ScriptCompiler func(source string) (ScriptBody, error)

// ScriptConfig sizes a script node and carries its source.
type ScriptConfig struct {
	AudioIns    int    `mapstructure:"audio_ins"`
	AudioOuts   int    `mapstructure:"audio_outs"`
	ControlIns  int    `mapstructure:"control_ins"`
	ControlOuts int    `mapstructure:"control_outs"`
	MidiIns     int    `mapstructure:"midi_ins"`
	MidiOuts    int    `mapstructure:"midi_outs"`
	Source      string `mapstructure:"source"`
}

type scriptSlot struct{ body ScriptBody }

// Script hosts an opaque ScriptBody. Without a body it passes its inputs
// through, which is also its bypass policy.
type Script struct {
	Base
	cfg      ScriptConfig
	compiler ScriptCompiler
	body     atomic.Pointer[scriptSlot]
}

func NewScript(compiler ScriptCompiler) *Script {
	s := &Script{
		cfg:      ScriptConfig{AudioIns: 2, AudioOuts: 2, MidiIns: 1, MidiOuts: 1},
		compiler: compiler,
	}
	s.applyLayout()
	return s
}

func (s *Script) applyLayout() {
	c := s.cfg
	s.setLayout(domain.Layout().
		AudioIns(c.AudioIns).AudioOuts(c.AudioOuts).
		ControlIns(c.ControlIns).ControlOuts(c.ControlOuts).
		MidiIns(c.MidiIns).MidiOuts(c.MidiOuts).
		Build())
}

func (s *Script) Configure(props domain.Properties) error {
	cfg := s.cfg
	if err := decodeConfig(props, &cfg); err != nil {
		return err
	}
	for _, n := range []int{cfg.AudioIns, cfg.AudioOuts, cfg.ControlIns, cfg.ControlOuts, cfg.MidiIns, cfg.MidiOuts} {
		if n < 0 || n > 32 {
			return fmt.Errorf("script port count %d out of range", n)
		}
	}
	s.cfg = cfg
	s.applyLayout()
	if cfg.Source != "" && s.compiler != nil {
		body, err := s.compiler(cfg.Source)
		if err != nil {
			return fmt.Errorf("compile script: %w", err)
		}
		s.SetBody(body)
	}
	return nil
}

// SetBody swaps the running body. Safe from any thread; nil restores pass-through.
func (s *Script) SetBody(body ScriptBody) {
	if body == nil {
		s.body.Store(nil)
		return
	}
	s.body.Store(&scriptSlot{body: body})
}

// Source returns the configured script source.
func (s *Script) Source() string { return s.cfg.Source }

func (s *Script) Process(in, out *ports.Buffers, midiIn, midiOut []*domain.MidiBuffer) {
	slot := s.body.Load()
	if slot == nil || s.Suspended() {
		passThrough(in, out, midiIn, midiOut)
		return
	}
	slot.body.Process(in, out, midiIn, midiOut)
}
