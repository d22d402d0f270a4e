package nodes

import (
	"io"
	"log/slog"
	"sort"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// ProviderName is the name the built-in provider registers under.
const ProviderName = "builtin"

type entry struct {
	name     string
	category string
	format   domain.Format
	create   func(p *Provider) ports.Unit
}

// Provider is the catalog of built-in node types. Every identifier maps to
// a constructor for one unit variant.
type Provider struct {
	compiler ScriptCompiler
	logger   *slog.Logger
	catalog  map[string]entry
}

// ProviderOption configures the built-in provider.
type ProviderOption func(*Provider)

// WithScriptCompiler lets script nodes compile their source.
func WithScriptCompiler(c ScriptCompiler) ProviderOption {
	return func(p *Provider) {
		p.compiler = c
	}
}

// WithLogger sets the logger used by units with background I/O (OSC).
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates the built-in provider.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	p.catalog = map[string]entry{
		domain.TypeAudioRouter: {"Audio Router", "Routing", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewAudioRouter() }},
		domain.TypeMidiChannelSplitter: {"MIDI Channel Splitter", "MIDI", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewMidiChannelSplitter() }},
		domain.TypeMidiProgramMap: {"MIDI Program Map", "MIDI", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewMidiProgramMap() }},
		domain.TypeMidiRouter: {"MIDI Router", "MIDI", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewMidiRouter() }},
		domain.TypeMidiMonitor: {"MIDI Monitor", "MIDI", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewMidiMonitor() }},
		domain.TypeOSCSender: {"OSC Sender", "OSC", domain.FormatInternal,
			func(p *Provider) ports.Unit { return NewOSCSender(p.logger) }},
		domain.TypeOSCReceiver: {"OSC Receiver", "OSC", domain.FormatInternal,
			func(p *Provider) ports.Unit { return NewOSCReceiver(p.logger) }},
		domain.TypeScript: {"Script", "Scripting", domain.FormatInternal,
			func(p *Provider) ports.Unit { return NewScript(p.compiler) }},
		domain.TypeMissing: {"Missing Node", "Internal", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewMissing(nil) }},
		domain.TypeGraph: {"Graph", "Graphs", domain.FormatGraph,
			func(*Provider) ports.Unit { return NewGraph() }},
		domain.TypeAudioInput: {"Audio Input", "IO", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewAudioInput() }},
		domain.TypeAudioOutput: {"Audio Output", "IO", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewAudioOutput() }},
		domain.TypeMidiInput: {"MIDI Input", "IO", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewMidiInput() }},
		domain.TypeMidiOutput: {"MIDI Output", "IO", domain.FormatInternal,
			func(*Provider) ports.Unit { return NewMidiOutput() }},
	}
	return p
}

func (p *Provider) Name() string { return ProviderName }

// KnownTypes returns the built-in identifiers in sorted order.
func (p *Provider) KnownTypes() []string {
	ids := make([]string, 0, len(p.catalog))
	for id := range p.catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe reports the default layout and properties of a built-in type.
func (p *Provider) Describe(identifier string) (domain.NodeDescription, bool) {
	e, ok := p.catalog[identifier]
	if !ok {
		return domain.NodeDescription{}, false
	}
	unit := e.create(p)
	return domain.NodeDescription{
		Identifier: identifier,
		Name:       e.name,
		Format:     e.format,
		Category:   e.category,
		Ports:      unit.Ports(),
		Properties: domain.Properties{Name: e.name},
	}, true
}

func (p *Provider) Instantiate(identifier string) (ports.Unit, bool) {
	e, ok := p.catalog[identifier]
	if !ok {
		return nil, false
	}
	return e.create(p), true
}
