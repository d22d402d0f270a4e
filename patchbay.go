package patchbay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/aretw0/patchbay/pkg/registry"
	"github.com/aretw0/patchbay/pkg/session"
)

// PublishPolicy decides what the engine does with a sequence published
// while the previous one is still pending.
type PublishPolicy = runtime.PublishPolicy

const (
	PolicyReplace = runtime.PolicyReplace
	PolicyQueue   = runtime.PolicyQueue
)

// ErrNoStore is returned by Load and Save on a host built without a store.
var ErrNoStore = errors.New("host has no snapshot store")

// Host wires a registry, a graph manager and an engine into one patch.
// It is the high-level entry point for embedding patchbay.
type Host struct {
	Registry *registry.Registry
	Graph    *graph.Manager
	Engine   *runtime.Engine
	Sessions *session.Manager

	logger *slog.Logger
}

type hostConfig struct {
	name        string
	logger      *slog.Logger
	providers   []ports.Provider
	compiler    nodes.ScriptCompiler
	store       ports.SnapshotStore
	sessionOpts []session.Option
	sampleRate  float64
	blockSize   int
	policy      PublishPolicy
	hooks       domain.LifecycleHooks
}

// Option defines a functional option for configuring the Host.
type Option func(*hostConfig)

// WithName names the patch. Logs carry it as the "patch" attribute.
func WithName(name string) Option {
	return func(c *hostConfig) { c.name = name }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *hostConfig) { c.logger = logger }
}

// WithProvider registers an extra node provider after the built-in one.
// Providers are consulted in the order they are given.
func WithProvider(p ports.Provider) Option {
	return func(c *hostConfig) { c.providers = append(c.providers, p) }
}

// WithScriptCompiler lets script nodes compile their source.
func WithScriptCompiler(compiler nodes.ScriptCompiler) Option {
	return func(c *hostConfig) { c.compiler = compiler }
}

// WithStore enables Load and Save through a session manager on store.
func WithStore(store ports.SnapshotStore, opts ...session.Option) Option {
	return func(c *hostConfig) {
		c.store = store
		c.sessionOpts = opts
	}
}

// WithFormat sets the initial sample rate and block size.
func WithFormat(sampleRate float64, blockSize int) Option {
	return func(c *hostConfig) {
		c.sampleRate = sampleRate
		c.blockSize = blockSize
	}
}

// WithPublishPolicy sets the engine publish policy. Defaults to PolicyReplace.
func WithPublishPolicy(p PublishPolicy) Option {
	return func(c *hostConfig) { c.policy = p }
}

// WithLifecycleHooks registers observability hooks on the graph manager and
// the engine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *hostConfig) { c.hooks = hooks }
}

// New builds a host with an empty patch. The registry is sealed before New
// returns.
func New(opts ...Option) (*Host, error) {
	cfg := hostConfig{
		sampleRate: 48000,
		blockSize:  256,
		policy:     PolicyReplace,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger := cfg.logger
	if cfg.name != "" {
		logger = logger.With("patch", cfg.name)
	}

	reg := registry.New(registry.WithLogger(logger))
	builtin := nodes.NewProvider(nodes.WithScriptCompiler(cfg.compiler), nodes.WithLogger(logger))
	for _, p := range append([]ports.Provider{builtin}, cfg.providers...) {
		if err := reg.RegisterProvider(p); err != nil {
			return nil, fmt.Errorf("register provider %q: %w", p.Name(), err)
		}
	}
	reg.Seal()

	engine := runtime.NewEngine(
		runtime.WithLogger(logger),
		runtime.WithFormat(cfg.sampleRate, cfg.blockSize),
		runtime.WithPolicy(cfg.policy),
		runtime.WithHooks(cfg.hooks),
	)
	gm := graph.New(reg,
		graph.WithLogger(cfg.logger),
		graph.WithName(cfg.name),
		graph.WithEngine(engine),
		graph.WithHooks(cfg.hooks),
		graph.WithBlockSize(cfg.blockSize),
	)

	h := &Host{Registry: reg, Graph: gm, Engine: engine, logger: logger}
	if cfg.store != nil {
		sopts := append([]session.Option{session.WithLogger(logger)}, cfg.sessionOpts...)
		h.Sessions = session.NewManager(cfg.store, sopts...)
	}
	return h, nil
}

// Load replaces the patch with the stored snapshot called name and
// publishes it. Arcs the graph rejects are reported in the joined error;
// the rest of the patch is still applied.
func (h *Host) Load(ctx context.Context, name string) error {
	if h.Sessions == nil {
		return ErrNoStore
	}
	return h.Sessions.Restore(ctx, name, h.Graph)
}

// Save stores the patch, without transient properties, under name.
func (h *Host) Save(ctx context.Context, name string) error {
	if h.Sessions == nil {
		return ErrNoStore
	}
	return h.Sessions.SaveEditor(ctx, name, h.Graph)
}

// Apply replaces the patch with snap.
func (h *Host) Apply(snap *domain.Snapshot) error {
	return h.Graph.ApplySnapshot(snap)
}

// NewDriver returns a simulated audio device clocking the engine.
func (h *Host) NewDriver(opts ...runtime.DriverOption) *runtime.Driver {
	return runtime.NewDriver(h.Engine, append([]runtime.DriverOption{runtime.WithDriverLogger(h.logger)}, opts...)...)
}

// Run publishes the current patch and clocks it with a simulated device
// until ctx is done.
func (h *Host) Run(ctx context.Context, opts ...runtime.DriverOption) error {
	if err := h.Graph.Commit(); err != nil {
		return err
	}
	return h.NewDriver(opts...).Run(ctx)
}

// Close stops event delivery and releases every unit. No audio thread may
// be running.
func (h *Host) Close() error {
	h.Graph.Events().Close()
	return h.Engine.Close()
}
