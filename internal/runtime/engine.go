package runtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// PublishPolicy decides what happens when a sequence is published while the
// previous one has not been picked up by the audio thread yet.
type PublishPolicy string

const (
	// PolicyReplace swaps the pending sequence out; it drains like any other.
	PolicyReplace PublishPolicy = "replace"
	// PolicyQueue holds the newest sequence back until the pending one has
	// been observed. Only the newest queued sequence is kept.
	PolicyQueue PublishPolicy = "queue"
)

// ErrAttached is returned by operations that need the audio thread stopped.
var ErrAttached = errors.New("engine is attached to an audio thread")

type format struct {
	sampleRate float64
	blockSize  int
}

type drainEntry struct {
	seq *Sequence
	gen uint64
}

// Stats is a point-in-time copy of the engine counters.
type Stats struct {
	Generation uint64 `json:"generation"`
	Blocks     uint64 `json:"blocks"`
	IdleBlocks uint64 `json:"idle_blocks"`
	Mismatched uint64 `json:"mismatched_blocks"`
	Published  uint64 `json:"published"`
	Replaced   uint64 `json:"replaced"`
	Queued     uint64 `json:"queued"`
	Disposed   uint64 `json:"disposed"`
	Released   uint64 `json:"released"`
	Draining   int    `json:"draining"`
	Pending    bool   `json:"pending"`
	Attached   bool   `json:"attached"`
	ActiveLen  int    `json:"active_len"`
}

// Engine runs the published render sequence once per audio block.
//
// Process is the only method the audio thread may call. Every other method
// belongs to the control thread; they serialize on an internal mutex that
// the audio thread never touches.
type Engine struct {
	active     atomic.Pointer[Sequence]
	generation atomic.Uint64
	attached   atomic.Bool

	// Audio thread only.
	lastRendered *Sequence

	blocks     atomic.Uint64
	idleBlocks atomic.Uint64
	mismatched atomic.Uint64
	published  atomic.Uint64
	replaced   atomic.Uint64
	queuedN    atomic.Uint64
	disposed   atomic.Uint64
	released   atomic.Uint64

	mu       sync.Mutex
	format   format
	prepared map[ports.Unit]format
	policy   PublishPolicy
	queued   *Sequence
	draining []drainEntry
	closed   bool
	reported uint64

	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine. It is only used from the
// control thread.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFormat sets the initial sample rate and block size.
func WithFormat(sampleRate float64, blockSize int) Option {
	return func(e *Engine) {
		e.format = format{sampleRate: sampleRate, blockSize: blockSize}
	}
}

// WithPolicy sets the publish policy. The default is PolicyReplace.
func WithPolicy(p PublishPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithHooks registers observers for publish and dispose.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// NewEngine creates an engine with no active sequence. It renders silence
// until the first Publish.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		format:   format{sampleRate: 48000, blockSize: 256},
		prepared: make(map[ports.Unit]format),
		policy:   PolicyReplace,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Format returns the current sample rate and block size.
func (e *Engine) Format() (float64, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format.sampleRate, e.format.blockSize
}

// SetFormat changes the sample rate and block size. Sequences must be rebuilt
// for the new block size and republished; their units are prepared again
// because the format changed.
func (e *Engine) SetFormat(sampleRate float64, blockSize int) error {
	if sampleRate <= 0 || blockSize <= 0 {
		return fmt.Errorf("invalid format %v Hz / %d frames", sampleRate, blockSize)
	}
	if e.attached.Load() {
		return ErrAttached
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.format = format{sampleRate: sampleRate, blockSize: blockSize}
	return nil
}

// Attach marks an audio thread as running. From now on superseded sequences
// are only disposed after the generation counter moves.
func (e *Engine) Attach() { e.attached.Store(true) }

// Detach marks the audio thread as stopped. The caller guarantees that no
// Process call is in flight. Draining sequences are disposed right away.
func (e *Engine) Detach() {
	e.attached.Store(false)
	e.Collect()
}

// Attached reports whether an audio thread is running.
func (e *Engine) Attached() bool { return e.attached.Load() }

// Generation returns the number of blocks the audio thread has completed.
func (e *Engine) Generation() uint64 { return e.generation.Load() }

// Active returns the published sequence, which may not have been picked up
// by the audio thread yet.
func (e *Engine) Active() *Sequence { return e.active.Load() }

// Process renders one block. It is called by the audio thread only and
// never blocks or allocates. Outputs are cleared before rendering.
func (e *Engine) Process(audioIn, audioOut [][]float32, midiIn, midiOut *domain.MidiBuffer) {
	for _, ch := range audioOut {
		clear(ch)
	}
	if midiOut != nil {
		midiOut.Clear()
	}
	seq := e.active.Load()
	if seq == nil {
		e.idleBlocks.Add(1)
		e.generation.Add(1)
		return
	}
	if seq != e.lastRendered {
		seq.activate()
		e.lastRendered = seq
	}
	frames := seq.blockSize
	if len(audioOut) > 0 {
		frames = len(audioOut[0])
	} else if len(audioIn) > 0 {
		frames = len(audioIn[0])
	}
	if frames != seq.blockSize {
		e.mismatched.Add(1)
		e.generation.Add(1)
		return
	}
	if dev := seq.device; dev != nil {
		dev.AudioIn = audioIn
		dev.AudioOut = audioOut
		dev.MidiIn = midiIn
		dev.MidiOut = midiOut
		dev.Frames = frames
	}
	seq.Render()
	e.blocks.Add(1)
	e.generation.Add(1)
}

// Publish hands seq to the audio thread. Its units are prepared first, on
// the calling goroutine. If the previously published sequence has not been
// observed yet, the publish policy decides whether seq replaces it or
// waits in the queue.
func (e *Engine) Publish(seq *Sequence) error {
	return e.publish(seq, false)
}

// TryPublish is Publish without the policy: it returns ErrPublishRace and
// leaves everything untouched when the previous sequence is still pending.
func (e *Engine) TryPublish(seq *Sequence) error {
	return e.publish(seq, true)
}

func (e *Engine) publish(seq *Sequence, strict bool) error {
	if seq == nil {
		return errors.New("nil render sequence")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrEngineClosed
	}
	if seq.blockSize != e.format.blockSize {
		return fmt.Errorf("sequence built for %d frames, engine runs %d", seq.blockSize, e.format.blockSize)
	}
	if seq.State() != StateIdle {
		return fmt.Errorf("sequence %d already published (%s)", seq.id, seq.State())
	}
	e.collectLocked()

	if e.pendingLocked() {
		if strict {
			return domain.ErrPublishRace
		}
		if e.policy == PolicyQueue {
			e.prepareLocked(seq)
			seq.setState(StatePreparing)
			prev := e.queued
			e.queued = seq
			e.queuedN.Add(1)
			if prev != nil {
				e.discardLocked(prev)
			}
			e.logger.Debug("sequence queued", "sequence", seq.id)
			return nil
		}
		e.replaced.Add(1)
	}
	e.prepareLocked(seq)
	e.swapLocked(seq)
	e.releaseRetiredLocked(seq)
	return nil
}

// pendingLocked reports whether the active sequence is still waiting for the
// audio thread.
func (e *Engine) pendingLocked() bool {
	cur := e.active.Load()
	return e.attached.Load() && cur != nil && cur.State() == StatePreparing
}

func (e *Engine) prepareLocked(seq *Sequence) {
	seq.setState(StatePreparing)
	for _, u := range seq.units {
		if f, ok := e.prepared[u]; ok && f == e.format {
			continue
		}
		u.Prepare(e.format.sampleRate, e.format.blockSize)
		e.prepared[u] = e.format
	}
}

func (e *Engine) swapLocked(seq *Sequence) {
	old := e.active.Swap(seq)
	gen := e.generation.Load()
	e.published.Add(1)
	if old != nil {
		old.setState(StateDraining)
		e.draining = append(e.draining, drainEntry{seq: old, gen: gen})
	}
	e.logger.Debug("sequence published", "sequence", seq.id, "generation", gen, "nodes", len(seq.order))
	if e.hooks.OnPublish != nil {
		e.hooks.OnPublish(e.info(seq, gen))
	}
	if !e.attached.Load() {
		e.disposeReadyLocked()
	}
}

// Collect disposes every draining sequence the audio thread has moved past
// and promotes a queued sequence once the pending one has been observed.
// It returns the number of sequences disposed.
func (e *Engine) Collect() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collectLocked()
}

func (e *Engine) collectLocked() int {
	if e.queued != nil && !e.pendingLocked() {
		next := e.queued
		e.queued = nil
		e.swapLocked(next)
		e.releaseRetiredLocked(next)
	}
	n := e.disposeReadyLocked()
	if d := e.mismatched.Load(); d != e.reported {
		e.logger.Warn("blocks skipped on frame count mismatch", "total", d)
		e.reported = d
	}
	return n
}

func (e *Engine) disposeReadyLocked() int {
	gen := e.generation.Load()
	detached := !e.attached.Load()
	keep := e.draining[:0]
	var done []*Sequence
	for _, d := range e.draining {
		if detached || gen > d.gen {
			done = append(done, d.seq)
			continue
		}
		keep = append(keep, d)
	}
	clear(e.draining[len(keep):])
	e.draining = keep
	if len(done) == 0 {
		return 0
	}
	live := e.liveLocked()
	for _, seq := range done {
		seq.setState(StateDisposed)
		e.releaseLocked(seq.units, live)
		e.disposed.Add(1)
		e.logger.Debug("sequence disposed", "sequence", seq.id, "generation", gen)
		if e.hooks.OnDispose != nil {
			e.hooks.OnDispose(e.info(seq, gen))
		}
	}
	return len(done)
}

// discardLocked drops a queued sequence that never became active.
func (e *Engine) discardLocked(seq *Sequence) {
	seq.setState(StateDisposed)
	live := e.liveLocked()
	e.releaseLocked(seq.units, live)
	e.releaseLocked(seq.retired, live)
	e.disposed.Add(1)
}

// releaseRetiredLocked releases units removed from the graph that no live
// sequence references. Those still referenced are released when their last
// sequence is disposed.
func (e *Engine) releaseRetiredLocked(seq *Sequence) {
	if len(seq.retired) == 0 {
		return
	}
	e.releaseLocked(seq.retired, e.liveLocked())
}

func (e *Engine) liveLocked() map[ports.Unit]struct{} {
	live := make(map[ports.Unit]struct{})
	add := func(s *Sequence) {
		if s == nil {
			return
		}
		for _, u := range s.units {
			live[u] = struct{}{}
		}
	}
	add(e.active.Load())
	add(e.queued)
	for _, d := range e.draining {
		add(d.seq)
	}
	return live
}

func (e *Engine) releaseLocked(units []ports.Unit, live map[ports.Unit]struct{}) {
	for _, u := range units {
		if _, ok := live[u]; ok {
			continue
		}
		if _, ok := e.prepared[u]; !ok {
			// Never prepared or already released.
			continue
		}
		delete(e.prepared, u)
		u.ReleaseResources()
		e.released.Add(1)
	}
}

func (e *Engine) info(seq *Sequence, gen uint64) domain.SequenceInfo {
	return domain.SequenceInfo{
		Generation: gen,
		Order:      seq.Order(),
		SampleRate: e.format.sampleRate,
		BlockSize:  seq.blockSize,
	}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		Generation: e.generation.Load(),
		Blocks:     e.blocks.Load(),
		IdleBlocks: e.idleBlocks.Load(),
		Mismatched: e.mismatched.Load(),
		Published:  e.published.Load(),
		Replaced:   e.replaced.Load(),
		Queued:     e.queuedN.Load(),
		Disposed:   e.disposed.Load(),
		Released:   e.released.Load(),
		Draining:   len(e.draining),
		Pending:    e.pendingLocked() || e.queued != nil,
		Attached:   e.attached.Load(),
	}
	if seq := e.active.Load(); seq != nil {
		s.ActiveLen = seq.Len()
	}
	return s
}

// Close detaches the engine, unpublishes the active sequence and releases
// every unit it still holds. The audio thread must already be stopped.
func (e *Engine) Close() error {
	e.attached.Store(false)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.queued != nil {
		q := e.queued
		e.queued = nil
		e.discardLocked(q)
	}
	if old := e.active.Swap(nil); old != nil {
		old.setState(StateDraining)
		e.draining = append(e.draining, drainEntry{seq: old, gen: e.generation.Load()})
	}
	e.disposeReadyLocked()
	e.logger.Info("engine closed", "blocks", e.blocks.Load(), "published", e.published.Load())
	return nil
}
