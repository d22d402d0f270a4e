// Package metrics exposes engine and graph counters to Prometheus.
package metrics

import (
	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "patchbay"

// StatsSource is satisfied by *runtime.Engine.
type StatsSource interface {
	Stats() runtime.Stats
}

// GraphSource is satisfied by *graph.Manager.
type GraphSource interface {
	Len() int
	Dirty() bool
}

// Collector reads engine stats at scrape time. It never touches the audio
// thread: Stats only loads atomics and takes the control lock.
type Collector struct {
	engine StatsSource
	graph  GraphSource

	blocks     *prometheus.Desc
	idle       *prometheus.Desc
	mismatched *prometheus.Desc
	generation *prometheus.Desc
	published  *prometheus.Desc
	replaced   *prometheus.Desc
	queued     *prometheus.Desc
	disposed   *prometheus.Desc
	released   *prometheus.Desc
	draining   *prometheus.Desc
	pending    *prometheus.Desc
	attached   *prometheus.Desc
	activeLen  *prometheus.Desc
	nodes      *prometheus.Desc
	dirty      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func desc(name, help string, labels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
}

// NewCollector builds a collector for one patch. graph may be nil.
func NewCollector(patch string, engine StatsSource, graph GraphSource) *Collector {
	l := prometheus.Labels{"patch": patch}
	return &Collector{
		engine:     engine,
		graph:      graph,
		blocks:     desc("engine_blocks_total", "Audio blocks rendered with an active sequence.", l),
		idle:       desc("engine_idle_blocks_total", "Audio blocks rendered as silence because nothing was published.", l),
		mismatched: desc("engine_mismatched_blocks_total", "Audio blocks skipped because the frame count did not match the block size.", l),
		generation: desc("engine_generation", "Blocks completed by the audio thread.", l),
		published:  desc("engine_sequences_published_total", "Render sequences published.", l),
		replaced:   desc("engine_sequences_replaced_total", "Pending sequences superseded before the audio thread picked them up.", l),
		queued:     desc("engine_sequences_queued_total", "Sequences held back by the queue policy.", l),
		disposed:   desc("engine_sequences_disposed_total", "Retired sequences disposed on the control thread.", l),
		released:   desc("engine_units_released_total", "Processing units released after their last sequence was disposed.", l),
		draining:   desc("engine_sequences_draining", "Retired sequences waiting for the audio thread to move on.", l),
		pending:    desc("engine_sequence_pending", "1 while a published sequence has not been picked up.", l),
		attached:   desc("engine_attached", "1 while an audio driver is attached.", l),
		activeLen:  desc("engine_active_units", "Steps in the active render sequence.", l),
		nodes:      desc("graph_nodes", "Nodes in the patch, nested graphs included.", l),
		dirty:      desc("graph_dirty", "1 while the topology has uncommitted edits.", l),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.blocks, c.idle, c.mismatched, c.generation, c.published, c.replaced,
		c.queued, c.disposed, c.released, c.draining, c.pending, c.attached, c.activeLen,
	} {
		ch <- d
	}
	if c.graph != nil {
		ch <- c.nodes
		ch <- c.dirty
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.engine.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.blocks, s.Blocks)
	counter(c.idle, s.IdleBlocks)
	counter(c.mismatched, s.Mismatched)
	counter(c.published, s.Published)
	counter(c.replaced, s.Replaced)
	counter(c.queued, s.Queued)
	counter(c.disposed, s.Disposed)
	counter(c.released, s.Released)
	gauge(c.generation, float64(s.Generation))
	gauge(c.draining, float64(s.Draining))
	gauge(c.pending, boolValue(s.Pending))
	gauge(c.attached, boolValue(s.Attached))
	gauge(c.activeLen, float64(s.ActiveLen))

	if c.graph != nil {
		gauge(c.nodes, float64(c.graph.Len()))
		gauge(c.dirty, boolValue(c.graph.Dirty()))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors plus the given collectors.
func NewRegistry(cs ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(cs...)
	return reg
}
