// Package metrics exports simulator run statistics as Prometheus
// metrics (SPEC_FULL.md §6.3), alongside a plain in-process snapshot
// for the CLI's end-of-run summary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks per-run simulator statistics and mirrors them into a
// Prometheus registry so a long-running driver can scrape them.
type Metrics struct {
	cyclesTotal              prometheus.Counter
	committedInstructions    prometheus.Counter
	mispredictionsTotal      prometheus.Counter
	robStallCyclesTotal      prometheus.Counter
	rsStallCyclesTotal       prometheus.Counter
	bubbleCyclesTotal        prometheus.Counter
	ipcGauge                 prometheus.Gauge
	branchPredictionAccuracy prometheus.Gauge
	btbHitRate               prometheus.Gauge

	cycles         uint64
	retired        uint64
	mispredictions uint64
	robStalls      uint64
	rsStalls       uint64
	bubbleCycles   uint64
}

// New creates a Metrics instance and registers its collectors with reg.
// Pass prometheus.NewRegistry() for an isolated registry (tests,
// multiple simulator instances in one process), or
// prometheus.DefaultRegisterer for a single CLI run.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tomasim_cycles_total",
			Help: "Total simulated clock cycles.",
		}),
		committedInstructions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tomasim_committed_instructions_total",
			Help: "Total instructions committed from the reorder buffer.",
		}),
		mispredictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tomasim_mispredictions_total",
			Help: "Total resolved branches that were mispredicted.",
		}),
		robStallCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tomasim_rob_stall_cycles_total",
			Help: "Cycles Issue stalled because the reorder buffer was full.",
		}),
		rsStallCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tomasim_rs_stall_cycles_total",
			Help: "Cycles Issue stalled because no reservation station was free.",
		}),
		bubbleCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tomasim_bubble_cycles_total",
			Help: "Cycles where Issue, Execute, and Commit all made no progress.",
		}),
		ipcGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tomasim_ipc",
			Help: "Instructions committed per simulated cycle, as of the last Step.",
		}),
		branchPredictionAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tomasim_branch_prediction_accuracy",
			Help: "Fraction of resolved branches whose predicted direction/target matched.",
		}),
		btbHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tomasim_btb_hit_rate",
			Help: "Fraction of branch predictions served by an existing BTB entry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.cyclesTotal,
			m.committedInstructions,
			m.mispredictionsTotal,
			m.robStallCyclesTotal,
			m.rsStallCyclesTotal,
			m.bubbleCyclesTotal,
			m.ipcGauge,
			m.branchPredictionAccuracy,
			m.btbHitRate,
		)
	}
	return m
}

// Cycle records one simulated cycle elapsing.
func (m *Metrics) Cycle() {
	m.cycles++
	m.cyclesTotal.Inc()
}

// Retire records one instruction committing.
func (m *Metrics) Retire() {
	m.retired++
	m.committedInstructions.Inc()
	if m.cycles > 0 {
		m.ipcGauge.Set(float64(m.retired) / float64(m.cycles))
	}
}

// Misprediction records one resolved branch misprediction.
func (m *Metrics) Misprediction() {
	m.mispredictions++
	m.mispredictionsTotal.Inc()
}

// ROBStall records one cycle where Issue stalled on a full ROB.
func (m *Metrics) ROBStall() {
	m.robStalls++
	m.robStallCyclesTotal.Inc()
}

// RSStall records one cycle where Issue stalled on exhausted reservation stations.
func (m *Metrics) RSStall() {
	m.rsStalls++
	m.rsStallCyclesTotal.Inc()
}

// BubbleCycle records one cycle where no stage made progress.
func (m *Metrics) BubbleCycle() {
	m.bubbleCycles++
	m.bubbleCyclesTotal.Inc()
}

// ObservePredictor refreshes the accuracy/BTB-hit-rate gauges from a
// branch predictor's running statistics. Purely observational — never
// read back by the core.
func (m *Metrics) ObservePredictor(accuracy, btbHitRate float64) {
	m.branchPredictionAccuracy.Set(accuracy)
	m.btbHitRate.Set(btbHitRate)
}

// Snapshot is a point-in-time, Prometheus-independent view of run
// statistics for the CLI summary and tests.
type Snapshot struct {
	Cycles              uint64
	InstructionsRetired uint64
	Mispredictions      uint64
	ROBStallCycles      uint64
	RSStallCycles       uint64
	BubbleCycles        uint64
	IPC                 float64
}

// Snapshot returns the current counters, plus derived IPC.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Cycles:              m.cycles,
		InstructionsRetired: m.retired,
		Mispredictions:      m.mispredictions,
		ROBStallCycles:      m.robStalls,
		RSStallCycles:       m.rsStalls,
		BubbleCycles:        m.bubbleCycles,
	}
	if s.Cycles > 0 {
		s.IPC = float64(s.InstructionsRetired) / float64(s.Cycles)
	}
	return s
}
