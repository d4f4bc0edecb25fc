// Package pipeline implements pipeline metrics.
package pipeline

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/arpfuzzer/internal/metrics"
)

// Metrics contains per-pipeline counters. Every increment is mirrored to the
// Prometheus collectors labelled with the interface name.
type Metrics struct {
	Interface string

	Received     atomic.Uint64
	Short        atomic.Uint64
	Filtered     atomic.Uint64
	Queued       atomic.Uint64
	Notified     atomic.Uint64
	NotifyErrors atomic.Uint64

	received prometheus.Counter
	short    prometheus.Counter
	filtered prometheus.Counter
	queued   prometheus.Counter
	notified prometheus.Counter
	notifyKO prometheus.Counter
	depth    prometheus.Gauge
	state    prometheus.Gauge
}

// NewMetrics creates a new metrics instance bound to iface.
func NewMetrics(iface string) *Metrics {
	return &Metrics{
		Interface: iface,
		received:  metrics.FramesReceivedTotal.WithLabelValues(iface),
		short:     metrics.FramesDroppedTotal.WithLabelValues(iface, metrics.DropReasonShort),
		filtered:  metrics.FramesDroppedTotal.WithLabelValues(iface, metrics.DropReasonFiltered),
		queued:    metrics.FramesQueuedTotal.WithLabelValues(iface),
		notified:  metrics.NotificationsTotal.WithLabelValues(iface, metrics.ResultOK),
		notifyKO:  metrics.NotificationsTotal.WithLabelValues(iface, metrics.ResultError),
		depth:     metrics.QueueDepth.WithLabelValues(iface),
		state:     metrics.PipelineState.WithLabelValues(iface),
	}
}

func (m *Metrics) incReceived() { m.Received.Add(1); m.received.Inc() }
func (m *Metrics) incShort()    { m.Short.Add(1); m.short.Inc() }
func (m *Metrics) incFiltered() { m.Filtered.Add(1); m.filtered.Inc() }

func (m *Metrics) incQueued(depth int) {
	m.Queued.Add(1)
	m.queued.Inc()
	m.depth.Set(float64(depth))
}

func (m *Metrics) incNotified(err error) {
	if err != nil {
		m.NotifyErrors.Add(1)
		m.notifyKO.Inc()
		return
	}
	m.Notified.Add(1)
	m.notified.Inc()
}

func (m *Metrics) setState(s State) {
	m.state.Set(float64(s))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Received:     m.Received.Load(),
		Short:        m.Short.Load(),
		Filtered:     m.Filtered.Load(),
		Queued:       m.Queued.Load(),
		Notified:     m.Notified.Load(),
		NotifyErrors: m.NotifyErrors.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received     uint64 `json:"received"`
	Short        uint64 `json:"short"`
	Filtered     uint64 `json:"filtered"`
	Queued       uint64 `json:"queued"`
	Notified     uint64 `json:"notified"`
	NotifyErrors uint64 `json:"notify_errors"`
}
