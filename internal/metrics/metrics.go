// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSentTotal counts frames written to the link
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpfuzzer_frames_sent_total",
			Help: "Total number of ARP frames sent",
		},
		[]string{"interface"},
	)

	// SendErrorsTotal counts failed sends, including short writes
	SendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpfuzzer_send_errors_total",
			Help: "Total number of failed frame sends",
		},
		[]string{"interface"},
	)

	// FramesReceivedTotal counts frames read by the capture worker
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpfuzzer_frames_received_total",
			Help: "Total number of frames received by the capture pipeline",
		},
		[]string{"interface"},
	)

	// FramesDroppedTotal counts received frames that were not queued
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpfuzzer_frames_dropped_total",
			Help: "Total number of received frames dropped before queueing",
		},
		[]string{"interface", "reason"},
	)

	// FramesQueuedTotal counts frames accepted by the filters
	FramesQueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpfuzzer_frames_queued_total",
			Help: "Total number of frames accepted and queued",
		},
		[]string{"interface"},
	)

	// QueueDepth tracks frames waiting to be popped
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arpfuzzer_queue_depth",
			Help: "Current number of captured frames waiting in the queue",
		},
		[]string{"interface"},
	)

	// NotificationsTotal counts queue-depth notifications by result
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpfuzzer_notifications_total",
			Help: "Total number of queue-depth notifications written",
		},
		[]string{"interface", "result"},
	)

	// PipelineState tracks the capture pipeline lifecycle state
	PipelineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arpfuzzer_pipeline_state",
			Help: "Capture pipeline state (0=idle, 1=running, 2=shutting_down, 3=stopped)",
		},
		[]string{"interface"},
	)

	// ControlRequestsTotal counts control socket requests by method and outcome
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arpfuzzer_control_requests_total",
			Help: "Total number of control socket requests",
		},
		[]string{"method", "result"},
	)
)

// Drop reasons for FramesDroppedTotal.
const (
	DropReasonShort    = "short"
	DropReasonFiltered = "filtered"
)

// Results for NotificationsTotal and ControlRequestsTotal.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
