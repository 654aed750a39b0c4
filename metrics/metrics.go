// Package metrics defines the Prometheus metrics emitted by the collector.
//
// This is a leaf package with no internal dependencies. All metrics are
// registered with the default registry and exposed on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// --- Ingestion endpoint ---

// IncomingCrash counts crash submissions that parsed successfully.
var IncomingCrash = promauto.NewCounter(prometheus.CounterOpts{
	Name: "collector_incoming_crash_total",
	Help: "counter of well-formed crash report submissions",
})

// Malformed counts submissions rejected during extraction, by reason code.
var Malformed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "collector_malformed_total",
	Help: "counter of malformed crash report submissions by reason",
}, []string{"reason"})

// GzippedCrash counts submissions that arrived gzip-compressed.
var GzippedCrash = promauto.NewCounter(prometheus.CounterOpts{
	Name: "collector_gzipped_crash_total",
	Help: "counter of gzip-compressed crash report submissions",
})

// BadGzippedCrash counts submissions whose gzip framing did not decompress.
var BadGzippedCrash = promauto.NewCounter(prometheus.CounterOpts{
	Name: "collector_bad_gzipped_crash_total",
	Help: "counter of crash report submissions with broken gzip framing",
})

// CrashSize records submission body sizes, partitioned by whether the
// payload arrived compressed.
var CrashSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "collector_crash_size_bytes",
	Help:    "histogram of crash report payload sizes",
	Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
}, []string{"payload"})

// ThrottleRule counts throttle decisions by the rule that matched.
var ThrottleRule = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "collector_throttle_rule_total",
	Help: "counter of throttle decisions by matched rule name",
}, []string{"rule"})

// ThrottleResult counts throttle decisions by textual outcome.
var ThrottleResult = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "collector_throttle_total",
	Help: "counter of throttle decisions by outcome",
}, []string{"result"})

// --- Crash mover ---

// SaveCrashException counts failed store save attempts.
var SaveCrashException = promauto.NewCounter(prometheus.CounterOpts{
	Name: "crashmover_save_crash_exception_total",
	Help: "counter of failed attempts to save a crash report",
})

// SaveCrashDropped counts crash reports dropped after exhausting save retries.
var SaveCrashDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "crashmover_save_crash_dropped_total",
	Help: "counter of crash reports dropped because saving kept failing",
})

// SaveCrash counts crash reports handled to completion by the mover.
var SaveCrash = promauto.NewCounter(prometheus.CounterOpts{
	Name: "crashmover_save_crash_total",
	Help: "counter of crash reports fully handled by the crash mover",
})

// PublishCrashException counts failed publish attempts.
var PublishCrashException = promauto.NewCounter(prometheus.CounterOpts{
	Name: "crashmover_publish_crash_exception_total",
	Help: "counter of failed attempts to publish a crash id",
})

// PublishCrashDropped counts crash ids never published after exhausting
// retries. The report itself was saved; a downstream self-healing process
// is expected to republish.
var PublishCrashDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "crashmover_publish_crash_dropped_total",
	Help: "counter of crash ids dropped because publishing kept failing",
})

// WorkQueueRejected counts crash reports turned away because the mover
// queue was full.
var WorkQueueRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "crashmover_work_queue_rejected_total",
	Help: "counter of crash reports rejected because the work queue was full",
})

// WorkQueueSize reports the number of crash reports waiting in the mover
// queue. A number that keeps going up means impending doom.
var WorkQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "crashmover_work_queue_size",
	Help: "number of crash reports waiting to be saved and published",
})

// CrashHandlingTime records the time from client submission to terminal
// handoff (save plus publish).
var CrashHandlingTime = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "crashmover_crash_handling_seconds",
	Help:    "time from submission to terminal crash mover handoff",
	Buckets: prometheus.DefBuckets,
})

// --- Health endpoints ---

// HealthRequests counts hits on the dockerflow health endpoints.
var HealthRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "collector_health_requests_total",
	Help: "counter of health endpoint requests",
}, []string{"endpoint"})
