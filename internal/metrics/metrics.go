// Package metrics exposes the persistence core's Prometheus
// instrumentation, in the same style as the pack's ratelimiter/telemetry
// package: package-level collectors registered once in init, recorded
// through small free functions so call sites never touch the
// prometheus API directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventstore_commits_total",
		Help: "Total commits successfully appended to the log.",
	})
	commitConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_commit_conflicts_total",
		Help: "Total commit attempts rejected, labeled by the discriminated kind.",
	}, []string{"kind"})
	undispatchedBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventstore_undispatched_backlog",
		Help: "Commits with dispatched=false as of the last poll.",
	})
	snapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventstore_snapshots_total",
		Help: "Total snapshots successfully added.",
	})
	headApplyFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventstore_head_apply_failures_total",
		Help: "Stream-head updates the background maintainer swallowed after a failed apply.",
	})
)

func init() {
	prometheus.MustRegister(commitsTotal, commitConflictsTotal, undispatchedBacklog, snapshotsTotal, headApplyFailuresTotal)
}

// RecordCommit increments the successful-commit counter.
func RecordCommit() {
	commitsTotal.Inc()
}

// RecordConflict increments the conflict counter for the given
// event.Kind string (e.g. "DUPLICATE_COMMIT", "CONCURRENCY").
func RecordConflict(kind string) {
	commitConflictsTotal.WithLabelValues(kind).Inc()
}

// SetUndispatchedBacklog reports the current undispatched commit count, as
// sampled by the CLI's "undispatched" command or a polling dispatcher.
func SetUndispatchedBacklog(n int) {
	undispatchedBacklog.Set(float64(n))
}

// RecordSnapshot increments the snapshot counter.
func RecordSnapshot() {
	snapshotsTotal.Inc()
}

// RecordHeadApplyFailure increments the swallowed-failure counter the head
// maintainer reports when an apply attempt is abandoned.
func RecordHeadApplyFailure() {
	headApplyFailuresTotal.Inc()
}

// Handler returns the promhttp handler for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
