package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RemindersProvisioned = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_provisioned_total", Help: "Default reminders materialized"})
	RemindersClaimed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_claimed_total", Help: "Reminders claimed by dispatch cycles"})
	StaleReclaims        = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_stale_reclaims_total", Help: "Reminders reclaimed from stale claims"})
	RemindersSent        = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_sent_total", Help: "Reminders resolved as sent"})
	RemindersRetried     = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_retried_total", Help: "Send failures returned to pending for retry"})
	RemindersFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_failed_total", Help: "Reminders resolved as failed after exhausting attempts"})
	RemindersSkipped     = prometheus.NewCounter(prometheus.CounterOpts{Name: "reminders_skipped_total", Help: "Reminders skipped at guard time"})
	CycleErrors          = prometheus.NewCounter(prometheus.CounterOpts{Name: "dispatch_cycle_errors_total", Help: "Dispatch cycles aborted by infrastructure failure"})
	InFlightGauge        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "reminders_inflight", Help: "Reminders currently claimed by this process"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RemindersProvisioned,
			RemindersClaimed,
			StaleReclaims,
			RemindersSent,
			RemindersRetried,
			RemindersFailed,
			RemindersSkipped,
			CycleErrors,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
