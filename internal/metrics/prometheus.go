package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged and never propagated; a metric that
// fails to register simply stays unexported.
type PrometheusSink struct {
	announcementsScheduledTotal prometheus.Counter
	announcementsFiredTotal     *prometheus.CounterVec
	announcementsCancelledTotal prometheus.Counter
	graceSuppressionsTotal      prometheus.Counter
	liveJobs                    prometheus.Gauge

	mailAttemptsTotal *prometheus.CounterVec
	mailOutcomesTotal *prometheus.CounterVec
	mailRetriesTotal  *prometheus.CounterVec
	mailDuration      prometheus.Histogram

	bufferSize      prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	recoveredJobsTotal prometheus.Counter
}

// NewPrometheusSink creates a Prometheus metrics sink registered
// against reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initMailerMetrics(reg)
	s.initBusMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.announcementsScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursenotify_announcements_scheduled_total",
		Help: "Total number of deferred announcement jobs scheduled.",
	})
	s.announcementsFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursenotify_announcements_fired_total",
		Help: "Total number of announcement jobs that reached fire time, by outcome.",
	}, []string{"outcome"})
	s.announcementsCancelledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursenotify_announcements_cancelled_total",
		Help: "Total number of pending announcements cancelled before firing.",
	})
	s.graceSuppressionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursenotify_grace_suppressions_total",
		Help: "Total number of update notifications suppressed inside the grace window.",
	})
	s.liveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coursenotify_live_jobs",
		Help: "Number of announcement jobs currently pending.",
	})

	s.register(reg, s.announcementsScheduledTotal, "coursenotify_announcements_scheduled_total")
	s.register(reg, s.announcementsFiredTotal, "coursenotify_announcements_fired_total")
	s.register(reg, s.announcementsCancelledTotal, "coursenotify_announcements_cancelled_total")
	s.register(reg, s.graceSuppressionsTotal, "coursenotify_grace_suppressions_total")
	s.register(reg, s.liveJobs, "coursenotify_live_jobs")
}

func (s *PrometheusSink) initMailerMetrics(reg prometheus.Registerer) {
	s.mailAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursenotify_mail_attempts_total",
		Help: "Total number of mail relay attempts.",
	}, []string{"kind", "attempt", "status_class"})
	s.mailOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursenotify_mail_outcomes_total",
		Help: "Total number of final mail delivery outcomes.",
	}, []string{"kind", "outcome"})
	s.mailRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coursenotify_mail_retry_attempts_total",
		Help: "Total number of mail retry attempts, excluding the first attempt.",
	}, []string{"retryable"})
	s.mailDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coursenotify_mail_duration_seconds",
		Help:    "Mail relay request latency in seconds, excluding backoff waits.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.mailAttemptsTotal, "coursenotify_mail_attempts_total")
	s.register(reg, s.mailOutcomesTotal, "coursenotify_mail_outcomes_total")
	s.register(reg, s.mailRetriesTotal, "coursenotify_mail_retry_attempts_total")
	s.register(reg, s.mailDuration, "coursenotify_mail_duration_seconds")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coursenotify_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursenotify_eventbus_emit_errors_total",
		Help: "Total number of event emit failures (buffer full).",
	})
	s.recoveredJobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coursenotify_recovered_jobs_total",
		Help: "Total number of announcement jobs rescheduled from the ledger on startup.",
	})

	s.register(reg, s.bufferSize, "coursenotify_eventbus_buffer_size")
	s.register(reg, s.emitErrorsTotal, "coursenotify_eventbus_emit_errors_total")
	s.register(reg, s.recoveredJobsTotal, "coursenotify_recovered_jobs_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) AnnouncementScheduled() {
	s.announcementsScheduledTotal.Inc()
}

func (s *PrometheusSink) AnnouncementFired(outcome string) {
	s.announcementsFiredTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) AnnouncementCancelled() {
	s.announcementsCancelledTotal.Inc()
}

func (s *PrometheusSink) GraceSuppression() {
	s.graceSuppressionsTotal.Inc()
}

func (s *PrometheusSink) LiveJobsUpdate(count int) {
	s.liveJobs.Set(float64(count))
}

func (s *PrometheusSink) MailAttemptCompleted(kind string, attempt int, statusClass string, duration time.Duration) {
	s.mailAttemptsTotal.WithLabelValues(kind, strconv.Itoa(attempt), statusClass).Inc()
	s.mailDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) MailOutcome(kind string, outcome string) {
	s.mailOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

func (s *PrometheusSink) MailRetry(retryable bool) {
	s.mailRetriesTotal.WithLabelValues(strconv.FormatBool(retryable)).Inc()
}

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

func (s *PrometheusSink) RecoveredJobs(count int) {
	s.recoveredJobsTotal.Add(float64(count))
}

var _ Sink = (*PrometheusSink)(nil)
