package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks at call sites.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) AnnouncementScheduled()         {}
func (n *NoopSink) AnnouncementFired(string)       {}
func (n *NoopSink) AnnouncementCancelled()         {}
func (n *NoopSink) GraceSuppression()              {}
func (n *NoopSink) LiveJobsUpdate(int)             {}
func (n *NoopSink) MailOutcome(string, string)     {}
func (n *NoopSink) MailRetry(bool)                 {}
func (n *NoopSink) BufferSizeUpdate(int)           {}
func (n *NoopSink) EmitError()                     {}
func (n *NoopSink) RecoveredJobs(int)              {}

func (n *NoopSink) MailAttemptCompleted(string, int, string, time.Duration) {}

var _ Sink = (*NoopSink)(nil)
