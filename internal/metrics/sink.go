package metrics

import (
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable,
// implementations log warnings and continue.
type Sink interface {
	// Scheduler metrics
	AnnouncementScheduled()
	AnnouncementFired(outcome string)
	AnnouncementCancelled()
	GraceSuppression()
	LiveJobsUpdate(count int)

	// Mailer metrics
	MailAttemptCompleted(kind string, attempt int, statusClass string, duration time.Duration)
	MailOutcome(kind string, outcome string)
	MailRetry(retryable bool)

	// Event bus metrics
	BufferSizeUpdate(size int)
	EmitError()

	// Recovery metrics
	RecoveredJobs(count int)
}

// Outcome constants for MailOutcome.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// Status class constants for MailAttemptCompleted.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a relay status code and error to a status class
// with bounded label cardinality.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return StatusClassTimeout
		}
		if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial") {
			return StatusClassConnectionError
		}
		return StatusClassOtherError
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
