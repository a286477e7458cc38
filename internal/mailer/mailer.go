// Package mailer delivers notification emails through the platform's
// mail relay. Delivery is retried with backoff for transient failures;
// the scheduler above only ever sees the final success or error.
package mailer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/metrics"
)

var defaultBackoff = []time.Duration{
	0,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

const maxAttempts = 4

// RelaySender posts one prepared message batch to the mail relay.
type RelaySender interface {
	Send(ctx context.Context, req RelayRequest) RelayResult
	Endpoint() string
}

// AttemptStore persists one audit row per relay call.
type AttemptStore interface {
	InsertSendAttempt(ctx context.Context, attempt domain.SendAttempt) error
}

// Breaker short-circuits sends while the relay endpoint is failing.
type Breaker interface {
	Allow(endpoint string) error
	RecordSuccess(endpoint string)
	RecordFailure(endpoint string)
}

// MetricsSink records mailer metrics. All methods must be non-blocking
// and fire-and-forget.
type MetricsSink interface {
	MailAttemptCompleted(kind string, attempt int, statusClass string, duration time.Duration)
	MailOutcome(kind string, outcome string)
	MailRetry(retryable bool)
}

type RelayRequest struct {
	Kind      domain.NotificationKind
	AttemptID string
	Payload   Payload
}

type RelayResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r RelayResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r RelayResult) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

type Mailer struct {
	sender   RelaySender
	attempts AttemptStore // optional, nil = disabled
	breaker  Breaker      // optional, nil = disabled
	metrics  MetricsSink  // optional, nil = disabled
	backoff  []time.Duration
}

func New(sender RelaySender) *Mailer {
	return &Mailer{
		sender:  sender,
		backoff: defaultBackoff,
	}
}

// WithAttemptStore attaches the send-attempt audit store.
func (m *Mailer) WithAttemptStore(s AttemptStore) *Mailer {
	m.attempts = s
	return m
}

// WithBreaker attaches a circuit breaker for the relay endpoint.
func (m *Mailer) WithBreaker(b Breaker) *Mailer {
	m.breaker = b
	return m
}

// WithMetrics attaches a metrics sink.
func (m *Mailer) WithMetrics(sink MetricsSink) *Mailer {
	m.metrics = sink
	return m
}

func (m *Mailer) SendAnnouncement(ctx context.Context, data domain.AnnouncementData, recipients []domain.Recipient) error {
	return m.deliver(ctx, domain.KindAnnouncement, data.CourseID, announcementPayload(data, recipients))
}

func (m *Mailer) SendUpdate(ctx context.Context, data domain.AnnouncementData, changes domain.ChangeSet, recipients []domain.Recipient) error {
	p := announcementPayload(data, recipients)
	p.Subject = "Course updated: " + data.Title
	p.Changes = changes.Describe()
	return m.deliver(ctx, domain.KindUpdate, data.CourseID, p)
}

func (m *Mailer) SendCancellation(ctx context.Context, data domain.AnnouncementData, recipients []domain.Recipient) error {
	p := announcementPayload(data, recipients)
	p.Subject = "Course cancelled: " + data.Title
	return m.deliver(ctx, domain.KindCancellation, data.CourseID, p)
}

func (m *Mailer) SendInstructorNotification(ctx context.Context, data domain.AnnouncementData, emails []string) error {
	p := announcementPayload(data, nil)
	p.Subject = "Your course is live: " + data.Title
	p.Emails = emails
	return m.deliver(ctx, domain.KindInstructor, data.CourseID, p)
}

// SendDigest sends one summary email covering several courses.
func (m *Mailer) SendDigest(ctx context.Context, items []domain.AnnouncementData, recipients []domain.Recipient) error {
	p := Payload{Subject: fmt.Sprintf("New courses this week (%d)", len(items))}
	for _, item := range items {
		p.Courses = append(p.Courses, coursePayload(item))
	}
	for _, r := range recipients {
		p.Recipients = append(p.Recipients, recipientPayload(r))
	}
	courseID := ""
	if len(items) > 0 {
		courseID = items[0].CourseID
	}
	return m.deliver(ctx, domain.KindDigest, courseID, p)
}

func (m *Mailer) deliver(ctx context.Context, kind domain.NotificationKind, courseID string, payload Payload) error {
	endpoint := m.sender.Endpoint()
	payload.Kind = string(kind)

	var lastResult RelayResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if m.metrics != nil {
				m.metrics.MailRetry(lastResult.IsRetryable())
			}

			idx := attempt - 1
			if idx >= len(m.backoff) {
				idx = len(m.backoff) - 1
			}
			backoff := m.backoff[idx]

			log.Printf("mailer: kind=%s course=%s attempt=%d backoff=%s", kind, courseID, attempt, backoff)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		if m.breaker != nil {
			if err := m.breaker.Allow(endpoint); err != nil {
				if m.metrics != nil {
					m.metrics.MailOutcome(string(kind), metrics.OutcomeAbandoned)
				}
				return fmt.Errorf("mail relay: %w", err)
			}
		}

		attemptID := uuid.New()
		req := RelayRequest{Kind: kind, AttemptID: attemptID.String(), Payload: payload}

		startedAt := time.Now().UTC()
		result := m.sender.Send(ctx, req)
		finishedAt := time.Now().UTC()
		lastResult = result

		if m.metrics != nil {
			statusClass := metrics.ClassifyStatus(result.StatusCode, result.Error)
			m.metrics.MailAttemptCompleted(string(kind), attempt, statusClass, result.Duration)
		}

		record := domain.SendAttempt{
			ID:         attemptID,
			CourseID:   courseID,
			Kind:       kind,
			Attempt:    attempt,
			StatusCode: result.StatusCode,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
		}
		if result.Error != nil {
			record.Error = result.Error.Error()
		}
		if m.attempts != nil {
			if err := m.attempts.InsertSendAttempt(ctx, record); err != nil {
				log.Printf("mailer: failed to record attempt: %v", err)
			}
		}

		if result.IsSuccess() {
			if m.breaker != nil {
				m.breaker.RecordSuccess(endpoint)
			}
			if m.metrics != nil {
				m.metrics.MailOutcome(string(kind), metrics.OutcomeSuccess)
			}
			log.Printf("mailer: kind=%s course=%s delivered attempt=%d", kind, courseID, attempt)
			return nil
		}

		if m.breaker != nil {
			m.breaker.RecordFailure(endpoint)
		}

		if !result.IsRetryable() {
			log.Printf("mailer: kind=%s course=%s non-retryable status=%d", kind, courseID, result.StatusCode)
			break
		}

		log.Printf("mailer: kind=%s course=%s attempt=%d failed status=%d err=%v",
			kind, courseID, attempt, result.StatusCode, result.Error)
	}

	if m.metrics != nil {
		m.metrics.MailOutcome(string(kind), metrics.OutcomeFailed)
	}
	if lastResult.Error != nil {
		return fmt.Errorf("mail relay: %w", lastResult.Error)
	}
	return fmt.Errorf("mail relay: status %d", lastResult.StatusCode)
}
