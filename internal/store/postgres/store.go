package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/analytics"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/digest"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/mailer"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/notify"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/reconciler"
)

// Store implements the notification service's persistence interfaces
// using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a new PostgreSQL store with the given database connection.
// opTimeout bounds each query; 0 disables the per-op timeout.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

// opCtx derives a per-operation context with the configured timeout.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// GetStatus returns the current lifecycle status of a course.
// Returns notify.ErrCourseNotFound if the course does not exist.
func (s *Store) GetStatus(ctx context.Context, courseID string) (domain.CourseStatus, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var status string
	err := s.db.QueryRowContext(ctx, queryGetCourseStatus, courseID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", notify.ErrCourseNotFound
		}
		return "", err
	}
	return domain.CourseStatus(status), nil
}

// GetCourse returns the full course record.
// Returns notify.ErrCourseNotFound if the course does not exist.
func (s *Store) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, queryGetCourse, courseID)
	course, err := scanCourse(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Course{}, notify.ErrCourseNotFound
		}
		return domain.Course{}, err
	}
	return course, nil
}

// GetNotificationRecipients returns every user who opted in to
// new-course notifications.
func (s *Store) GetNotificationRecipients(ctx context.Context) ([]domain.Recipient, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetNotificationRecipients)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecipients(rows)
}

// GetRegisteredStudents returns the recipients enrolled in a course.
func (s *Store) GetRegisteredStudents(ctx context.Context, courseID string) ([]domain.Recipient, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetRegisteredStudents, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecipients(rows)
}

// GetInstructorEmails returns the email addresses of a course's instructors.
func (s *Store) GetInstructorEmails(ctx context.Context, courseID string) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetInstructorEmails, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// RecordScheduled upserts the pending-announcement ledger row for a course.
// A re-schedule for the same course replaces the previous fire time.
func (s *Store) RecordScheduled(ctx context.Context, courseID string, fireAt time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryRecordScheduled, courseID, fireAt)
	return err
}

// MarkAnnounced stamps the ledger row once the announcement was sent.
func (s *Store) MarkAnnounced(ctx context.Context, courseID string, at time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryMarkAnnounced, courseID, at)
	return err
}

// ClearScheduled removes a pending ledger row after a cancellation or a
// skipped fire. Announced rows are kept for the digest.
func (s *Store) ClearScheduled(ctx context.Context, courseID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryClearScheduled, courseID)
	return err
}

// GetUnannouncedCourses returns courses whose ledger row is still pending,
// oldest fire time first. Used on startup to reschedule lost jobs.
func (s *Store) GetUnannouncedCourses(ctx context.Context, limit int) ([]domain.Course, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetUnannouncedCourses, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCourses(rows)
}

// ListAnnouncedSince returns courses announced at or after the given time.
func (s *Store) ListAnnouncedSince(ctx context.Context, since time.Time) ([]domain.Course, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListAnnouncedSince, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCourses(rows)
}

// InsertSendAttempt inserts one audit row per mail relay call.
func (s *Store) InsertSendAttempt(ctx context.Context, attempt domain.SendAttempt) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertSendAttempt,
		attempt.ID,
		attempt.CourseID,
		string(attempt.Kind),
		attempt.Attempt,
		attempt.StatusCode,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	return err
}

// InsertNotificationEvent inserts one lifecycle event audit row.
func (s *Store) InsertNotificationEvent(ctx context.Context, event domain.NotificationEvent) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var fireAt sql.NullTime
	if !event.FireAt.IsZero() {
		fireAt = sql.NullTime{Time: event.FireAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, queryInsertNotificationEvent,
		event.ID,
		string(event.Type),
		event.CourseID,
		string(event.Kind),
		event.Recipients,
		fireAt,
		event.Reason,
		event.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (domain.Course, error) {
	var c domain.Course
	var status string
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Code,
		&status,
		&c.Schedule,
		&c.Price,
		&c.Currency,
		&c.Platform,
		pq.Array(&c.Instructors),
		&c.TechnicalSummary,
		&c.RecordingSummary,
		&c.InteractionSummary,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Course{}, err
	}
	c.Status = domain.CourseStatus(status)
	return c, nil
}

func scanCourses(rows *sql.Rows) ([]domain.Course, error) {
	var result []domain.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanRecipients(rows *sql.Rows) ([]domain.Recipient, error) {
	var result []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		if err := rows.Scan(&r.Email, &r.FirstName, &r.LastName); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Compile-time interface assertions
var (
	_ notify.CourseStore         = (*Store)(nil)
	_ notify.RecipientDirectory  = (*Store)(nil)
	_ notify.EnrollmentLookup    = (*Store)(nil)
	_ notify.InstructorDirectory = (*Store)(nil)
	_ notify.Ledger              = (*Store)(nil)
	_ mailer.AttemptStore        = (*Store)(nil)
	_ reconciler.Store           = (*Store)(nil)
	_ digest.Store               = (*Store)(nil)
	_ analytics.AuditStore       = (*Store)(nil)
)
