// Package notify owns all course-announcement timing logic.
//
// A course creation schedules one deferred announcement job per course,
// delayed by a grace window so that early edits fold silently into the
// original announcement. At fire time the course status is re-checked:
// a course cancelled during the window must not be announced.
//
// The scheduler is a best-effort side channel. Collaborator failures are
// converted into failure results and must never cause the course
// operation that triggered a notification to fail.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
)

// ErrCourseNotFound is returned by CourseStore implementations when the
// course no longer exists.
var ErrCourseNotFound = errors.New("course not found")

// DefaultGraceWindow is the product-mandated delay between course
// creation and the announcement email. Edits within this window do not
// trigger separate update notifications.
const DefaultGraceWindow = 2 * time.Hour

const jobIDPrefix = "new-course-"

// JobID returns the deterministic job id for a course. One id per course
// guarantees at most one live announcement job per course.
func JobID(courseID string) string {
	return jobIDPrefix + courseID
}

type RecipientDirectory interface {
	GetNotificationRecipients(ctx context.Context) ([]domain.Recipient, error)
}

type CourseStore interface {
	// GetStatus is a lightweight existence+status check.
	// Returns ErrCourseNotFound when the course does not exist.
	GetStatus(ctx context.Context, courseID string) (domain.CourseStatus, error)
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
}

type EnrollmentLookup interface {
	// GetRegisteredStudents returns students with a paid or registered
	// enrollment for the course.
	GetRegisteredStudents(ctx context.Context, courseID string) ([]domain.Recipient, error)
}

type InstructorDirectory interface {
	GetInstructorEmails(ctx context.Context, courseID string) ([]string, error)
}

type Mailer interface {
	SendAnnouncement(ctx context.Context, data domain.AnnouncementData, recipients []domain.Recipient) error
	SendUpdate(ctx context.Context, data domain.AnnouncementData, changes domain.ChangeSet, recipients []domain.Recipient) error
	SendCancellation(ctx context.Context, data domain.AnnouncementData, recipients []domain.Recipient) error
	SendInstructorNotification(ctx context.Context, data domain.AnnouncementData, emails []string) error
}

// Ledger persists scheduling state so announcements survive a process
// restart. All calls are best-effort: a ledger failure is logged and
// never affects the in-memory schedule.
type Ledger interface {
	RecordScheduled(ctx context.Context, courseID string, fireAt time.Time) error
	MarkAnnounced(ctx context.Context, courseID string, at time.Time) error
	ClearScheduled(ctx context.Context, courseID string) error
}

// EventEmitter receives audit events. Emit must not block indefinitely.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.NotificationEvent) error
}

// MetricsSink records scheduler metrics. All methods are fire-and-forget.
type MetricsSink interface {
	AnnouncementScheduled()
	AnnouncementFired(outcome string)
	AnnouncementCancelled()
	GraceSuppression()
	LiveJobsUpdate(count int)
}

// Fire outcome labels for MetricsSink.AnnouncementFired.
const (
	FireOutcomeSent             = "sent"
	FireOutcomeCourseMissing    = "course_missing"
	FireOutcomeCourseCancelled  = "course_cancelled"
	FireOutcomeStatusCheckError = "status_check_error"
	FireOutcomeSendError        = "send_error"
)

type Config struct {
	// GraceWindow delays the announcement and suppresses update emails
	// for freshly created courses. Defaults to DefaultGraceWindow.
	GraceWindow time.Duration

	// ImmediateCancelsPending makes SendImmediateNotification cancel any
	// pending scheduled announcement for the course. When false (the
	// default) both may fire; cancelling first is the caller's job.
	ImmediateCancelsPending bool
}

type SchedulingResult struct {
	Success        bool
	JobID          string
	FireAt         time.Time
	RecipientCount int
	Error          string
}

type Outcome struct {
	Success    bool
	Notified   int
	Suppressed bool // update arrived within the grace window
	Error      string
}

type JobStatus struct {
	JobID    string
	CourseID string
	FireAt   time.Time
}

type StatusReport struct {
	ActiveJobs     int
	Jobs           []JobStatus
	TrackedCourses []string
}

type scheduledJob struct {
	id         string
	courseID   string
	fireAt     time.Time
	data       domain.AnnouncementData
	recipients []domain.Recipient
	cancelled  bool
	timer      *time.Timer
}

// Scheduler is the course-announcement notification scheduler. One
// long-lived instance is shared by all request handlers in the process.
type Scheduler struct {
	cfg         Config
	recipients  RecipientDirectory
	courses     CourseStore
	enrollments EnrollmentLookup
	instructors InstructorDirectory
	mailer      Mailer

	ledger  Ledger       // optional, nil = volatile only
	emitter EventEmitter // optional, nil = disabled
	metrics MetricsSink  // optional, nil = disabled

	clock     func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	created map[string]time.Time // courseID -> creation time
}

func New(cfg Config, recipients RecipientDirectory, courses CourseStore, enrollments EnrollmentLookup, instructors InstructorDirectory, mailer Mailer) *Scheduler {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	return &Scheduler{
		cfg:         cfg,
		recipients:  recipients,
		courses:     courses,
		enrollments: enrollments,
		instructors: instructors,
		mailer:      mailer,
		clock:       time.Now,
		afterFunc:   time.AfterFunc,
		jobs:        make(map[string]*scheduledJob),
		created:     make(map[string]time.Time),
	}
}

// WithLedger attaches a durable scheduling ledger.
func (s *Scheduler) WithLedger(l Ledger) *Scheduler {
	s.ledger = l
	return s
}

// WithEvents attaches an audit event emitter.
func (s *Scheduler) WithEvents(e EventEmitter) *Scheduler {
	s.emitter = e
	return s
}

// WithMetrics attaches a metrics sink.
func (s *Scheduler) WithMetrics(m MetricsSink) *Scheduler {
	s.metrics = m
	return s
}

// HandleCourseCreation records the course creation time, snapshots the
// announcement data and recipient list, and schedules the deferred
// announcement job. The instructor notification is sent synchronously;
// its failure is logged and swallowed.
func (s *Scheduler) HandleCourseCreation(ctx context.Context, course domain.Course, actor string) SchedulingResult {
	now := s.clock()

	if !course.Status.Publishable() {
		log.Printf("notify: course=%s status=%s not publishable, no announcement scheduled (actor=%s)", course.ID, course.Status, actor)
		return SchedulingResult{Success: true}
	}

	data := domain.NewAnnouncementData(course)

	recipients, err := s.recipients.GetNotificationRecipients(ctx)
	if err != nil {
		log.Printf("notify: course=%s recipient lookup failed: %v", course.ID, err)
		return SchedulingResult{Error: "recipient lookup failed: " + err.Error()}
	}

	if len(recipients) == 0 {
		// No wake-up for nobody.
		log.Printf("notify: course=%s no opted-in recipients, skipping announcement job", course.ID)
		return SchedulingResult{Success: true, RecipientCount: 0}
	}

	// The creation record is tracked only alongside a live job, so the
	// job's fire path always reaps it.
	s.mu.Lock()
	s.created[course.ID] = now
	s.mu.Unlock()

	fireAt := now.Add(s.cfg.GraceWindow)
	jobID := s.scheduleJob(course.ID, data, recipients, fireAt)

	if s.ledger != nil {
		if err := s.ledger.RecordScheduled(ctx, course.ID, fireAt); err != nil {
			log.Printf("notify: course=%s ledger record failed: %v", course.ID, err)
		}
	}
	if s.metrics != nil {
		s.metrics.AnnouncementScheduled()
	}
	s.emit(ctx, domain.NotificationEvent{
		Type:       domain.EventScheduled,
		CourseID:   course.ID,
		Kind:       domain.KindAnnouncement,
		Recipients: len(recipients),
		FireAt:     fireAt,
	})

	s.notifyInstructors(ctx, course.ID, data)

	log.Printf("notify: course=%s announcement scheduled job=%s fire_at=%s recipients=%d actor=%s",
		course.ID, jobID, fireAt.UTC().Format(time.RFC3339), len(recipients), actor)

	return SchedulingResult{
		Success:        true,
		JobID:          jobID,
		FireAt:         fireAt,
		RecipientCount: len(recipients),
	}
}

// Restore re-creates an announcement job recovered from the ledger after
// a restart. The original creation time is preserved so the grace window
// still ends at createdAt+GraceWindow; a fire time already in the past
// fires immediately. A live job for the course wins over the recovery.
func (s *Scheduler) Restore(ctx context.Context, course domain.Course, createdAt time.Time) SchedulingResult {
	id := JobID(course.ID)

	s.mu.Lock()
	if job, ok := s.jobs[id]; ok && !job.cancelled {
		fireAt := job.fireAt
		s.mu.Unlock()
		return SchedulingResult{Success: true, JobID: id, FireAt: fireAt}
	}
	s.mu.Unlock()

	recipients, err := s.recipients.GetNotificationRecipients(ctx)
	if err != nil {
		return SchedulingResult{Error: "recipient lookup failed: " + err.Error()}
	}
	if len(recipients) == 0 {
		return SchedulingResult{Success: true, RecipientCount: 0}
	}

	s.mu.Lock()
	s.created[course.ID] = createdAt
	s.mu.Unlock()

	fireAt := createdAt.Add(s.cfg.GraceWindow)
	s.scheduleJob(course.ID, domain.NewAnnouncementData(course), recipients, fireAt)

	s.emit(ctx, domain.NotificationEvent{
		Type:       domain.EventRescheduled,
		CourseID:   course.ID,
		Kind:       domain.KindAnnouncement,
		Recipients: len(recipients),
		FireAt:     fireAt,
	})

	return SchedulingResult{Success: true, JobID: id, FireAt: fireAt, RecipientCount: len(recipients)}
}

// HasLiveJob reports whether a non-cancelled announcement job exists for
// the course.
func (s *Scheduler) HasLiveJob(courseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[JobID(courseID)]
	return ok && !job.cancelled
}

// scheduleJob registers the deferred announcement. An existing job for
// the course is cancelled and replaced: last write wins on fire time and
// snapshot, never a duplicate firing.
func (s *Scheduler) scheduleJob(courseID string, data domain.AnnouncementData, recipients []domain.Recipient, fireAt time.Time) string {
	id := JobID(courseID)

	s.mu.Lock()
	if prev, ok := s.jobs[id]; ok {
		prev.cancelled = true
		if prev.timer != nil {
			prev.timer.Stop()
		}
		delete(s.jobs, id)
		log.Printf("notify: course=%s replacing existing job=%s", courseID, id)
	}

	job := &scheduledJob{
		id:         id,
		courseID:   courseID,
		fireAt:     fireAt,
		data:       data,
		recipients: recipients,
	}
	s.jobs[id] = job
	job.timer = s.afterFunc(fireAt.Sub(s.clock()), func() { s.fire(job) })
	live := len(s.jobs)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.LiveJobsUpdate(live)
	}
	return id
}

// fire runs the deferred announcement once, at or after the job's fire
// time. It re-validates the course first: the announcement is deferred by
// hours and the course may have been cancelled in the interim. Whatever
// the send outcome, the job and its creation record are reaped.
func (s *Scheduler) fire(job *scheduledJob) {
	ctx := context.Background()

	s.mu.Lock()
	current, ok := s.jobs[job.id]
	if !ok || current != job || job.cancelled {
		// Cancelled or replaced before the timer won the race.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	outcome := FireOutcomeSent
	status, err := s.courses.GetStatus(ctx, job.courseID)
	switch {
	case errors.Is(err, ErrCourseNotFound):
		log.Printf("notify: course=%s gone at fire time, announcement skipped", job.courseID)
		outcome = FireOutcomeCourseMissing
	case err != nil:
		log.Printf("notify: course=%s status check failed at fire time: %v", job.courseID, err)
		outcome = FireOutcomeStatusCheckError
	case status == domain.StatusCancelled:
		log.Printf("notify: course=%s cancelled at fire time, announcement skipped", job.courseID)
		outcome = FireOutcomeCourseCancelled
	default:
		if err := s.mailer.SendAnnouncement(ctx, job.data, job.recipients); err != nil {
			log.Printf("notify: course=%s announcement send failed: %v", job.courseID, err)
			outcome = FireOutcomeSendError
		} else {
			log.Printf("notify: course=%s announcement sent to %d recipients", job.courseID, len(job.recipients))
		}
	}

	s.mu.Lock()
	if s.jobs[job.id] == job {
		delete(s.jobs, job.id)
	}
	delete(s.created, job.courseID)
	live := len(s.jobs)
	s.mu.Unlock()

	if s.ledger != nil {
		switch outcome {
		case FireOutcomeSent:
			if err := s.ledger.MarkAnnounced(ctx, job.courseID, s.clock()); err != nil {
				log.Printf("notify: course=%s ledger mark failed: %v", job.courseID, err)
			}
		case FireOutcomeStatusCheckError:
			// Leave the row pending: the recovery scan picks the course
			// up again once the store is reachable.
		default:
			if err := s.ledger.ClearScheduled(ctx, job.courseID); err != nil {
				log.Printf("notify: course=%s ledger clear failed: %v", job.courseID, err)
			}
		}
	}
	if s.metrics != nil {
		s.metrics.AnnouncementFired(outcome)
		s.metrics.LiveJobsUpdate(live)
	}

	eventType := domain.EventFired
	if outcome != FireOutcomeSent {
		eventType = domain.EventSkipped
	}
	s.emit(ctx, domain.NotificationEvent{
		Type:       eventType,
		CourseID:   job.courseID,
		Kind:       domain.KindAnnouncement,
		Recipients: len(job.recipients),
		Reason:     outcome,
	})
}

// CancelScheduledNotification cancels a pending announcement job.
// Returns false when no job exists; cancelling a non-existent job is a
// benign no-op.
func (s *Scheduler) CancelScheduledNotification(courseID string) bool {
	id := JobID(courseID)

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	job.cancelled = true
	if job.timer != nil {
		job.timer.Stop()
	}
	delete(s.jobs, id)
	live := len(s.jobs)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AnnouncementCancelled()
		s.metrics.LiveJobsUpdate(live)
	}
	s.emit(context.Background(), domain.NotificationEvent{
		Type:     domain.EventCancelled,
		CourseID: courseID,
		Kind:     domain.KindAnnouncement,
	})
	log.Printf("notify: course=%s pending announcement cancelled", courseID)
	return true
}

// HandleCourseCancellation suppresses any pending announcement and sends
// an immediate cancellation email to registered students.
func (s *Scheduler) HandleCourseCancellation(ctx context.Context, courseID string, course domain.Course) Outcome {
	s.CancelScheduledNotification(courseID)

	s.mu.Lock()
	delete(s.created, courseID)
	s.mu.Unlock()

	if s.ledger != nil {
		if err := s.ledger.ClearScheduled(ctx, courseID); err != nil {
			log.Printf("notify: course=%s ledger clear failed: %v", courseID, err)
		}
	}

	students, err := s.enrollments.GetRegisteredStudents(ctx, courseID)
	if err != nil {
		log.Printf("notify: course=%s enrollment lookup failed: %v", courseID, err)
		return Outcome{Error: "enrollment lookup failed: " + err.Error()}
	}
	if len(students) == 0 {
		return Outcome{Success: true}
	}

	if err := s.mailer.SendCancellation(ctx, domain.NewAnnouncementData(course), students); err != nil {
		log.Printf("notify: course=%s cancellation send failed: %v", courseID, err)
		return Outcome{Error: "cancellation send failed: " + err.Error()}
	}

	s.emit(ctx, domain.NotificationEvent{
		Type:       domain.EventNotified,
		CourseID:   courseID,
		Kind:       domain.KindCancellation,
		Recipients: len(students),
	})
	log.Printf("notify: course=%s cancellation sent to %d students", courseID, len(students))
	return Outcome{Success: true, Notified: len(students)}
}

// HandleCourseUpdate sends an immediate "course updated" email to
// registered students, unless the course is still within its grace
// window: edits made shortly after creation are covered by the original
// announcement once it fires.
func (s *Scheduler) HandleCourseUpdate(ctx context.Context, courseID string, course domain.Course, changes domain.ChangeSet) Outcome {
	now := s.clock()

	s.mu.Lock()
	createdAt, tracked := s.created[courseID]
	s.mu.Unlock()

	if tracked && now.Sub(createdAt) < s.cfg.GraceWindow {
		if s.metrics != nil {
			s.metrics.GraceSuppression()
		}
		s.emit(ctx, domain.NotificationEvent{
			Type:     domain.EventSuppressed,
			CourseID: courseID,
			Kind:     domain.KindUpdate,
			Reason:   "within grace window",
		})
		log.Printf("notify: course=%s update within grace window, no notification sent", courseID)
		return Outcome{Success: true, Suppressed: true}
	}

	students, err := s.enrollments.GetRegisteredStudents(ctx, courseID)
	if err != nil {
		log.Printf("notify: course=%s enrollment lookup failed: %v", courseID, err)
		return Outcome{Error: "enrollment lookup failed: " + err.Error()}
	}
	if len(students) == 0 {
		return Outcome{Success: true}
	}

	if err := s.mailer.SendUpdate(ctx, domain.NewAnnouncementData(course), changes, students); err != nil {
		log.Printf("notify: course=%s update send failed: %v", courseID, err)
		return Outcome{Error: "update send failed: " + err.Error()}
	}

	s.emit(ctx, domain.NotificationEvent{
		Type:       domain.EventNotified,
		CourseID:   courseID,
		Kind:       domain.KindUpdate,
		Recipients: len(students),
		Reason:     changes.Describe(),
	})
	log.Printf("notify: course=%s update (%s) sent to %d students", courseID, changes.Describe(), len(students))
	return Outcome{Success: true, Notified: len(students)}
}

// SendImmediateNotification announces the course right now, bypassing
// the grace window. Whether it also cancels a pending scheduled job is
// controlled by Config.ImmediateCancelsPending.
func (s *Scheduler) SendImmediateNotification(ctx context.Context, courseID string) Outcome {
	if s.cfg.ImmediateCancelsPending {
		s.CancelScheduledNotification(courseID)
	}

	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		log.Printf("notify: course=%s fetch failed: %v", courseID, err)
		return Outcome{Error: "course fetch failed: " + err.Error()}
	}

	recipients, err := s.recipients.GetNotificationRecipients(ctx)
	if err != nil {
		log.Printf("notify: course=%s recipient lookup failed: %v", courseID, err)
		return Outcome{Error: "recipient lookup failed: " + err.Error()}
	}
	if len(recipients) == 0 {
		return Outcome{Success: true}
	}

	if err := s.mailer.SendAnnouncement(ctx, domain.NewAnnouncementData(course), recipients); err != nil {
		log.Printf("notify: course=%s immediate announcement failed: %v", courseID, err)
		return Outcome{Error: "announcement send failed: " + err.Error()}
	}

	if s.ledger != nil {
		if err := s.ledger.MarkAnnounced(ctx, courseID, s.clock()); err != nil {
			log.Printf("notify: course=%s ledger mark failed: %v", courseID, err)
		}
	}
	s.emit(ctx, domain.NotificationEvent{
		Type:       domain.EventNotified,
		CourseID:   courseID,
		Kind:       domain.KindAnnouncement,
		Recipients: len(recipients),
		Reason:     "immediate",
	})
	log.Printf("notify: course=%s immediate announcement sent to %d recipients", courseID, len(recipients))
	return Outcome{Success: true, Notified: len(recipients)}
}

// Status returns a read-only snapshot of live jobs and tracked creation
// records for admin dashboards.
func (s *Scheduler) Status() StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := StatusReport{ActiveJobs: len(s.jobs)}
	for _, job := range s.jobs {
		report.Jobs = append(report.Jobs, JobStatus{
			JobID:    job.id,
			CourseID: job.courseID,
			FireAt:   job.fireAt,
		})
	}
	for courseID := range s.created {
		report.TrackedCourses = append(report.TrackedCourses, courseID)
	}
	return report
}

// Shutdown stops all pending timers. Jobs stay in the ledger and are
// recovered on the next start.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		job.cancelled = true
		if job.timer != nil {
			job.timer.Stop()
		}
	}
	s.jobs = make(map[string]*scheduledJob)
}

func (s *Scheduler) notifyInstructors(ctx context.Context, courseID string, data domain.AnnouncementData) {
	emails, err := s.instructors.GetInstructorEmails(ctx, courseID)
	if err != nil {
		log.Printf("notify: course=%s instructor lookup failed: %v", courseID, err)
		return
	}
	if len(emails) == 0 {
		return
	}
	if err := s.mailer.SendInstructorNotification(ctx, data, emails); err != nil {
		// Instructor mail failure must not abort the creation flow.
		log.Printf("notify: course=%s instructor notification failed: %v", courseID, err)
	}
}

func (s *Scheduler) emit(ctx context.Context, event domain.NotificationEvent) {
	if s.emitter == nil {
		return
	}
	event.ID = uuid.New()
	event.CreatedAt = s.clock()
	if err := s.emitter.Emit(ctx, event); err != nil {
		log.Printf("notify: event emit failed (type=%s course=%s): %v", event.Type, event.CourseID, err)
	}
}
