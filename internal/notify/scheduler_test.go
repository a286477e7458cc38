package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/testutil"
)

type fakeDirectory struct {
	mu         sync.Mutex
	recipients []domain.Recipient
	err        error
	calls      int
}

func (d *fakeDirectory) GetNotificationRecipients(ctx context.Context) ([]domain.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.recipients, d.err
}

type fakeCourseStore struct {
	mu       sync.Mutex
	statuses map[string]domain.CourseStatus
	courses  map[string]domain.Course
	err      error
}

func (s *fakeCourseStore) GetStatus(ctx context.Context, courseID string) (domain.CourseStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	status, ok := s.statuses[courseID]
	if !ok {
		return "", ErrCourseNotFound
	}
	return status, nil
}

func (s *fakeCourseStore) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Course{}, s.err
	}
	course, ok := s.courses[courseID]
	if !ok {
		return domain.Course{}, ErrCourseNotFound
	}
	return course, nil
}

func (s *fakeCourseStore) setStatus(courseID string, status domain.CourseStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[courseID] = status
}

type fakeEnrollments struct {
	mu       sync.Mutex
	students map[string][]domain.Recipient
	err      error
}

func (e *fakeEnrollments) GetRegisteredStudents(ctx context.Context, courseID string) ([]domain.Recipient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.students[courseID], nil
}

type fakeInstructors struct {
	emails []string
	err    error
}

func (i *fakeInstructors) GetInstructorEmails(ctx context.Context, courseID string) ([]string, error) {
	return i.emails, i.err
}

type mailerCall struct {
	kind       domain.NotificationKind
	courseID   string
	recipients []domain.Recipient
	changes    domain.ChangeSet
	emails     []string
}

type fakeMailer struct {
	mu            sync.Mutex
	calls         []mailerCall
	announceErr   error
	updateErr     error
	cancelErr     error
	instructorErr error
}

func (m *fakeMailer) SendAnnouncement(ctx context.Context, data domain.AnnouncementData, recipients []domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.announceErr != nil {
		return m.announceErr
	}
	m.calls = append(m.calls, mailerCall{kind: domain.KindAnnouncement, courseID: data.CourseID, recipients: recipients})
	return nil
}

func (m *fakeMailer) SendUpdate(ctx context.Context, data domain.AnnouncementData, changes domain.ChangeSet, recipients []domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.calls = append(m.calls, mailerCall{kind: domain.KindUpdate, courseID: data.CourseID, recipients: recipients, changes: changes})
	return nil
}

func (m *fakeMailer) SendCancellation(ctx context.Context, data domain.AnnouncementData, recipients []domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.calls = append(m.calls, mailerCall{kind: domain.KindCancellation, courseID: data.CourseID, recipients: recipients})
	return nil
}

func (m *fakeMailer) SendInstructorNotification(ctx context.Context, data domain.AnnouncementData, emails []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instructorErr != nil {
		return m.instructorErr
	}
	m.calls = append(m.calls, mailerCall{kind: domain.KindInstructor, courseID: data.CourseID, emails: emails})
	return nil
}

func (m *fakeMailer) callsOfKind(kind domain.NotificationKind) []mailerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mailerCall
	for _, c := range m.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

type fakeLedger struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	announced map[string]time.Time
	cleared   []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		scheduled: make(map[string]time.Time),
		announced: make(map[string]time.Time),
	}
}

func (l *fakeLedger) RecordScheduled(ctx context.Context, courseID string, fireAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scheduled[courseID] = fireAt
	return nil
}

func (l *fakeLedger) MarkAnnounced(ctx context.Context, courseID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.announced[courseID] = at
	return nil
}

func (l *fakeLedger) ClearScheduled(ctx context.Context, courseID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleared = append(l.cleared, courseID)
	return nil
}

// manualTimers captures AfterFunc callbacks so tests control firing.
type manualTimers struct {
	mu        sync.Mutex
	callbacks []func()
}

func (m *manualTimers) afterFunc(d time.Duration, f func()) *time.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, f)
	return time.NewTimer(24 * time.Hour)
}

// fireAll invokes every captured callback. Cancelled or replaced jobs
// are no-ops inside fire, so firing stale callbacks is safe.
func (m *manualTimers) fireAll() {
	m.mu.Lock()
	cbs := make([]func(), len(m.callbacks))
	copy(cbs, m.callbacks)
	m.callbacks = m.callbacks[:0]
	m.mu.Unlock()
	for _, f := range cbs {
		f()
	}
}

type fixture struct {
	sched       *Scheduler
	clock       *testutil.FakeClock
	timers      *manualTimers
	directory   *fakeDirectory
	courses     *fakeCourseStore
	enrollments *fakeEnrollments
	mailer      *fakeMailer
	ledger      *fakeLedger
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		clock:  testutil.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		timers: &manualTimers{},
		directory: &fakeDirectory{recipients: []domain.Recipient{
			{Email: "a@x.com", FirstName: "Ada"},
		}},
		courses: &fakeCourseStore{
			statuses: make(map[string]domain.CourseStatus),
			courses:  make(map[string]domain.Course),
		},
		enrollments: &fakeEnrollments{students: make(map[string][]domain.Recipient)},
		mailer:      &fakeMailer{},
		ledger:      newFakeLedger(),
	}
	f.sched = New(cfg, f.directory, f.courses, f.enrollments, &fakeInstructors{}, f.mailer).
		WithLedger(f.ledger)
	f.sched.clock = f.clock.Now
	f.sched.afterFunc = f.timers.afterFunc
	return f
}

func (f *fixture) addCourse(id string, status domain.CourseStatus) domain.Course {
	course := domain.Course{ID: id, Title: "Course " + id, Status: status, CreatedAt: f.clock.Now()}
	f.courses.mu.Lock()
	f.courses.statuses[id] = status
	f.courses.courses[id] = course
	f.courses.mu.Unlock()
	return course
}

func TestHandleCourseCreation_SchedulesAndFires(t *testing.T) {
	f := newFixture(Config{})
	t0 := f.clock.Now()
	course := f.addCourse("C1", domain.StatusOpen)

	res := f.sched.HandleCourseCreation(context.Background(), course, "admin@x.com")
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.JobID != "new-course-C1" {
		t.Errorf("job id = %q, want new-course-C1", res.JobID)
	}
	if want := t0.Add(2 * time.Hour); !res.FireAt.Equal(want) {
		t.Errorf("fireAt = %s, want %s", res.FireAt, want)
	}
	if res.RecipientCount != 1 {
		t.Errorf("recipientCount = %d, want 1", res.RecipientCount)
	}
	if !f.sched.HasLiveJob("C1") {
		t.Fatal("expected a live job for C1")
	}

	// Advance past the grace window and fire.
	f.clock.Advance(2 * time.Hour)
	f.timers.fireAll()

	sent := f.mailer.callsOfKind(domain.KindAnnouncement)
	if len(sent) != 1 {
		t.Fatalf("expected 1 announcement, got %d", len(sent))
	}
	if len(sent[0].recipients) != 1 || sent[0].recipients[0].Email != "a@x.com" {
		t.Errorf("unexpected recipient list: %+v", sent[0].recipients)
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("job should be removed after firing")
	}
	if _, ok := f.ledger.announced["C1"]; !ok {
		t.Error("ledger should record the announcement")
	}
}

// At most one live job per course: rescheduling replaces, never duplicates.
func TestHandleCourseCreation_ReplacesExistingJob(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)

	f.sched.HandleCourseCreation(context.Background(), course, "admin")
	f.clock.Advance(10 * time.Minute)
	second := f.sched.HandleCourseCreation(context.Background(), course, "admin")

	report := f.sched.Status()
	if report.ActiveJobs != 1 {
		t.Fatalf("expected 1 live job, got %d", report.ActiveJobs)
	}
	if !report.Jobs[0].FireAt.Equal(second.FireAt) {
		t.Errorf("live job fireAt = %s, want latest %s", report.Jobs[0].FireAt, second.FireAt)
	}

	// Both captured callbacks fire; only the replacement may send.
	f.timers.fireAll()
	if got := len(f.mailer.callsOfKind(domain.KindAnnouncement)); got != 1 {
		t.Errorf("expected exactly 1 announcement, got %d", got)
	}
}

func TestHandleCourseCreation_ZeroRecipients(t *testing.T) {
	f := newFixture(Config{})
	f.directory.recipients = nil
	course := f.addCourse("C1", domain.StatusOpen)

	res := f.sched.HandleCourseCreation(context.Background(), course, "admin")
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.RecipientCount != 0 {
		t.Errorf("recipientCount = %d, want 0", res.RecipientCount)
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("no job should be scheduled for zero recipients")
	}
	if got := len(f.sched.Status().TrackedCourses); got != 0 {
		t.Errorf("no creation record should remain without a job, got %d", got)
	}
}

func TestHandleCourseCreation_DirectoryFailure(t *testing.T) {
	f := newFixture(Config{})
	f.directory.err = errors.New("directory down")
	course := f.addCourse("C1", domain.StatusOpen)

	res := f.sched.HandleCourseCreation(context.Background(), course, "admin")
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Error == "" {
		t.Error("failure result should carry an error message")
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("no job should exist after a directory failure")
	}
	if got := len(f.sched.Status().TrackedCourses); got != 0 {
		t.Errorf("no creation record should remain after a directory failure, got %d", got)
	}
}

func TestHandleCourseCreation_InstructorFailureSwallowed(t *testing.T) {
	f := newFixture(Config{})
	f.mailer.instructorErr = errors.New("relay 500")
	f.sched.instructors = &fakeInstructors{emails: []string{"prof@x.com"}}
	course := f.addCourse("C1", domain.StatusOpen)

	res := f.sched.HandleCourseCreation(context.Background(), course, "admin")
	if !res.Success {
		t.Fatalf("instructor mail failure must not fail the operation: %q", res.Error)
	}
	if !f.sched.HasLiveJob("C1") {
		t.Error("announcement job should still be scheduled")
	}
}

func TestHandleCourseCreation_UnpublishableStatus(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusDraft)

	res := f.sched.HandleCourseCreation(context.Background(), course, "admin")
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("draft courses must not schedule announcements")
	}
}

// Updates inside the grace window are folded into the pending announcement.
func TestHandleCourseUpdate_GraceWindowSuppression(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C2", domain.StatusOpen)
	f.enrollments.students["C2"] = []domain.Recipient{{Email: "s@x.com"}}

	f.sched.HandleCourseCreation(context.Background(), course, "admin")
	f.clock.Advance(30 * time.Minute)

	out := f.sched.HandleCourseUpdate(context.Background(), "C2", course, domain.ChangeSet{Schedule: true})
	if !out.Success || !out.Suppressed {
		t.Fatalf("expected suppressed success, got %+v", out)
	}
	if got := len(f.mailer.callsOfKind(domain.KindUpdate)); got != 0 {
		t.Errorf("expected 0 update emails inside grace window, got %d", got)
	}
}

func TestHandleCourseUpdate_AfterGraceWindow(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C2", domain.StatusOpen)
	students := []domain.Recipient{{Email: "s@x.com", FirstName: "Sam"}}
	f.enrollments.students["C2"] = students

	f.sched.HandleCourseCreation(context.Background(), course, "admin")
	f.clock.Advance(2 * time.Hour)

	out := f.sched.HandleCourseUpdate(context.Background(), "C2", course, domain.ChangeSet{Price: true})
	if !out.Success || out.Suppressed {
		t.Fatalf("expected non-suppressed success, got %+v", out)
	}
	if out.Notified != 1 {
		t.Errorf("notified = %d, want 1", out.Notified)
	}
	updates := f.mailer.callsOfKind(domain.KindUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected exactly 1 update email, got %d", len(updates))
	}
	if updates[0].recipients[0].Email != "s@x.com" {
		t.Errorf("update sent to %+v, want registered students", updates[0].recipients)
	}
}

func TestHandleCourseUpdate_NoStudents(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C2", domain.StatusOpen)

	f.clock.Advance(3 * time.Hour)
	out := f.sched.HandleCourseUpdate(context.Background(), "C2", course, domain.ChangeSet{})
	if !out.Success || out.Notified != 0 {
		t.Fatalf("expected no-op success, got %+v", out)
	}
	if len(f.mailer.calls) != 0 {
		t.Errorf("expected no mailer calls, got %d", len(f.mailer.calls))
	}
}

// Cancellation before the fire time prevents the announcement entirely.
func TestCancelScheduledNotification_PreventsFire(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	if !f.sched.CancelScheduledNotification("C1") {
		t.Fatal("expected cancel to report true for a live job")
	}
	f.clock.Advance(3 * time.Hour)
	f.timers.fireAll()

	if got := len(f.mailer.callsOfKind(domain.KindAnnouncement)); got != 0 {
		t.Errorf("announcement sent despite cancellation (%d calls)", got)
	}
}

func TestCancelScheduledNotification_Idempotent(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	if got := f.sched.CancelScheduledNotification("C1"); !got {
		t.Error("first cancel should return true")
	}
	if got := f.sched.CancelScheduledNotification("C1"); got {
		t.Error("second cancel should return false")
	}
	if got := f.sched.CancelScheduledNotification("unknown"); got {
		t.Error("cancelling an unknown course should return false")
	}
}

// A course cancelled during the grace window is re-checked and skipped at
// fire time.
func TestFire_SkipsCancelledCourse(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	f.courses.setStatus("C1", domain.StatusCancelled)
	f.clock.Advance(2 * time.Hour)
	f.timers.fireAll()

	if got := len(f.mailer.callsOfKind(domain.KindAnnouncement)); got != 0 {
		t.Errorf("expected no announcement for a cancelled course, got %d", got)
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("job should be reaped after the skip")
	}
	if len(f.ledger.cleared) == 0 {
		t.Error("ledger entry should be cleared on skip")
	}
}

func TestFire_SkipsMissingCourse(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	f.courses.mu.Lock()
	delete(f.courses.statuses, "C1")
	f.courses.mu.Unlock()

	f.timers.fireAll()
	if got := len(f.mailer.callsOfKind(domain.KindAnnouncement)); got != 0 {
		t.Errorf("expected no announcement for a deleted course, got %d", got)
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("job should be reaped after the skip")
	}
}

// A transient status-check failure must not lose the announcement: the
// job is reaped but the ledger row stays pending so the recovery scan
// reschedules it.
func TestFire_StatusCheckErrorKeepsLedgerPending(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	f.courses.mu.Lock()
	f.courses.err = errors.New("db timeout")
	f.courses.mu.Unlock()
	f.clock.Advance(2 * time.Hour)
	f.timers.fireAll()

	if got := len(f.mailer.callsOfKind(domain.KindAnnouncement)); got != 0 {
		t.Errorf("expected no announcement on status-check failure, got %d", got)
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("job should be reaped after the failed fire")
	}
	if len(f.ledger.cleared) != 0 {
		t.Errorf("ledger row must stay pending for recovery, cleared %v", f.ledger.cleared)
	}
	if _, ok := f.ledger.announced["C1"]; ok {
		t.Error("nothing was sent, course must not be marked announced")
	}
}

func TestFire_SendFailureStillReaps(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	f.mailer.announceErr = errors.New("relay down")
	f.timers.fireAll()

	if f.sched.HasLiveJob("C1") {
		t.Error("job must be reaped even when the send fails")
	}
}

func TestHandleCourseCancellation(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C3", domain.StatusOpen)
	f.enrollments.students["C3"] = []domain.Recipient{
		{Email: "s1@x.com"}, {Email: "s2@x.com"},
	}
	f.sched.HandleCourseCreation(context.Background(), course, "admin")
	f.clock.Advance(time.Hour)

	out := f.sched.HandleCourseCancellation(context.Background(), "C3", course)
	if !out.Success || out.Notified != 2 {
		t.Fatalf("expected 2 students notified, got %+v", out)
	}
	cancels := f.mailer.callsOfKind(domain.KindCancellation)
	if len(cancels) != 1 || len(cancels[0].recipients) != 2 {
		t.Fatalf("expected 1 cancellation email to 2 students, got %+v", cancels)
	}

	// Advancing past the original fire time must not announce.
	f.clock.Advance(2 * time.Hour)
	f.timers.fireAll()
	if got := len(f.mailer.callsOfKind(domain.KindAnnouncement)); got != 0 {
		t.Errorf("expected no announcement after cancellation, got %d", got)
	}
	if len(f.sched.Status().TrackedCourses) != 0 {
		t.Error("creation record should be deleted on cancellation")
	}
}

func TestHandleCourseCancellation_NoStudents(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C3", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	out := f.sched.HandleCourseCancellation(context.Background(), "C3", course)
	if !out.Success || out.Notified != 0 {
		t.Fatalf("expected success with 0 notified, got %+v", out)
	}
}

func TestSendImmediateNotification_LeavesPendingJob(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	out := f.sched.SendImmediateNotification(context.Background(), "C1")
	if !out.Success || out.Notified != 1 {
		t.Fatalf("expected immediate send to 1 recipient, got %+v", out)
	}
	if !f.sched.HasLiveJob("C1") {
		t.Error("pending job should survive an immediate send by default")
	}
}

func TestSendImmediateNotification_CancelsPendingWhenConfigured(t *testing.T) {
	f := newFixture(Config{ImmediateCancelsPending: true})
	course := f.addCourse("C1", domain.StatusOpen)
	f.sched.HandleCourseCreation(context.Background(), course, "admin")

	out := f.sched.SendImmediateNotification(context.Background(), "C1")
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if f.sched.HasLiveJob("C1") {
		t.Error("pending job should be cancelled before the immediate send")
	}
	f.timers.fireAll()
	if got := len(f.mailer.callsOfKind(domain.KindAnnouncement)); got != 1 {
		t.Errorf("expected exactly 1 announcement total, got %d", got)
	}
}

func TestSendImmediateNotification_CourseMissing(t *testing.T) {
	f := newFixture(Config{})
	out := f.sched.SendImmediateNotification(context.Background(), "nope")
	if out.Success {
		t.Fatal("expected failure for a missing course")
	}
}

func TestRestore_SchedulesRecoveredJob(t *testing.T) {
	f := newFixture(Config{})
	course := f.addCourse("C9", domain.StatusOpen)
	createdAt := f.clock.Now().Add(-90 * time.Minute)

	res := f.sched.Restore(context.Background(), course, createdAt)
	if !res.Success || res.RecipientCount != 1 {
		t.Fatalf("expected restored job, got %+v", res)
	}
	if want := createdAt.Add(2 * time.Hour); !res.FireAt.Equal(want) {
		t.Errorf("restored fireAt = %s, want %s (creation time preserved)", res.FireAt, want)
	}

	// A live job wins over a second restore.
	res2 := f.sched.Restore(context.Background(), course, createdAt.Add(time.Minute))
	if !res2.FireAt.Equal(res.FireAt) {
		t.Errorf("restore clobbered a live job: fireAt %s != %s", res2.FireAt, res.FireAt)
	}
	if f.sched.Status().ActiveJobs != 1 {
		t.Errorf("expected 1 live job, got %d", f.sched.Status().ActiveJobs)
	}
}

func TestStatusReport(t *testing.T) {
	f := newFixture(Config{})
	f.sched.HandleCourseCreation(context.Background(), f.addCourse("A", domain.StatusOpen), "admin")
	f.sched.HandleCourseCreation(context.Background(), f.addCourse("B", domain.StatusOpen), "admin")

	report := f.sched.Status()
	if report.ActiveJobs != 2 || len(report.Jobs) != 2 {
		t.Fatalf("expected 2 live jobs, got %+v", report)
	}
	if len(report.TrackedCourses) != 2 {
		t.Errorf("expected 2 tracked creation records, got %d", len(report.TrackedCourses))
	}
}
