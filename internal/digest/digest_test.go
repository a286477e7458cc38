package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/testutil"
)

type fakeStore struct {
	courses   []domain.Course
	err       error
	lastSince time.Time
}

func (f *fakeStore) ListAnnouncedSince(ctx context.Context, since time.Time) ([]domain.Course, error) {
	f.lastSince = since
	return f.courses, f.err
}

type fakeDirectory struct {
	recipients []domain.Recipient
	err        error
}

func (f *fakeDirectory) GetNotificationRecipients(ctx context.Context) ([]domain.Recipient, error) {
	return f.recipients, f.err
}

type fakeMailer struct {
	sent [][]domain.AnnouncementData
	err  error
}

func (f *fakeMailer) SendDigest(ctx context.Context, items []domain.AnnouncementData, recipients []domain.Recipient) error {
	f.sent = append(f.sent, items)
	return f.err
}

type fixedSchedule struct{ next time.Time }

func (s fixedSchedule) Next(after time.Time) time.Time { return s.next }

func newTestDigest(store *fakeStore, dir *fakeDirectory, mailer *fakeMailer) (*Digest, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	d := New(fixedSchedule{}, store, dir, mailer)
	d.clock = clock.Now
	d.lastRun = clock.Now().Add(-7 * 24 * time.Hour)
	return d, clock
}

func TestRunOnce_SendsDigest(t *testing.T) {
	store := &fakeStore{courses: []domain.Course{
		testutil.Course("crs-1", domain.StatusOpen),
		testutil.Course("crs-2", domain.StatusOpen),
	}}
	dir := &fakeDirectory{recipients: testutil.Recipients("ana@example.com")}
	mailer := &fakeMailer{}
	d, clock := newTestDigest(store, dir, mailer)
	weekAgo := clock.Now().Add(-7 * 24 * time.Hour)

	d.runOnce(context.Background())

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(mailer.sent))
	}
	if len(mailer.sent[0]) != 2 {
		t.Fatalf("expected 2 courses in digest, got %d", len(mailer.sent[0]))
	}
	if !store.lastSince.Equal(weekAgo) {
		t.Errorf("expected window to start at last run, got %s", store.lastSince)
	}
}

func TestRunOnce_EmptyWindowSkips(t *testing.T) {
	store := &fakeStore{}
	dir := &fakeDirectory{recipients: testutil.Recipients("ana@example.com")}
	mailer := &fakeMailer{}
	d, _ := newTestDigest(store, dir, mailer)

	d.runOnce(context.Background())

	if len(mailer.sent) != 0 {
		t.Fatalf("expected no digest for empty window, got %d", len(mailer.sent))
	}
}

func TestRunOnce_NoRecipientsSkips(t *testing.T) {
	store := &fakeStore{courses: []domain.Course{testutil.Course("crs-1", domain.StatusOpen)}}
	dir := &fakeDirectory{}
	mailer := &fakeMailer{}
	d, _ := newTestDigest(store, dir, mailer)

	d.runOnce(context.Background())

	if len(mailer.sent) != 0 {
		t.Fatalf("expected no digest without recipients, got %d", len(mailer.sent))
	}
}

func TestRunOnce_StoreErrorKeepsRunning(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	dir := &fakeDirectory{recipients: testutil.Recipients("ana@example.com")}
	mailer := &fakeMailer{}
	d, _ := newTestDigest(store, dir, mailer)

	d.runOnce(context.Background())

	if len(mailer.sent) != 0 {
		t.Fatalf("expected no digest on store error, got %d", len(mailer.sent))
	}
}

func TestRunOnce_AdvancesWindow(t *testing.T) {
	store := &fakeStore{courses: []domain.Course{testutil.Course("crs-1", domain.StatusOpen)}}
	dir := &fakeDirectory{recipients: testutil.Recipients("ana@example.com")}
	mailer := &fakeMailer{}
	d, clock := newTestDigest(store, dir, mailer)

	d.runOnce(context.Background())
	firstRun := clock.Now()

	clock.Advance(7 * 24 * time.Hour)
	d.runOnce(context.Background())

	if !store.lastSince.Equal(firstRun) {
		t.Fatalf("expected second window to start at first run %s, got %s", firstRun, store.lastSince)
	}
}
