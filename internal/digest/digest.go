// Package digest sends a periodic summary email of recently announced
// courses, driven by a cron expression.
package digest

import (
	"context"
	"log"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/cron"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
)

// Store lists courses announced in a window.
type Store interface {
	ListAnnouncedSince(ctx context.Context, since time.Time) ([]domain.Course, error)
}

// RecipientDirectory returns the digest audience.
type RecipientDirectory interface {
	GetNotificationRecipients(ctx context.Context) ([]domain.Recipient, error)
}

// Mailer sends the digest email.
type Mailer interface {
	SendDigest(ctx context.Context, items []domain.AnnouncementData, recipients []domain.Recipient) error
}

// Digest runs the periodic summary loop.
type Digest struct {
	schedule   cron.Schedule
	store      Store
	recipients RecipientDirectory
	mailer     Mailer
	clock      func() time.Time
	lastRun    time.Time
}

// New creates a Digest. The schedule comes from a parsed cron
// expression such as "0 9 * * 1".
func New(schedule cron.Schedule, store Store, recipients RecipientDirectory, mailer Mailer) *Digest {
	return &Digest{
		schedule:   schedule,
		store:      store,
		recipients: recipients,
		mailer:     mailer,
		clock:      time.Now,
	}
}

// Run blocks until ctx is cancelled, sending one digest per schedule
// tick covering everything announced since the previous tick.
func (d *Digest) Run(ctx context.Context) {
	d.lastRun = d.clock().UTC()
	log.Printf("digest: started, next run at %s", d.schedule.Next(d.lastRun).Format(time.RFC3339))

	for {
		now := d.clock().UTC()
		next := d.schedule.Next(now)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			log.Println("digest: stopped")
			return
		case <-timer.C:
			d.runOnce(ctx)
		}
	}
}

// runOnce sends the digest for the window since the last run. An empty
// window sends nothing.
func (d *Digest) runOnce(ctx context.Context) {
	now := d.clock().UTC()
	since := d.lastRun
	d.lastRun = now

	courses, err := d.store.ListAnnouncedSince(ctx, since)
	if err != nil {
		log.Printf("digest: failed to list announced courses: %v", err)
		return
	}
	if len(courses) == 0 {
		log.Println("digest: no courses announced in window, skipping")
		return
	}

	recipients, err := d.recipients.GetNotificationRecipients(ctx)
	if err != nil {
		log.Printf("digest: failed to fetch recipients: %v", err)
		return
	}
	if len(recipients) == 0 {
		log.Println("digest: no recipients, skipping")
		return
	}

	items := make([]domain.AnnouncementData, 0, len(courses))
	for _, c := range courses {
		items = append(items, domain.NewAnnouncementData(c))
	}

	if err := d.mailer.SendDigest(ctx, items, recipients); err != nil {
		log.Printf("digest: send failed: %v", err)
		return
	}

	log.Printf("digest: sent summary of %d courses to %d recipients", len(items), len(recipients))
}
