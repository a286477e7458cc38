// Package reconciler reschedules announcement jobs lost to a restart.
//
// Pending jobs live in memory; the ledger keeps one row per scheduled
// announcement until it is sent or cancelled. On startup (and then
// periodically, as a safety net) the reconciler scans for ledger rows
// with no live in-memory job and hands them back to the scheduler.
// Courses whose original fire time already passed are announced on the
// next scheduler pass rather than dropped.
package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/notify"
)

// Store defines the interface for fetching courses whose scheduled
// announcement was never sent.
type Store interface {
	GetUnannouncedCourses(ctx context.Context, limit int) ([]domain.Course, error)
}

// Scheduler defines the scheduling operations the reconciler needs.
type Scheduler interface {
	HasLiveJob(courseID string) bool
	Restore(ctx context.Context, course domain.Course, createdAt time.Time) notify.SchedulingResult
}

// MetricsSink records recovery metrics.
type MetricsSink interface {
	RecoveredJobs(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler re-scans after startup.
	// Default: 10 minutes.
	Interval time.Duration

	// BatchSize is the maximum number of courses to recover per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  10 * time.Minute,
		BatchSize: 100,
	}
}

// Reconciler recovers scheduled announcements from the ledger.
type Reconciler struct {
	config  Config
	store   Store
	sched   Scheduler
	metrics MetricsSink
}

// New creates a new Reconciler.
func New(config Config, store Store, sched Scheduler) *Reconciler {
	return &Reconciler{
		config: config,
		store:  store,
		sched:  sched,
	}
}

// WithMetrics attaches a metrics sink.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// Run starts the recovery loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, batch=%d)", r.config.Interval, r.config.BatchSize)

	// Recover immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one recovery cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	courses, err := r.store.GetUnannouncedCourses(ctx, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to fetch unannounced courses: %v", err)
		return
	}

	if len(courses) == 0 {
		return
	}

	restored := 0
	skipped := 0
	failed := 0

	for _, course := range courses {
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, processed %d/%d courses",
				restored+skipped+failed, len(courses))
			return
		}

		// A live in-memory job already covers this course. The ledger
		// row belongs to it, not to a lost job.
		if r.sched.HasLiveJob(course.ID) {
			skipped++
			continue
		}

		result := r.sched.Restore(ctx, course, course.CreatedAt)
		if !result.Success {
			log.Printf("reconciler: failed to restore course=%s: %s", course.ID, result.Error)
			failed++
			continue
		}

		log.Printf("reconciler: restored course=%s fire_at=%s",
			course.ID, result.FireAt.Format(time.RFC3339))
		restored++
	}

	if r.metrics != nil && restored > 0 {
		r.metrics.RecoveredJobs(restored)
	}

	log.Printf("reconciler: cycle complete, restored=%d skipped=%d failed=%d",
		restored, skipped, failed)
}
