package analytics

import (
	"context"
	"log"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
)

// drainTimeout bounds how long shutdown waits for buffered events.
const drainTimeout = 5 * time.Second

// AuditStore persists one audit row per lifecycle event.
type AuditStore interface {
	InsertNotificationEvent(ctx context.Context, event domain.NotificationEvent) error
}

// CounterSink writes aggregate counters for an event.
type CounterSink interface {
	Write(ctx context.Context, event domain.NotificationEvent) error
}

// Recorder consumes lifecycle events off the bus and persists them.
// Both sinks are best-effort: a failed write is logged, never retried,
// and never blocks the scheduler.
type Recorder struct {
	events   <-chan domain.NotificationEvent
	audit    AuditStore  // optional, nil = disabled
	counters CounterSink // optional, nil = disabled
}

func NewRecorder(events <-chan domain.NotificationEvent) *Recorder {
	return &Recorder{events: events}
}

// WithAuditStore attaches the Postgres audit log.
func (r *Recorder) WithAuditStore(store AuditStore) *Recorder {
	r.audit = store
	return r
}

// WithCounters attaches the Redis counter sink.
func (r *Recorder) WithCounters(sink CounterSink) *Recorder {
	r.counters = sink
	return r
}

// Run consumes events until ctx is cancelled, then drains whatever is
// still buffered before returning.
func (r *Recorder) Run(ctx context.Context) {
	log.Println("recorder: started")

	for {
		select {
		case <-ctx.Done():
			r.drain()
			log.Println("recorder: stopped")
			return
		case event, ok := <-r.events:
			if !ok {
				log.Println("recorder: event channel closed")
				return
			}
			r.record(ctx, event)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case event, ok := <-r.events:
			if !ok {
				return
			}
			r.record(ctx, event)
		default:
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, event domain.NotificationEvent) {
	if r.audit != nil {
		if err := r.audit.InsertNotificationEvent(ctx, event); err != nil {
			log.Printf("recorder: audit insert failed event=%s course=%s: %v", event.Type, event.CourseID, err)
		}
	}
	if r.counters != nil {
		if err := r.counters.Write(ctx, event); err != nil {
			log.Printf("recorder: counter write failed event=%s course=%s: %v", event.Type, event.CourseID, err)
		}
	}
}
