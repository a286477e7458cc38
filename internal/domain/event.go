package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventScheduled   EventType = "scheduled"   // announcement job created
	EventFired       EventType = "fired"       // announcement sent at fire time
	EventSkipped     EventType = "skipped"     // fire aborted (course gone or cancelled)
	EventCancelled   EventType = "cancelled"   // pending job explicitly cancelled
	EventSuppressed  EventType = "suppressed"  // update swallowed by grace window
	EventNotified    EventType = "notified"    // immediate update/cancellation email sent
	EventRescheduled EventType = "rescheduled" // recovered from the durable ledger
)

// NotificationEvent is the audit record emitted by the scheduler on every
// state transition. Consumed off the event bus by the recorder, which
// writes analytics counters and the Postgres audit log.
type NotificationEvent struct {
	ID   uuid.UUID
	Type EventType

	CourseID   string
	Kind       NotificationKind
	Recipients int
	FireAt     time.Time // zero unless Type is scheduled/rescheduled
	Reason     string    // optional detail for skips and suppressions

	CreatedAt time.Time
}
