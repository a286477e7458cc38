package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	KindAnnouncement NotificationKind = "announcement"
	KindUpdate       NotificationKind = "update"
	KindCancellation NotificationKind = "cancellation"
	KindInstructor   NotificationKind = "instructor"
	KindDigest       NotificationKind = "digest"
)

// SendAttempt records one mail-relay call, successful or not.
type SendAttempt struct {
	ID       uuid.UUID
	CourseID string
	Kind     NotificationKind
	Attempt  int

	StatusCode int
	Error      string

	StartedAt  time.Time
	FinishedAt time.Time
}
