package domain

import "time"

type CourseStatus string

const (
	StatusDraft     CourseStatus = "draft"
	StatusOpen      CourseStatus = "open"
	StatusCancelled CourseStatus = "cancelled"
)

// Publishable reports whether a course in this status may be announced.
func (s CourseStatus) Publishable() bool {
	return s != StatusDraft && s != StatusCancelled
}

// Course is the materialized course record handed to the notification
// service by the platform controllers. ID is opaque; the platform owns
// its format.
type Course struct {
	ID     string
	Title  string
	Code   string
	Status CourseStatus

	Schedule string // human-readable schedule summary
	Price    float64
	Currency string
	Platform string

	Instructors []string

	TechnicalSummary   string
	RecordingSummary   string
	InteractionSummary string

	CreatedAt time.Time
	UpdatedAt time.Time
}
