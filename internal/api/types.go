package api

import (
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/notify"
)

// CourseRequest is the course payload carried by lifecycle events.
type CourseRequest struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Code               string   `json:"code,omitempty"`
	Status             string   `json:"status"`
	Schedule           string   `json:"schedule,omitempty"`
	Price              float64  `json:"price,omitempty"`
	Currency           string   `json:"currency,omitempty"`
	Platform           string   `json:"platform,omitempty"`
	Instructors        []string `json:"instructors,omitempty"`
	TechnicalSummary   string   `json:"technical_summary,omitempty"`
	RecordingSummary   string   `json:"recording_summary,omitempty"`
	InteractionSummary string   `json:"interaction_summary,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"` // RFC3339, defaults to now
}

type CourseCreatedRequest struct {
	Course CourseRequest `json:"course"`
	Actor  string        `json:"actor,omitempty"`
}

// ChangesRequest names which course fields an update touched.
type ChangesRequest struct {
	Schedule    bool `json:"schedule,omitempty"`
	Price       bool `json:"price,omitempty"`
	Platform    bool `json:"platform,omitempty"`
	Instructors bool `json:"instructors,omitempty"`
	Materials   bool `json:"materials,omitempty"`
}

type CourseUpdatedRequest struct {
	CourseID string         `json:"course_id"`
	Course   CourseRequest  `json:"course"`
	Changes  ChangesRequest `json:"changes"`
}

type CourseCancelledRequest struct {
	CourseID string         `json:"course_id"`
	Course   *CourseRequest `json:"course,omitempty"`
}

type ScheduleResponse struct {
	Success        bool   `json:"success"`
	JobID          string `json:"job_id,omitempty"`
	FireAt         string `json:"fire_at,omitempty"`
	RecipientCount int    `json:"recipient_count"`
	Error          string `json:"error,omitempty"`
}

type OutcomeResponse struct {
	Success    bool   `json:"success"`
	Notified   int    `json:"notified"`
	Suppressed bool   `json:"suppressed,omitempty"`
	Error      string `json:"error,omitempty"`
}

type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	JobID     string `json:"job_id"`
}

type JobStatusResponse struct {
	JobID    string `json:"job_id"`
	CourseID string `json:"course_id"`
	FireAt   string `json:"fire_at"`
}

type StatusResponse struct {
	ActiveJobs     int                 `json:"active_jobs"`
	Jobs           []JobStatusResponse `json:"jobs"`
	TrackedCourses []string            `json:"tracked_courses"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// toCourse converts the request payload to a domain course. A missing
// or malformed created_at falls back to now.
func toCourse(req CourseRequest, now time.Time) domain.Course {
	createdAt := now
	if req.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, req.CreatedAt); err == nil {
			createdAt = t
		}
	}
	return domain.Course{
		ID:                 req.ID,
		Title:              req.Title,
		Code:               req.Code,
		Status:             domain.CourseStatus(req.Status),
		Schedule:           req.Schedule,
		Price:              req.Price,
		Currency:           req.Currency,
		Platform:           req.Platform,
		Instructors:        req.Instructors,
		TechnicalSummary:   req.TechnicalSummary,
		RecordingSummary:   req.RecordingSummary,
		InteractionSummary: req.InteractionSummary,
		CreatedAt:          createdAt,
		UpdatedAt:          now,
	}
}

func toScheduleResponse(result notify.SchedulingResult) ScheduleResponse {
	resp := ScheduleResponse{
		Success:        result.Success,
		JobID:          result.JobID,
		RecipientCount: result.RecipientCount,
		Error:          result.Error,
	}
	if !result.FireAt.IsZero() {
		resp.FireAt = formatTime(result.FireAt)
	}
	return resp
}

func toOutcomeResponse(outcome notify.Outcome) OutcomeResponse {
	return OutcomeResponse{
		Success:    outcome.Success,
		Notified:   outcome.Notified,
		Suppressed: outcome.Suppressed,
		Error:      outcome.Error,
	}
}
