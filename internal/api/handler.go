// Package api exposes the notification scheduler over HTTP. Course
// lifecycle events arrive as webhooks from the course-management
// backend; the remaining endpoints serve admin tooling.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/notify"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Notifier defines the scheduling operations the API exposes.
type Notifier interface {
	HandleCourseCreation(ctx context.Context, course domain.Course, actor string) notify.SchedulingResult
	HandleCourseUpdate(ctx context.Context, courseID string, course domain.Course, changes domain.ChangeSet) notify.Outcome
	HandleCourseCancellation(ctx context.Context, courseID string, course domain.Course) notify.Outcome
	SendImmediateNotification(ctx context.Context, courseID string) notify.Outcome
	CancelScheduledNotification(courseID string) bool
	Status() notify.StatusReport
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	notifier Notifier
	db       HealthChecker
	clock    func() time.Time
}

func NewHandler(notifier Notifier) *Handler {
	return &Handler{notifier: notifier, clock: time.Now}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/events/course-created" && r.Method == http.MethodPost:
		h.courseCreated(w, r)

	case path == "/events/course-updated" && r.Method == http.MethodPost:
		h.courseUpdated(w, r)

	case path == "/events/course-cancelled" && r.Method == http.MethodPost:
		h.courseCancelled(w, r)

	case strings.HasSuffix(path, "/notify-now") && r.Method == http.MethodPost:
		h.notifyNow(w, r)

	case strings.HasSuffix(path, "/notification") && r.Method == http.MethodDelete:
		h.cancelNotification(w, r)

	case path == "/notifications/status" && r.Method == http.MethodGet:
		h.status(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) courseCreated(w http.ResponseWriter, r *http.Request) {
	var req CourseCreatedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateCourse(req.Course); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	course := toCourse(req.Course, h.clock().UTC())
	result := h.notifier.HandleCourseCreation(r.Context(), course, req.Actor)

	// Collaborator failures surface in the result body, not as a 5xx:
	// the webhook sender retries on 5xx and the operation is not safely
	// repeatable.
	writeJSON(w, http.StatusOK, toScheduleResponse(result))
}

func (h *Handler) courseUpdated(w http.ResponseWriter, r *http.Request) {
	var req CourseUpdatedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateCourseUpdated(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	course := toCourse(req.Course, h.clock().UTC())
	course.ID = req.CourseID
	changes := domain.ChangeSet(req.Changes)
	outcome := h.notifier.HandleCourseUpdate(r.Context(), req.CourseID, course, changes)

	writeJSON(w, http.StatusOK, toOutcomeResponse(outcome))
}

func (h *Handler) courseCancelled(w http.ResponseWriter, r *http.Request) {
	var req CourseCancelledRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := validateCourseCancelled(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	course := domain.Course{ID: req.CourseID, Status: domain.StatusCancelled}
	if req.Course != nil {
		course = toCourse(*req.Course, h.clock().UTC())
		course.ID = req.CourseID
		course.Status = domain.StatusCancelled
	}
	outcome := h.notifier.HandleCourseCancellation(r.Context(), req.CourseID, course)

	writeJSON(w, http.StatusOK, toOutcomeResponse(outcome))
}

func (h *Handler) notifyNow(w http.ResponseWriter, r *http.Request) {
	// Path: /courses/{id}/notify-now
	courseID, ok := courseIDFromPath(r.URL.Path, "notify-now")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	outcome := h.notifier.SendImmediateNotification(r.Context(), courseID)
	writeJSON(w, http.StatusOK, toOutcomeResponse(outcome))
}

func (h *Handler) cancelNotification(w http.ResponseWriter, r *http.Request) {
	// Path: /courses/{id}/notification
	courseID, ok := courseIDFromPath(r.URL.Path, "notification")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	cancelled := h.notifier.CancelScheduledNotification(courseID)
	writeJSON(w, http.StatusOK, CancelResponse{
		Cancelled: cancelled,
		JobID:     notify.JobID(courseID),
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	report := h.notifier.Status()

	resp := StatusResponse{
		ActiveJobs:     report.ActiveJobs,
		Jobs:           make([]JobStatusResponse, len(report.Jobs)),
		TrackedCourses: report.TrackedCourses,
	}
	for i, job := range report.Jobs {
		resp.Jobs[i] = JobStatusResponse{
			JobID:    job.JobID,
			CourseID: job.CourseID,
			FireAt:   formatTime(job.FireAt),
		}
	}
	if resp.TrackedCourses == nil {
		resp.TrackedCourses = []string{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// courseIDFromPath extracts {id} from /courses/{id}/{suffix}.
func courseIDFromPath(path, suffix string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "courses" || parts[2] != suffix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// decodeBody decodes a size-limited JSON body, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
