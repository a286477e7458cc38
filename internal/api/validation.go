package api

import (
	"fmt"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
)

func validateCourse(req CourseRequest) error {
	if req.ID == "" {
		return fmt.Errorf("course id is required")
	}
	if req.Title == "" {
		return fmt.Errorf("course title is required")
	}
	if err := validateStatus(req.Status); err != nil {
		return err
	}
	if req.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	return nil
}

func validateStatus(status string) error {
	switch domain.CourseStatus(status) {
	case domain.StatusDraft, domain.StatusOpen, domain.StatusCancelled:
		return nil
	case "":
		return fmt.Errorf("course status is required")
	default:
		return fmt.Errorf("unknown course status %q", status)
	}
}

func validateCourseUpdated(req CourseUpdatedRequest) error {
	if req.CourseID == "" {
		return fmt.Errorf("course_id is required")
	}
	if req.Course.ID != "" && req.Course.ID != req.CourseID {
		return fmt.Errorf("course_id does not match course payload")
	}
	return validateCourse(req.Course)
}

func validateCourseCancelled(req CourseCancelledRequest) error {
	if req.CourseID == "" {
		return fmt.Errorf("course_id is required")
	}
	if req.Course != nil && req.Course.ID != "" && req.Course.ID != req.CourseID {
		return fmt.Errorf("course_id does not match course payload")
	}
	return nil
}
