package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/cron"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	if cfg.MailerURL == "" {
		errs = append(errs, ValidationError{
			Field:   "MAILER_URL",
			Message: "required",
		})
	} else if err := validateHTTPURL(cfg.MailerURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "MAILER_URL",
			Message: err.Error(),
		})
	}

	if cfg.GraceWindowStr != "" {
		d, err := time.ParseDuration(cfg.GraceWindowStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "GRACE_WINDOW",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "GRACE_WINDOW",
				Message: "must be positive",
			})
		}
	}

	if cfg.DigestCron != "" {
		// Timezone is checked separately so each field gets its own error.
		if err := cron.Validate(cfg.DigestCron, "UTC"); err != nil {
			errs = append(errs, ValidationError{
				Field:   "DIGEST_CRON",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
		if _, err := time.LoadLocation(cfg.DigestTimezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "DIGEST_TIMEZONE",
				Message: fmt.Sprintf("invalid timezone: %v", err),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
