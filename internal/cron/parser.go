// Package cron turns digest schedule expressions into concrete run
// times. Expressions use the standard five fields and are evaluated in
// the digest's configured timezone, so "0 9 * * 1" with
// "America/New_York" means Monday 09:00 New York time regardless of the
// host clock.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var fiveField = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule yields successive digest run times.
type Schedule interface {
	Next(after time.Time) time.Time
}

// ParseSchedule validates a five-field cron expression and binds it to
// the named timezone.
func ParseSchedule(expression, timezone string) (Schedule, error) {
	spec, err := fiveField.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return zonedSchedule{spec: spec, loc: loc}, nil
}

// Validate reports whether expression and timezone form a usable digest
// schedule, without building one.
func Validate(expression, timezone string) error {
	_, err := ParseSchedule(expression, timezone)
	return err
}

type zonedSchedule struct {
	spec cron.Schedule
	loc  *time.Location
}

func (z zonedSchedule) Next(after time.Time) time.Time {
	return z.spec.Next(after.In(z.loc))
}
