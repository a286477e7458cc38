package cron

import (
	"testing"
	"time"
)

func TestParseSchedule_WeeklyExpression(t *testing.T) {
	sched, err := ParseSchedule("0 9 * * 1", "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wednesday -> next Monday 09:00
	after := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	next := sched.Next(after)
	want := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestParseSchedule_InvalidExpression(t *testing.T) {
	if _, err := ParseSchedule("not a cron", "UTC"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestParseSchedule_InvalidTimezone(t *testing.T) {
	if _, err := ParseSchedule("0 9 * * 1", "Mars/Olympus"); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestParseSchedule_TimezoneApplied(t *testing.T) {
	sched, err := ParseSchedule("0 9 * * *", "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 13:00 UTC in January is 08:00 New York, so the next run is an
	// hour later.
	after := time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)
	next := sched.Next(after).UTC()
	want := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("0 9 * * 1", "UTC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate("61 9 * * 1", "UTC"); err == nil {
		t.Fatal("expected error for out-of-range minute field")
	}
	if err := Validate("0 9 * * 1", "Mars/Olympus"); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}
