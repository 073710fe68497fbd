package main

import (
	"testing"
	"time"
)

func TestParseDateParam(t *testing.T) {
	from, err := parseDateParam("2026-08-15", false)
	if err != nil {
		t.Fatalf("parse from: %v", err)
	}
	if !from.Equal(time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected midnight, got %s", from)
	}

	// A date-only upper bound covers the whole day, so a row created that
	// afternoon still matches created_at <= to.
	to, err := parseDateParam("2026-08-15", true)
	if err != nil {
		t.Fatalf("parse to: %v", err)
	}
	sameDayAfternoon := time.Date(2026, 8, 15, 16, 30, 0, 0, time.UTC)
	if to.Before(sameDayAfternoon) {
		t.Fatalf("date-only upper bound %s excludes %s", to, sameDayAfternoon)
	}
	if to.Year() != 2026 || to.Month() != time.August || to.Day() != 15 {
		t.Fatalf("upper bound crossed into the next day: %s", to)
	}

	// Full timestamps pass through untouched in both positions.
	stamp := "2026-08-15T10:00:00Z"
	want := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	for _, endOfDay := range []bool{false, true} {
		got, err := parseDateParam(stamp, endOfDay)
		if err != nil {
			t.Fatalf("parse %q: %v", stamp, err)
		}
		if !got.Equal(want) {
			t.Fatalf("timestamp was altered: %s", got)
		}
	}

	if got, err := parseDateParam("  ", true); err != nil || got != nil {
		t.Fatalf("blank input: got %v, err %v", got, err)
	}
	if _, err := parseDateParam("15/08/2026", true); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}
