package repository

import (
	"database/sql"
	"testing"
	"time"
)

func TestFormatTimeSortsChronologically(t *testing.T) {
	earlier := time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC)
	later := earlier.Add(1500 * time.Millisecond)
	if !(formatTime(earlier) < formatTime(later)) {
		t.Fatalf("%s should sort before %s", formatTime(earlier), formatTime(later))
	}
	if len(formatTime(earlier)) != len(formatTime(later)) {
		t.Fatal("formatted times must be fixed width")
	}
}

func TestParseTimeAcceptsLegacyLayouts(t *testing.T) {
	want := time.Date(2026, 5, 11, 9, 30, 0, 0, time.UTC)
	for _, raw := range []string{formatTime(want), "2026-05-11T09:30:00Z", "2026-05-11T11:30:00+02:00"} {
		got, err := parseTime(raw)
		if err != nil {
			t.Fatalf("parseTime(%q): %v", raw, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parseTime(%q) = %v", raw, got)
		}
	}
	if _, err := parseTime("yesterday"); err == nil {
		t.Fatal("expected garbage to fail")
	}
}

func TestNullTimeRoundTrip(t *testing.T) {
	if formatNullTime(nil) != nil {
		t.Fatal("nil time should map to NULL")
	}
	parsed, err := parseNullTime(sql.NullString{})
	if err != nil || parsed != nil {
		t.Fatalf("expected nil for NULL, got %v %v", parsed, err)
	}

	end := time.Date(2026, 5, 11, 10, 0, 0, 0, time.UTC)
	raw, _ := formatNullTime(&end).(string)
	parsed, err = parseNullTime(sql.NullString{String: raw, Valid: true})
	if err != nil || parsed == nil || !parsed.Equal(end) {
		t.Fatalf("unexpected round trip %v %v", parsed, err)
	}
}
