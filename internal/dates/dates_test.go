package dates

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	now := time.Date(2026, 5, 13, 10, 0, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-06-01", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-06-01T09:30:00Z", time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in, now)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if got == nil || got.Year() != tt.want.Year() || got.YearDay() != tt.want.YearDay() {
				t.Errorf("Parse(%q) = %v, want day of %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	got, err := Parse("   ", time.Now())
	if err != nil || got != nil {
		t.Errorf("Parse(blank) = %v, %v; want nil, nil", got, err)
	}
}

func TestParse_Garbage(t *testing.T) {
	if _, err := Parse("qwxz", time.Now()); err == nil {
		t.Error("Parse(garbage) succeeded")
	}
}

func TestFormat(t *testing.T) {
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := Format(&day); got != "2026-06-01" {
		t.Errorf("Format(day) = %q", got)
	}
	at := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	if got := Format(&at); got != "2026-06-01T09:30:00Z" {
		t.Errorf("Format(time) = %q", got)
	}
	if Format(nil) != "" {
		t.Error("Format(nil) not empty")
	}
}
