package score

import (
	"testing"
	"time"
)

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-01"},
		{time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), "2025-12"},
	}
	for _, tt := range tests {
		if got := PeriodOf(tt.t); got != tt.want {
			t.Errorf("PeriodOf(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestValidPeriod(t *testing.T) {
	for _, p := range []string{"2025-01", "1999-12"} {
		if !ValidPeriod(p) {
			t.Errorf("ValidPeriod(%q) = false", p)
		}
	}
	for _, p := range []string{"", "2025", "2025-13", "2025-1", "25-01", "2025/01"} {
		if ValidPeriod(p) {
			t.Errorf("ValidPeriod(%q) = true", p)
		}
	}
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2025, 3, 4, 17, 30, 0, 0, time.UTC)
	if got := StartOfDay(in); !got.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartOfDay = %v", got)
	}
}
