package quota

import (
	"testing"
	"time"
)

func TestDailyReset_NextReset(t *testing.T) {
	loc := pacific(t)
	policy := DailyReset{Location: loc}

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{
			name: "midday",
			at:   time.Date(2026, 3, 10, 12, 0, 0, 0, loc),
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, loc),
		},
		{
			name: "exactly midnight moves to next day",
			at:   time.Date(2026, 3, 10, 0, 0, 0, 0, loc),
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, loc),
		},
		{
			name: "UTC instant that is still yesterday in Pacific",
			at:   time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, loc),
		},
		{
			name: "month rollover",
			at:   time.Date(2026, 1, 31, 18, 0, 0, 0, loc),
			want: time.Date(2026, 2, 1, 0, 0, 0, 0, loc),
		},
		{
			name: "day of DST start",
			at:   time.Date(2026, 3, 8, 1, 0, 0, 0, loc),
			want: time.Date(2026, 3, 9, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.NextReset(tt.at)
			if !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if !got.After(tt.at) {
				t.Errorf("Expected reset strictly after %v", tt.at)
			}
		})
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("", 0)
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	if d, ok := p.(DailyReset); !ok || d.Location.String() != DefaultResetTimezone {
		t.Errorf("Expected default daily reset, got %v", p)
	}

	p, err = NewPolicy("UTC", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	if r, ok := p.(RollingReset); !ok || r.Window != 30*time.Minute {
		t.Errorf("Expected rolling reset, got %v", p)
	}

	if _, err := NewPolicy("Not/AZone", 0); err == nil {
		t.Error("Expected error for unknown timezone")
	}
}
