package followup

import (
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func weekdaySettings() Settings {
	return Settings{
		RespectBusinessHours: true,
		WorkStartHour:        9,
		WorkEndHour:          18,
		WorkDays:             []int{1, 2, 3, 4, 5},
	}
}

func TestProjectBusinessHours(t *testing.T) {
	loc := time.UTC

	cases := []struct {
		name     string
		settings Settings
		in       time.Time
		want     time.Time
	}{
		{
			name:     "disabled passes through",
			settings: Settings{RespectBusinessHours: false},
			in:       time.Date(2025, 6, 7, 23, 30, 0, 0, loc),
			want:     time.Date(2025, 6, 7, 23, 30, 0, 0, loc),
		},
		{
			name:     "inside window unchanged",
			settings: weekdaySettings(),
			in:       time.Date(2025, 6, 2, 10, 15, 0, 0, loc), // Monday
			want:     time.Date(2025, 6, 2, 10, 15, 0, 0, loc),
		},
		{
			name:     "before opening moves to work start",
			settings: weekdaySettings(),
			in:       time.Date(2025, 6, 2, 7, 45, 0, 0, loc),
			want:     time.Date(2025, 6, 2, 9, 0, 0, 0, loc),
		},
		{
			name:     "after closing moves to next morning",
			settings: weekdaySettings(),
			in:       time.Date(2025, 6, 2, 19, 5, 0, 0, loc),
			want:     time.Date(2025, 6, 3, 9, 0, 0, 0, loc),
		},
		{
			name:     "saturday afternoon moves to monday morning",
			settings: weekdaySettings(),
			in:       time.Date(2025, 6, 7, 14, 0, 0, 0, loc), // Saturday
			want:     time.Date(2025, 6, 9, 9, 0, 0, 0, loc),  // Monday
		},
		{
			name:     "friday night skips the weekend",
			settings: weekdaySettings(),
			in:       time.Date(2025, 6, 6, 22, 0, 0, 0, loc), // Friday
			want:     time.Date(2025, 6, 9, 9, 0, 0, 0, loc),
		},
		{
			name: "lunch window pushes to lunch end",
			settings: func() Settings {
				s := weekdaySettings()
				s.LunchStartHour = intPtr(12)
				s.LunchEndHour = intPtr(13)
				return s
			}(),
			in:   time.Date(2025, 6, 2, 12, 20, 0, 0, loc),
			want: time.Date(2025, 6, 2, 13, 0, 0, 0, loc),
		},
		{
			name: "lunch running to closing rolls over",
			settings: func() Settings {
				s := weekdaySettings()
				s.LunchStartHour = intPtr(17)
				s.LunchEndHour = intPtr(18)
				return s
			}(),
			in:   time.Date(2025, 6, 2, 17, 30, 0, 0, loc),
			want: time.Date(2025, 6, 3, 9, 0, 0, 0, loc),
		},
		{
			name: "degenerate window passes through",
			settings: func() Settings {
				s := weekdaySettings()
				s.WorkEndHour = s.WorkStartHour
				return s
			}(),
			in:   time.Date(2025, 6, 2, 22, 0, 0, 0, loc),
			want: time.Date(2025, 6, 2, 22, 0, 0, 0, loc),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProjectBusinessHours(tc.in, tc.settings)
			if !got.Equal(tc.want) {
				t.Fatalf("ProjectBusinessHours(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
