package followup

import "time"

// ProjectBusinessHours advances t to the next instant allowed by the
// owner's business-hours configuration. The instant is kept on the same
// calendar day when possible, otherwise it moves to work_start_hour on the
// next working day. With respect_business_hours off, t comes back
// unchanged.
func ProjectBusinessHours(t time.Time, s Settings) time.Time {
	if !s.RespectBusinessHours {
		return t
	}
	if s.WorkEndHour <= s.WorkStartHour || len(s.WorkDays) == 0 {
		return t
	}

	// Bounded walk; a valid configuration always has a work day within a
	// week.
	for i := 0; i < 14; i++ {
		if !isWorkDay(s, t.Weekday()) {
			t = nextDayAt(t, s.WorkStartHour)
			continue
		}

		hour := t.Hour()
		if hour < s.WorkStartHour {
			return sameDayAt(t, s.WorkStartHour)
		}
		if hour >= s.WorkEndHour {
			t = nextDayAt(t, s.WorkStartHour)
			continue
		}
		if s.LunchStartHour != nil && s.LunchEndHour != nil &&
			hour >= *s.LunchStartHour && hour < *s.LunchEndHour {
			t = sameDayAt(t, *s.LunchEndHour)
			continue
		}
		return t
	}
	return t
}

func isWorkDay(s Settings, day time.Weekday) bool {
	for _, d := range s.WorkDays {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

func sameDayAt(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

func nextDayAt(t time.Time, hour int) time.Time {
	next := t.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, next.Location())
}
