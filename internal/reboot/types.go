package reboot

import "time"

// DayMask is a bitmask of weekdays, bit 0 being Sunday to match
// time.Weekday numbering.
type DayMask uint8

// AllDays selects every weekday.
const AllDays DayMask = 0x7f

// Contains reports whether the mask includes the given weekday.
func (m DayMask) Contains(day time.Weekday) bool {
	return m&(1<<uint(day)) != 0
}

// Schedule is the single scheduled-reboot record.
type Schedule struct {
	// Enabled gates the scheduler; a disabled schedule keeps its fields so
	// re-enabling restores the previous time.
	Enabled bool `json:"enabled"`

	// Hour and Minute are the local time of day to reboot.
	Hour   int `json:"hour"`
	Minute int `json:"minute"`

	// Days selects which weekdays the schedule fires on.
	Days DayMask `json:"days"`

	// UpdatedAt records the last modification time.
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid reports whether the schedule's fields are in range. An enabled
// schedule needs at least one weekday selected.
func (s Schedule) Valid() bool {
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return false
	}
	if s.Days&^AllDays != 0 {
		return false
	}
	if s.Enabled && s.Days == 0 {
		return false
	}
	return true
}

// NextFire computes the first instant strictly after now at which the
// schedule fires, in now's location.
//
// Returns:
//   - time.Time: The next firing instant
//   - bool: False when the schedule is disabled or selects no days
func (s Schedule) NextFire(now time.Time) (time.Time, bool) {
	if !s.Enabled || s.Days == 0 {
		return time.Time{}, false
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	for i := 0; i < 8; i++ {
		if candidate.After(now) && s.Days.Contains(candidate.Weekday()) {
			return candidate, true
		}
		candidate = candidate.AddDate(0, 0, 1)
	}

	return time.Time{}, false
}
