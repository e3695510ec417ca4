package review

import (
	"fmt"
	"sort"
	"time"
)

// DefaultScheduleSlots are the local clock times offered for scheduling.
var DefaultScheduleSlots = []string{"09:00", "13:00", "19:00"}

// ParseClock parses an "HH:MM" clock time.
func ParseClock(clock string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule slot %q: %w", clock, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Slots returns, for each clock time, the next instant in loc strictly
// after now. Times already passed today roll over to tomorrow.
func Slots(now time.Time, clock []string, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)

	slots := make([]time.Time, 0, len(clock))
	for _, c := range clock {
		hour, minute, err := ParseClock(c)
		if err != nil {
			return nil, err
		}
		t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
		}
		slots = append(slots, t)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}
