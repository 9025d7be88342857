package appointment

import (
	"fmt"
	"strings"
	"time"
)

// lateNoticeWindow is how close to the appointment the reschedule and
// cancellation fee kicks in.
const lateNoticeWindow = 24 * time.Hour

// farFutureHours is returned when a scheduled time cannot be parsed, so a
// bad timestamp never triggers the late-notice fee by accident.
const farFutureHours = 999

// hoursUntil returns how many hours remain before the scheduled time.
func hoursUntil(now time.Time, scheduled string) float64 {
	t, err := parseISOTime(scheduled)
	if err != nil {
		return farFutureHours
	}
	return t.Sub(now).Hours()
}

// withinLateNotice reports whether the scheduled time falls inside the
// fee window.
func withinLateNotice(now time.Time, scheduled string) bool {
	return hoursUntil(now, scheduled) < lateNoticeWindow.Hours()
}

// lateNoticeApplies is the fee check the handlers use: the window test
// gated by the configured policy toggle.
func (f *Flow) lateNoticeApplies(scheduled string) bool {
	return f.cfg.LateNoticePolicy && withinLateNotice(f.clock(), scheduled)
}

// parseISOTime accepts the timestamp shapes the backend and the model
// produce: RFC 3339 with or without zone, and bare date-time.
func parseISOTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

// parseClock turns the spoken-time strings the model extracts ("2:00 PM",
// "14:00", "10 AM") into an hour and minute.
func parseClock(value string) (hour, minute int, err error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	for _, layout := range []string{
		"3:04 PM",
		"3:04PM",
		"3 PM",
		"3PM",
		"15:04",
		"15",
	} {
		if t, parseErr := time.Parse(layout, value); parseErr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognized clock time %q", value)
}

// withinBusinessHours checks the shop's booking window: open to close on
// the configured hours, Monday through Saturday.
func (f *Flow) withinBusinessHours(t time.Time) bool {
	if t.Weekday() == time.Sunday {
		return false
	}
	hour := t.Hour()
	return hour >= f.cfg.OpenHour && hour < f.cfg.CloseHour
}
