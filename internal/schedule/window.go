package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// ClockTime is a time of day expressed as seconds since local midnight.
type ClockTime int

// NewClockTime builds a ClockTime from its components.
func NewClockTime(hour, minute, second int) ClockTime {
	return ClockTime(hour*3600 + minute*60 + second)
}

// ClockOf returns the wall-clock time of t in t's location.
func ClockOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return NewClockTime(h, m, s)
}

// ParseClock parses an "HH:MM" clock time. Single-digit hours are accepted.
func ParseClock(text string) (ClockTime, error) {
	hourText, minuteText, ok := strings.Cut(strings.TrimSpace(text), ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q: expected HH:MM", text)
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("clock time %q: invalid hour", text)
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 || len(minuteText) != 2 {
		return 0, fmt.Errorf("clock time %q: invalid minute", text)
	}
	return NewClockTime(hour, minute, 0), nil
}

// Hour returns the hour component.
func (c ClockTime) Hour() int { return int(c) / 3600 }

// Minute returns the minute component.
func (c ClockTime) Minute() int { return int(c) % 3600 / 60 }

// Second returns the second component.
func (c ClockTime) Second() int { return int(c) % 60 }

// String renders the clock time as HH:MM, or HH:MM:SS when seconds are present.
func (c ClockTime) String() string {
	if c.Second() != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
	}
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant at which day's calendar date reaches this clock time.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), c.Second(), 0, day.Location())
}

// IsWithinWindow reports whether t lies inside [start, end]. Both bounds are inclusive.
// When start > end the window spans midnight.
func IsWithinWindow(t, start, end ClockTime) bool {
	if start <= end {
		return start <= t && t <= end
	}
	return t >= start || t <= end
}

// Window is a daily clock-time range that may wrap midnight.
type Window struct {
	Start ClockTime
	End   ClockTime
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t ClockTime) bool {
	return IsWithinWindow(t, w.Start, w.End)
}

// Duration returns the length of the window, accounting for a midnight wrap.
func (w Window) Duration() time.Duration {
	secs := int(w.End - w.Start)
	if w.Start > w.End {
		secs = secondsPerDay - int(w.Start) + int(w.End)
	}
	return time.Duration(secs) * time.Second
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// WeekdaySet is a set of weekdays stored as a bitmask indexed by time.Weekday.
type WeekdaySet uint8

// NewWeekdaySet returns a set containing the given days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Days returns the members in Monday-first order.
func (s WeekdaySet) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for i := 0; i < 7; i++ {
		d := WeekdayFromMondayIndex(i)
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// MondayIndex maps a weekday onto 0=Monday..6=Sunday.
func MondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// WeekdayFromMondayIndex is the inverse of MondayIndex.
func WeekdayFromMondayIndex(i int) time.Weekday {
	return time.Weekday((i + 1) % 7)
}

// IsWeekdayAllowed reports whether publishing may happen on d. A disabled gate or an unset
// set allows every day.
func IsWeekdayAllowed(d time.Weekday, allowed *WeekdaySet, enabled bool) bool {
	if !enabled || allowed == nil {
		return true
	}
	return allowed.Has(d)
}

// Reason identifies which gate refused a publish.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonWeekday
	ReasonWindow
)

func (r Reason) String() string {
	switch r {
	case ReasonWeekday:
		return "weekday not allowed"
	case ReasonWindow:
		return "outside time window"
	default:
		return "allowed"
	}
}

// DefaultTolerance is how close to a slot an exact-mode publish may fire.
const DefaultTolerance = 60 * time.Second

// maxScanDays bounds the forward search for the next allowed instant.
const maxScanDays = 8

// Policy is an immutable view of the scheduling settings. Build a new one whenever the settings change.
type Policy struct {
	Location *time.Location

	// Interval is the posting cadence. Zero means no cadence is configured.
	Interval    time.Duration
	ExactTiming bool

	WindowEnabled bool
	Window        *Window

	WeekdaysEnabled bool
	Weekdays        *WeekdaySet

	// DelayedStart holds back every publish until it is reached. Zero disables it.
	DelayedStart time.Time

	// Tolerance is the exact-mode slot tolerance. Zero means DefaultTolerance.
	Tolerance time.Duration
}

func (p Policy) local(t time.Time) time.Time {
	if p.Location == nil {
		return t
	}
	return t.In(p.Location)
}

func (p Policy) window() (Window, bool) {
	if !p.WindowEnabled || p.Window == nil {
		return Window{}, false
	}
	return *p.Window, true
}

func (p Policy) weekdayAllowed(d time.Weekday) bool {
	return IsWeekdayAllowed(d, p.Weekdays, p.WeekdaysEnabled)
}

// Allowed evaluates the weekday and window gates at the given instant, which may lie in the future.
// The returned reason names the first gate that refused.
func (p Policy) Allowed(at time.Time) (bool, Reason) {
	at = p.local(at)
	if !p.weekdayAllowed(at.Weekday()) {
		return false, ReasonWeekday
	}
	if w, ok := p.window(); ok && !w.Contains(ClockOf(at)) {
		return false, ReasonWindow
	}
	return true, ReasonNone
}

// DelayedStartPending reports whether the delayed start still holds publishing back at now.
func (p Policy) DelayedStartPending(now time.Time) bool {
	return !p.DelayedStart.IsZero() && now.Before(p.DelayedStart)
}

// NextAllowed returns the first instant at or after now at which both gates pass.
// If nothing opens within the scan horizon it falls back to one day ahead.
func (p Policy) NextAllowed(now time.Time) time.Time {
	now = p.local(now)
	if ok, _ := p.Allowed(now); ok {
		return now
	}

	w, hasWindow := p.window()
	for d := 0; d <= maxScanDays; d++ {
		day := dayStart(now, d)
		if !p.weekdayAllowed(day.Weekday()) {
			continue
		}
		if !hasWindow {
			if d > 0 {
				return day
			}
			continue
		}
		if start := w.Start.On(day); start.After(now) {
			return start
		}
	}
	return now.Add(24 * time.Hour)
}

func dayStart(t time.Time, offset int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, t.Location())
}
