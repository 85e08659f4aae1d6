// Package settings owns the mutable scheduler configuration and its persisted snapshot.
package settings

import (
	"errors"
	"time"

	"chanqueue-bot/internal/schedule"
)

// Settings is the scheduler configuration. Optional values are pointers so "unset" is never
// confused with a zero value.
type Settings struct {
	PostInterval       *time.Duration
	ExactTimingEnabled bool

	TimeWindowEnabled bool
	WindowStart       *schedule.ClockTime
	WindowEnd         *schedule.ClockTime

	WeekdaysEnabled bool
	AllowedWeekdays *schedule.WeekdaySet

	DelayedStartEnabled bool
	DelayedStartAt      *time.Time

	PostingEnabled       bool
	NotificationsEnabled bool

	DefaultSignature *string
	ChannelTarget    string

	// LastPublishAt is the zero time until the first successful publish.
	LastPublishAt time.Time
}

// Defaults returns the settings of a fresh installation: no cadence, exact timing, the window gate
// switched on but unconfigured, weekday gating off, posting and notifications on.
func Defaults() Settings {
	return Settings{
		ExactTimingEnabled:   true,
		TimeWindowEnabled:    true,
		PostingEnabled:       true,
		NotificationsEnabled: true,
	}
}

var (
	ErrNonPositiveInterval = errors.New("post interval must be positive")
	ErrHalfWindow          = errors.New("time window needs both a start and an end")
	ErrDelayedStartMissing = errors.New("delayed start is enabled without a start time")
)

// Validate checks cross-field invariants.
func (s Settings) Validate() error {
	if s.PostInterval != nil && *s.PostInterval <= 0 {
		return ErrNonPositiveInterval
	}
	if (s.WindowStart == nil) != (s.WindowEnd == nil) {
		return ErrHalfWindow
	}
	if s.DelayedStartEnabled && s.DelayedStartAt == nil {
		return ErrDelayedStartMissing
	}
	return nil
}

// Interval returns the configured interval, or zero when none is set.
func (s Settings) Interval() time.Duration {
	if s.PostInterval == nil {
		return 0
	}
	return *s.PostInterval
}

// Window returns the configured window regardless of whether the gate is on.
func (s Settings) Window() (schedule.Window, bool) {
	if s.WindowStart == nil || s.WindowEnd == nil {
		return schedule.Window{}, false
	}
	return schedule.Window{Start: *s.WindowStart, End: *s.WindowEnd}, true
}

// Signature returns the default signature or an empty string.
func (s Settings) Signature() string {
	if s.DefaultSignature == nil {
		return ""
	}
	return *s.DefaultSignature
}

// DelayedStartPending reports whether the delayed start still blocks publishing at now.
func (s Settings) DelayedStartPending(now time.Time) bool {
	return s.DelayedStartEnabled && s.DelayedStartAt != nil && now.Before(*s.DelayedStartAt)
}

// Policy converts the settings into the scheduling policy evaluated by the timetable.
func (s Settings) Policy(loc *time.Location, tolerance time.Duration) schedule.Policy {
	p := schedule.Policy{
		Location:        loc,
		Interval:        s.Interval(),
		ExactTiming:     s.ExactTimingEnabled,
		WeekdaysEnabled: s.WeekdaysEnabled,
		Weekdays:        s.AllowedWeekdays,
		Tolerance:       tolerance,
	}
	if w, ok := s.Window(); ok && s.TimeWindowEnabled {
		p.WindowEnabled = true
		p.Window = &w
	}
	if s.DelayedStartEnabled && s.DelayedStartAt != nil {
		p.DelayedStart = *s.DelayedStartAt
	}
	return p
}

func (s Settings) clone() Settings {
	c := s
	if s.PostInterval != nil {
		v := *s.PostInterval
		c.PostInterval = &v
	}
	if s.WindowStart != nil {
		v := *s.WindowStart
		c.WindowStart = &v
	}
	if s.WindowEnd != nil {
		v := *s.WindowEnd
		c.WindowEnd = &v
	}
	if s.AllowedWeekdays != nil {
		v := *s.AllowedWeekdays
		c.AllowedWeekdays = &v
	}
	if s.DelayedStartAt != nil {
		v := *s.DelayedStartAt
		c.DelayedStartAt = &v
	}
	if s.DefaultSignature != nil {
		v := *s.DefaultSignature
		c.DefaultSignature = &v
	}
	return c
}
