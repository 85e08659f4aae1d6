package settings

import (
	"fmt"
	"os"
	"time"

	"chanqueue-bot/internal/schedule"

	"go.yaml.in/yaml/v3"
)

// Seed describes initial schedule settings in YAML. It only applies while no settings have been
// persisted yet.
//
//	interval: 2h
//	exact_timing: true
//	window: {start: "09:00", end: "21:00"}
//	weekdays: [1, 2, 3, 4, 5]   # 1 = Monday
//	signature: "My channel # t.me/mychannel"
type Seed struct {
	Interval     string      `yaml:"interval"`
	ExactTiming  *bool       `yaml:"exact_timing"`
	Window       *seedWindow `yaml:"window"`
	Weekdays     []int       `yaml:"weekdays"`
	Signature    string      `yaml:"signature"`
	Notify       *bool       `yaml:"notifications"`
	Paused       bool        `yaml:"paused"`
}

type seedWindow struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file: %w", err)
	}
	return seed, nil
}

// Apply overlays the seed onto s.
func (seed Seed) Apply(s *Settings) error {
	if seed.Interval != "" {
		d, ok := schedule.ParseDuration(seed.Interval)
		if !ok {
			return fmt.Errorf("seed interval %q is not a duration", seed.Interval)
		}
		s.PostInterval = &d
	}
	if seed.ExactTiming != nil {
		s.ExactTimingEnabled = *seed.ExactTiming
	}
	if seed.Window != nil {
		start, err := schedule.ParseClock(seed.Window.Start)
		if err != nil {
			return err
		}
		end, err := schedule.ParseClock(seed.Window.End)
		if err != nil {
			return err
		}
		s.WindowStart, s.WindowEnd = &start, &end
		s.TimeWindowEnabled = true
	}
	if len(seed.Weekdays) > 0 {
		set, err := ParseWeekdayNumbers(seed.Weekdays)
		if err != nil {
			return err
		}
		s.AllowedWeekdays = &set
		s.WeekdaysEnabled = true
	}
	if seed.Signature != "" {
		sig := ParseSignature(seed.Signature)
		s.DefaultSignature = &sig
	}
	if seed.Notify != nil {
		s.NotificationsEnabled = *seed.Notify
	}
	if seed.Paused {
		s.PostingEnabled = false
	}
	return s.Validate()
}

// ParseWeekdayNumbers converts operator day numbers (1 = Monday .. 7 = Sunday) into a set.
func ParseWeekdayNumbers(days []int) (schedule.WeekdaySet, error) {
	var set schedule.WeekdaySet
	for _, d := range days {
		if d < 1 || d > 7 {
			return 0, fmt.Errorf("weekday %d out of range 1-7", d)
		}
		set |= schedule.NewWeekdaySet(schedule.WeekdayFromMondayIndex(d - 1))
	}
	return set, nil
}

// ParseDelayedStart parses an operator-supplied start moment ("2025-06-01 09:00" or
// "01.06.2025 09:00") in loc.
func ParseDelayedStart(text string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "02.01.2006 15:04"} {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}
