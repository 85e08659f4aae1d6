package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"chanqueue-bot/internal/schedule"
)

// document is the persisted form of Settings. Field names and encodings are a storage contract.
type document struct {
	PostInterval         *int64     `json:"post_interval"`
	DefaultSignature     *string    `json:"default_signature"`
	ChannelID            channelRef `json:"channel_id"`
	PostingEnabled       *bool      `json:"posting_enabled"`
	AllowedWeekdays      []int      `json:"allowed_weekdays"`
	StartTime            *string    `json:"start_time"`
	EndTime              *string    `json:"end_time"`
	DelayedStartEnabled  bool       `json:"delayed_start_enabled"`
	DelayedStartTime     *string    `json:"delayed_start_time"`
	TimeWindowEnabled    *bool      `json:"time_window_enabled"`
	WeekdaysEnabled      *bool      `json:"weekdays_enabled"`
	ExactTimingEnabled   *bool      `json:"exact_timing_enabled"`
	NotificationsEnabled *bool      `json:"notifications_enabled"`
	LastPostTime         float64    `json:"last_post_time"`
}

// channelRef accepts both numeric chat ids and "@username" strings.
type channelRef string

func (c *channelRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = channelRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("channel_id: %w", err)
	}
	*c = channelRef(n.String())
	return nil
}

// Encode renders s as the persisted JSON document.
func Encode(s Settings) ([]byte, error) {
	doc := document{
		DefaultSignature:     s.DefaultSignature,
		ChannelID:            channelRef(s.ChannelTarget),
		PostingEnabled:       boolPtr(s.PostingEnabled),
		DelayedStartEnabled:  s.DelayedStartEnabled,
		TimeWindowEnabled:    boolPtr(s.TimeWindowEnabled),
		WeekdaysEnabled:      boolPtr(s.WeekdaysEnabled),
		ExactTimingEnabled:   boolPtr(s.ExactTimingEnabled),
		NotificationsEnabled: boolPtr(s.NotificationsEnabled),
	}
	if s.PostInterval != nil {
		secs := int64(*s.PostInterval / time.Second)
		doc.PostInterval = &secs
	}
	if s.AllowedWeekdays != nil {
		doc.AllowedWeekdays = []int{}
		for _, d := range s.AllowedWeekdays.Days() {
			doc.AllowedWeekdays = append(doc.AllowedWeekdays, schedule.MondayIndex(d))
		}
	}
	if s.WindowStart != nil {
		v := s.WindowStart.String()
		doc.StartTime = &v
	}
	if s.WindowEnd != nil {
		v := s.WindowEnd.String()
		doc.EndTime = &v
	}
	if s.DelayedStartAt != nil {
		v := s.DelayedStartAt.Format(time.RFC3339)
		doc.DelayedStartTime = &v
	}
	if !s.LastPublishAt.IsZero() {
		doc.LastPostTime = float64(s.LastPublishAt.UnixMilli()) / 1000
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a persisted document on top of the defaults. Fields missing from the document keep
// their default value. Naive timestamps are interpreted in loc.
func Decode(data []byte, loc *time.Location) (Settings, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Settings{}, err
	}

	s := Defaults()
	if doc.PostInterval != nil {
		if *doc.PostInterval <= 0 {
			return Settings{}, fmt.Errorf("post_interval %d: %w", *doc.PostInterval, ErrNonPositiveInterval)
		}
		d := time.Duration(*doc.PostInterval) * time.Second
		s.PostInterval = &d
	}
	s.DefaultSignature = doc.DefaultSignature
	s.ChannelTarget = string(doc.ChannelID)
	setBool(&s.PostingEnabled, doc.PostingEnabled)
	setBool(&s.TimeWindowEnabled, doc.TimeWindowEnabled)
	setBool(&s.WeekdaysEnabled, doc.WeekdaysEnabled)
	setBool(&s.ExactTimingEnabled, doc.ExactTimingEnabled)
	setBool(&s.NotificationsEnabled, doc.NotificationsEnabled)

	if doc.AllowedWeekdays != nil {
		var set schedule.WeekdaySet
		for _, i := range doc.AllowedWeekdays {
			if i < 0 || i > 6 {
				return Settings{}, fmt.Errorf("allowed_weekdays: invalid day %d", i)
			}
			set |= schedule.NewWeekdaySet(schedule.WeekdayFromMondayIndex(i))
		}
		s.AllowedWeekdays = &set
	}

	if doc.StartTime != nil {
		c, err := schedule.ParseClock(*doc.StartTime)
		if err != nil {
			return Settings{}, fmt.Errorf("start_time: %w", err)
		}
		s.WindowStart = &c
	}
	if doc.EndTime != nil {
		c, err := schedule.ParseClock(*doc.EndTime)
		if err != nil {
			return Settings{}, fmt.Errorf("end_time: %w", err)
		}
		s.WindowEnd = &c
	}

	s.DelayedStartEnabled = doc.DelayedStartEnabled
	if doc.DelayedStartTime != nil {
		t, err := parseTimestamp(*doc.DelayedStartTime, loc)
		if err != nil {
			return Settings{}, fmt.Errorf("delayed_start_time: %w", err)
		}
		s.DelayedStartAt = &t
	}

	if doc.LastPostTime > 0 {
		sec, frac := math.Modf(doc.LastPostTime)
		s.LastPublishAt = time.Unix(int64(sec), int64(math.Round(frac*1000))*int64(time.Millisecond))
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(text string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(text, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", text)
}

func boolPtr(b bool) *bool { return &b }

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
