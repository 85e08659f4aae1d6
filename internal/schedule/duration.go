package schedule

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Units holds the suffixes appended to each component of a formatted duration.
type Units struct {
	Day    string
	Hour   string
	Minute string
	Second string
}

// EnglishUnits renders durations as "1d 2h 3m 4s", the same tokens ParseDuration accepts.
var EnglishUnits = Units{Day: "d", Hour: "h", Minute: "m", Second: "s"}

var durationTokens = []struct {
	pattern *regexp.Regexp
	unit    time.Duration
}{
	{regexp.MustCompile(`(\d+)d`), 24 * time.Hour},
	{regexp.MustCompile(`(\d+)h`), time.Hour},
	{regexp.MustCompile(`(\d+)m`), time.Minute},
	{regexp.MustCompile(`(\d+)s`), time.Second},
}

// ParseDuration extracts day, hour, minute and second tokens ("1d", "2h", "30m", "15s") from free-form
// text and sums them. Anything that is not a token is ignored, so "every 2h please" parses as 2h.
// It reports false when no token is present or the total is zero.
func ParseDuration(text string) (time.Duration, bool) {
	text = strings.ToLower(text)
	var total time.Duration
	for _, token := range durationTokens {
		match := token.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		n, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || n > int64(math.MaxInt64/token.unit) {
			continue // absurdly large component
		}
		part := time.Duration(n) * token.unit
		if total > math.MaxInt64-part {
			continue
		}
		total += part
	}
	if total <= 0 {
		return 0, false
	}
	return total, true
}

// FormatDuration renders d with whole-second precision using the given unit suffixes,
// emitting only non-zero components. A zero (or negative) duration renders as "0" plus the minute suffix.
func FormatDuration(d time.Duration, units Units) string {
	secs := int64(d / time.Second)
	if secs <= 0 {
		return "0" + units.Minute
	}

	days := secs / 86400
	hours := secs % 86400 / 3600
	minutes := secs % 3600 / 60
	seconds := secs % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+units.Day)
	}
	if hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+units.Hour)
	}
	if minutes > 0 {
		parts = append(parts, strconv.FormatInt(minutes, 10)+units.Minute)
	}
	if seconds > 0 {
		parts = append(parts, strconv.FormatInt(seconds, 10)+units.Second)
	}
	return strings.Join(parts, " ")
}
