package clock

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Day is the length used for day arithmetic on instants.
const Day = 24 * time.Hour

// DateLayout is the calendar date format accepted for expiry dates.
const DateLayout = "2006-01-02"

// DisplayLayout is the canonical display format for timestamps.
const DisplayLayout = "2006-01-02 15:04:05"

// ErrInvalidDate indicates a calendar date that does not parse.
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// FormatDisplay renders t as "YYYY-MM-DD HH:MM:SS" in loc.
func FormatDisplay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DisplayLayout)
}

// FormatDisplayPtr is FormatDisplay for optional timestamps.
// A nil timestamp renders as the empty string.
func FormatDisplayPtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return FormatDisplay(*t, loc)
}

// EndOfDay parses a YYYY-MM-DD date in loc and returns 23:59:59 of that day.
func EndOfDay(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc), nil
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DateAfterDays returns the calendar date (YYYY-MM-DD) that is days after now in loc.
func DateAfterDays(now time.Time, days int, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).AddDate(0, 0, days).Format(DateLayout)
}

// CeilDays returns the number of whole days in d, rounded up.
// Negative durations return 0.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(Day)))
}

// Relative renders how long ago t was, relative to now.
// Months are 30 days. A nil t means the key was never used.
func Relative(t *time.Time, now time.Time) string {
	if t == nil {
		return "never used"
	}

	diff := now.Sub(*t)
	minutes := int(diff / time.Minute)
	hours := minutes / 60
	days := hours / 24
	months := days / 30

	switch {
	case months > 0:
		return plural(months, "month") + " ago"
	case days > 0:
		return plural(days, "day") + " ago"
	case hours > 0:
		return plural(hours, "hour") + " ago"
	case minutes > 0:
		return plural(minutes, "minute") + " ago"
	default:
		return "just now"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
