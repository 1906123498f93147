package scoring

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
	"January 2, 2006",
	"January 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseDate accepts the date shapes upstream sources publish. Values without a
// zone are UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// withinDays reports whether s falls no more than window whole days before
// now. Unparseable and missing dates are never within the window.
func withinDays(s string, window int, now time.Time) bool {
	t, ok := ParseDate(s)
	if !ok {
		return false
	}
	days := int(now.Sub(t).Hours() / 24)
	return days <= window
}
