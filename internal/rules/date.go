package rules

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// receivedLayouts are tried in order before falling back to RFC 5322 parsing.
var receivedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
}

// ParseReceived parses an ISO-8601 or RFC 2822 style timestamp. Values
// without a zone are read as local time.
func ParseReceived(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range receivedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// maxRelativeDays bounds relative date spans.
const maxRelativeDays = 999_999_999

// ParseRelative parses "<n> <unit>" where unit is day(s) or month(s) and
// returns the span in days. Months count daysPerMonth days each.
func ParseRelative(value string, daysPerMonth int) (int, error) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected \"<number> <unit>\", got %q", value)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", parts[0])
	}
	var days int
	switch strings.ToLower(parts[1]) {
	case "day", "days":
		days = n
	case "month", "months":
		if daysPerMonth != 0 && (n > maxRelativeDays/daysPerMonth || n < -maxRelativeDays/daysPerMonth) {
			return 0, fmt.Errorf("date span %q out of range", value)
		}
		days = n * daysPerMonth
	default:
		return 0, fmt.Errorf("unknown date unit %q", parts[1])
	}
	if days > maxRelativeDays || days < -maxRelativeDays {
		return 0, fmt.Errorf("date span %q out of range", value)
	}
	return days, nil
}
