package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseTimeOfDay validates a 24h "HH:MM" string and returns it zero-padded.
func ParseTimeOfDay(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	m := reHHMM.FindStringSubmatch(s)
	if m == nil {
		return "", invalid("time", "%q is not HH:MM (24h)", raw)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 {
		return "", invalid("time", "hour must be 00-23, got %d", h)
	}
	if mm > 59 {
		return "", invalid("time", "minute must be 00-59, got %d", mm)
	}
	return fmt.Sprintf("%02d:%02d", h, mm), nil
}

// ParseDays parses a "1,3"-style day list. Blank input means every day (nil).
// Order is kept as supplied.
func ParseDays(raw string) ([]int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil || d < 1 || d > 7 {
			return nil, invalid("days", "%q is not a day number 1-7", p)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// ParseOccurrences parses the repeat budget. Blank means unbounded.
func ParseOccurrences(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Unbounded, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalid("times", "%q is not a number", raw)
	}
	if err := ValidateOccurrences(n); err != nil {
		return 0, err
	}
	return n, nil
}

func ValidateOccurrences(n int) error {
	if n == Unbounded || n >= 1 {
		return nil
	}
	return invalid("times", "must be >= 1, or -1 for no limit")
}

// ValidateTimezone checks tz is a loadable IANA zone name.
func ValidateTimezone(tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return invalid("timezone", "an IANA zone name is required (e.g. UTC, Europe/Rome)")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return invalid("timezone", "unknown zone %q", tz)
	}
	return nil
}

// FormatDays renders days back into the "1,3" input form ("" = every day).
func FormatDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
