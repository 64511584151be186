package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDuration   = errors.New("empty duration")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrTooSmall        = errors.New("duration too small")
	ErrTooLarge        = errors.New("duration too large")
	ErrInvalidWindow   = errors.New("invalid quiet hours")
	ErrInvalidDate     = errors.New("invalid date")
)

var (
	hoursRe   = regexp.MustCompile(`(?i)(\d+)\s*h`)
	minutesRe = regexp.MustCompile(`(?i)(\d+)\s*m`)
)

// ParseDurationHuman parses human-friendly durations like "30m", "1h30m", "90m", "2h".
// Constraints: 10m <= d <= 72h.
func ParseDurationHuman(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, ErrEmptyDuration
	}
	var total time.Duration

	// plain number means minutes (e.g., "90")
	if isAllDigits(s) {
		mins, _ := strconv.Atoi(s)
		total = time.Duration(mins) * time.Minute
	} else {
		if mh := hoursRe.FindStringSubmatch(s); len(mh) == 2 {
			h, _ := strconv.Atoi(mh[1])
			total += time.Duration(h) * time.Hour
		}
		if mm := minutesRe.FindStringSubmatch(s); len(mm) == 2 {
			m, _ := strconv.Atoi(mm[1])
			total += time.Duration(m) * time.Minute
		}
		if total == 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, s)
		}
	}

	if total < 10*time.Minute {
		return 0, fmt.Errorf("%w: min 10m", ErrTooSmall)
	}
	if total > 72*time.Hour {
		return 0, fmt.Errorf("%w: max 72h", ErrTooLarge)
	}
	return total, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ParseQuietHours parses "22-6", "22–6" or "22:00-06:00" into an hour window.
// Minutes, when given, must be zero: the window is hour-granular.
func ParseQuietHours(s string) (QuietHours, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return QuietHours{}, fmt.Errorf("%w: empty", ErrInvalidWindow)
	}
	sep := "–"
	if strings.Contains(s, "-") && !strings.Contains(s, "–") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return QuietHours{}, fmt.Errorf("%w: expected format HH-HH", ErrInvalidWindow)
	}
	start, err := parseHour(parts[0])
	if err != nil {
		return QuietHours{}, fmt.Errorf("from: %w", err)
	}
	end, err := parseHour(parts[1])
	if err != nil {
		return QuietHours{}, fmt.Errorf("to: %w", err)
	}
	q := QuietHours{Start: start, End: end}
	return q, q.Validate()
}

func parseHour(s string) (int, error) {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok {
		if mins, err := strconv.Atoi(m); err != nil || mins != 0 {
			return 0, fmt.Errorf("%w: minutes must be 00", ErrInvalidWindow)
		}
		s = h
	}
	h, err := strconv.Atoi(s)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: invalid hour %q", ErrInvalidWindow, s)
	}
	return h, nil
}

// ParseQuitDate parses "YYYY-MM-DD" as local midnight in loc and returns it in UTC.
func ParseQuitDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expected YYYY-MM-DD", ErrInvalidDate)
	}
	return d.UTC(), nil
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := mins / 60
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}
