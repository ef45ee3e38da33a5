package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxTime is the latest punch time accepted, one week after event zero.
const MaxTime = 7 * 24 * time.Hour

// ParseTime parses a punch time given as "HH:MM:SS", "HH:MM:SS.mmm" or a
// plain integer count of milliseconds since the event zero time.
func ParseTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}

	if !strings.Contains(s, ":") {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
		if ms < 0 {
			return 0, fmt.Errorf("invalid time %q: negative", s)
		}
		if ms > MaxTime.Milliseconds() {
			return 0, fmt.Errorf("invalid time %q: after %s", s, FormatTime(MaxTime))
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM:SS[.mmm]", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("invalid hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}

	secPart, msPart, hasMS := strings.Cut(parts[2], ".")
	sec, err := strconv.Atoi(secPart)
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}
	var ms int
	if hasMS {
		if len(msPart) == 0 || len(msPart) > 3 {
			return 0, fmt.Errorf("invalid milliseconds in %q", s)
		}
		ms, err = strconv.Atoi(msPart + strings.Repeat("0", 3-len(msPart)))
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("invalid milliseconds in %q", s)
		}
	}

	if h > int(MaxTime/time.Hour) {
		return 0, fmt.Errorf("invalid time %q: after %s", s, FormatTime(MaxTime))
	}

	d := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond
	if d > MaxTime {
		return 0, fmt.Errorf("invalid time %q: after %s", s, FormatTime(MaxTime))
	}
	return d, nil
}

// FormatTime renders a duration as H:MM:SS, with milliseconds when present.
func FormatTime(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	if ms > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", sign, h, m, s, ms)
	}
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
}
