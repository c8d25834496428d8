// Package session decides whether a timestamp falls inside the configured
// trading window. The check is a pure function of the timestamp so live and
// replayed evaluations agree.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a half-open [Start, End) daily window in the configured location.
// Windows that wrap midnight (e.g. 22:00-02:00) are supported.
type Window struct {
	start time.Duration // offset from local midnight
	end   time.Duration
	loc   *time.Location
}

// NewWindow parses "HH:MM" boundaries and an IANA timezone name.
func NewWindow(start, end, tz string) (Window, error) {
	s, err := parseHHMM(start)
	if err != nil {
		return Window{}, fmt.Errorf("session start: %w", err)
	}
	e, err := parseHHMM(end)
	if err != nil {
		return Window{}, fmt.Errorf("session end: %w", err)
	}
	if s == e {
		return Window{}, fmt.Errorf("session window is empty: %s-%s", start, end)
	}
	loc := time.UTC
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Window{}, fmt.Errorf("session timezone: %w", err)
		}
	}
	return Window{start: s, end: e, loc: loc}, nil
}

// Eligible reports whether ts falls inside the window.
func (w Window) Eligible(ts time.Time) bool {
	local := ts.In(w.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
	offset := local.Sub(midnight)
	if w.start < w.end {
		return offset >= w.start && offset < w.end
	}
	// wraps midnight
	return offset >= w.start || offset < w.end
}

func parseHHMM(s string) (time.Duration, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
