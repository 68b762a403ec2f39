package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339(Nano), unix seconds or unix milliseconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	// 1e11 seconds is year 5138, so anything larger is milliseconds.
	if ts >= 1e11 {
		return time.UnixMilli(ts).UTC(), true
	}
	return time.Unix(ts, 0).UTC(), true
}

// ParseTimeDefault parses time or returns def if s is empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ResolveRange fills an open time range: to defaults to now and from to to-lookback.
func ResolveRange(fromStr, toStr string, now time.Time, lookback time.Duration) (time.Time, time.Time) {
	to := ParseTimeDefault(toStr, now)
	from := ParseTimeDefault(fromStr, to.Add(-lookback))
	if from.After(to) {
		from, to = to, from
	}
	return from, to
}
