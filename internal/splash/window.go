package splash

import "time"

// IsWithinWindow reports whether now lies in [startAt, endAt], both ends
// inclusive, compared at millisecond precision. Unparseable bounds are never
// within the window.
func IsWithinWindow(startAt, endAt string, now time.Time) bool {
	start, ok := ParseTime(startAt)
	if !ok {
		return false
	}
	end, ok := ParseTime(endAt)
	if !ok {
		return false
	}
	n := now.UnixMilli()
	return n >= start.UnixMilli() && n <= end.UnixMilli()
}

// Eligible filters configs down to those within their window at now,
// preserving input order.
func Eligible(configs []SplashConfig, now time.Time) []SplashConfig {
	ret := make([]SplashConfig, 0, len(configs))
	for _, c := range configs {
		if c.StartAt == "" || c.EndAt == "" {
			continue
		}
		if IsWithinWindow(c.StartAt, c.EndAt, now) {
			ret = append(ret, c)
		}
	}
	return ret
}
