// Package reltime renders how long ago something was saved.
package reltime

import (
	"fmt"
	"time"
)

// Since formats the age of t relative to now using the largest whole unit.
func Since(now, t time.Time) string {
	return Format(now.Sub(t))
}

// Format renders a duration as "N days ago", "N hours ago", "N minutes ago"
// or "just now". Negative durations (clock skew) count as "just now".
func Format(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	default:
		return "just now"
	}
}

// SinceMillis is Since for an epoch-millisecond timestamp.
func SinceMillis(now time.Time, ms int64) string {
	return Since(now, time.UnixMilli(ms))
}
