package reltime

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"30 seconds", 30 * time.Second, "just now"},
		{"zero", 0, "just now"},
		{"future", -time.Minute, "just now"},
		{"one minute", time.Minute, "1 minutes ago"},
		{"5 minutes", 5*time.Minute + 10*time.Second, "5 minutes ago"},
		{"59 minutes", 59 * time.Minute, "59 minutes ago"},
		{"3 hours", 3*time.Hour + 20*time.Minute, "3 hours ago"},
		{"23 hours", 23*time.Hour + 59*time.Minute, "23 hours ago"},
		{"2 days", 2*24*time.Hour + 5*time.Hour, "2 days ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.d); got != tt.want {
				t.Errorf("Format(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestSinceMillis(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	ts := now.Add(-5 * time.Minute).UnixMilli()
	if got := SinceMillis(now, ts); got != "5 minutes ago" {
		t.Errorf("SinceMillis = %q, want %q", got, "5 minutes ago")
	}
}
