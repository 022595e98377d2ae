package main

import (
	"fmt"
	"time"

	"github.com/zulandar/reactoryard/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

// formatDuration renders d as hours and minutes, e.g. "7h05m".
func formatDuration(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	total := d.Round(time.Minute)
	h := total / time.Hour
	m := (total % time.Hour) / time.Minute
	return fmt.Sprintf("%dh%02dm", h, m)
}

func formatDelay(t *models.PktTransaction) string {
	if t.DelayDuration == nil {
		return "-"
	}
	if t.DelayReasonID == nil {
		return formatDuration(t.DelayDuration)
	}
	return fmt.Sprintf("%s (reason %d)", formatDuration(t.DelayDuration), *t.DelayReasonID)
}

func formatKg(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *f)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
