package main

import (
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var countPrinter = message.NewPrinter(language.English)

// formatCount renders large track counts with thousands separators.
func formatCount(n int) string {
	return countPrinter.Sprintf("%d", n)
}

func formatRate(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f tracks/min", *rate)
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "n/a"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "n/a"
	}
	return (time.Duration(seconds*float64(time.Second))).Round(100 * time.Millisecond).String()
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value)
}

// displayName prefers track metadata over the raw path.
func displayName(title, path string) string {
	if title != "" {
		return title
	}
	return filepath.Base(path)
}
