package utils

import (
	"fmt"
	"strings"
)

// FormatFileSize converts a byte length into a human-readable lower-case
// unit string.
func FormatFileSize(bytes int64) string {
	if bytes < 0 {
		return "0b"
	}
	units := []string{"b", "kb", "mb", "gb", "tb", "pb"}
	value := float64(bytes)
	unitIndex := 0
	for value >= 1024 && unitIndex < len(units)-1 {
		value /= 1024
		unitIndex++
	}
	if unitIndex == 0 {
		return fmt.Sprintf("%db", bytes)
	}
	if value < 10 {
		formatted := strings.TrimSuffix(fmt.Sprintf("%.1f", value), ".0")
		return formatted + units[unitIndex]
	}
	return fmt.Sprintf("%.0f%s", value, units[unitIndex])
}

// FormatTokenCount renders a token count compactly: plain below one
// thousand, then K and M suffixes with one decimal.
func FormatTokenCount(count int) string {
	switch {
	case count < 1_000:
		return fmt.Sprintf("%d", count)
	case count < 1_000_000:
		return fmt.Sprintf("%.1fK", float64(count)/1_000)
	default:
		return fmt.Sprintf("%.1fM", float64(count)/1_000_000)
	}
}
