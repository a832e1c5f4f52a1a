package cli

import (
	"fmt"
	"strings"
	"time"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// WrapText re-flows each paragraph of s to lines of at most width runes.
// Paragraph breaks (blank lines) are kept; words longer than width stay whole.
func WrapText(s string, width int) string {
	if width <= 0 {
		return s
	}

	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		var b strings.Builder
		lineLen := 0
		for _, w := range words {
			wl := len([]rune(w))
			if lineLen > 0 && lineLen+1+wl > width {
				b.WriteByte('\n')
				lineLen = 0
			} else if lineLen > 0 {
				b.WriteByte(' ')
				lineLen++
			}
			b.WriteString(w)
			lineLen += wl
		}
		out = append(out, b.String())
	}
	return strings.Join(out, "\n\n")
}
