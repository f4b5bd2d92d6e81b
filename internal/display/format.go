package display

import (
	"fmt"
	"strconv"
	"time"
)

// FormatCost renders a dollar amount. Sub-cent costs keep four decimal
// places so cheap models don't all display as $0.00.
func FormatCost(cost float64) string {
	if cost == 0 {
		return "$0.00"
	}
	if cost < 0.01 {
		return fmt.Sprintf("$%.4f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

// FormatTokens renders a token count compactly: 950, 12.5k, 1.2M.
func FormatTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "M"
	case n >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000)) + "k"
	default:
		return strconv.Itoa(n)
	}
}

func trimZero(s string) string {
	if len(s) > 2 && s[len(s)-2:] == ".0" {
		return s[:len(s)-2]
	}
	return s
}

// FormatPerMillion renders a per-token rate as dollars per million tokens.
func FormatPerMillion(perToken float64) string {
	if perToken == 0 {
		return "—"
	}
	return fmt.Sprintf("$%.2f", perToken*1_000_000)
}

// FormatCountdown formats a duration as a compact human-readable
// countdown string (e.g. "2d 3h", "5h 42m", "15m").
func FormatCountdown(d time.Duration) string {
	total := int(d.Seconds())
	if total <= 0 {
		return "now"
	}
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	if days > 0 {
		return formatDH(days, hours)
	}
	if hours > 0 {
		return formatHM(hours, minutes)
	}
	return formatM(minutes)
}

func formatDH(d, h int) string { return strconv.Itoa(d) + "d " + strconv.Itoa(h) + "h" }
func formatHM(h, m int) string { return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m" }
func formatM(m int) string     { return strconv.Itoa(m) + "m" }

// FormatContextLimit renders a context window size: 128k, 1M.
func FormatContextLimit(tokens int) string {
	if tokens <= 0 {
		return "—"
	}
	if tokens >= 1_000_000 && tokens%1_000_000 == 0 {
		return strconv.Itoa(tokens/1_000_000) + "M"
	}
	if tokens >= 1_000 {
		return strconv.Itoa(tokens/1_000) + "k"
	}
	return strconv.Itoa(tokens)
}
