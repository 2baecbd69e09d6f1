package progress

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// HistoryClass styles one history row.
type HistoryClass string

const (
	HistoryClassSuccess HistoryClass = "success"
	HistoryClassError   HistoryClass = "error"
)

// ClassifyStatus maps a free-form status text onto a history row class.
// Any text containing "error", in any case, is an error row.
func ClassifyStatus(status string) HistoryClass {
	if strings.Contains(strings.ToLower(status), "error") {
		return HistoryClassError
	}
	return HistoryClassSuccess
}

// HistoryLimit caps the number of visible history rows.
const HistoryLimit = 10

// FormatClock renders total seconds as zero-padded HH:MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatHistoryDuration turns a numeric seconds value into a compact human
// form by magnitude; non-numeric values pass through unchanged.
func FormatHistoryDuration(raw string) string {
	raw = strings.TrimSpace(raw)
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}

	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1fs", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", int(seconds)/60, int(seconds)%60)
	default:
		return fmt.Sprintf("%dh %dm", int(seconds)/3600, (int(seconds)%3600)/60)
	}
}

// FormatSizeMB renders a megabyte count for estimate and history display.
func FormatSizeMB(mb float64) string {
	if mb <= 0 {
		return ""
	}
	return humanize.Bytes(uint64(mb * 1024 * 1024))
}
