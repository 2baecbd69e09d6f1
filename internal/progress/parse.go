package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// Stats holds the transcoder counters parsed out of one status log line.
type Stats struct {
	Frames  string `json:"frames,omitempty"`
	FPS     string `json:"fps,omitempty"`
	Time    string `json:"time,omitempty"`
	Bitrate string `json:"bitrate,omitempty"`
	Speed   string `json:"speed,omitempty"`
}

var (
	framesPattern  = regexp.MustCompile(`(?i)frames?[=:]?\s*(\d+)`)
	fpsPattern     = regexp.MustCompile(`(?i)fps[=:]?\s*([\d.]+)`)
	timePattern    = regexp.MustCompile(`(?i)time[=:]?\s*([\d:]+)`)
	bitratePattern = regexp.MustCompile(`(?i)bitrate[=:]?\s*([\d.]+k?)`)
	speedPattern   = regexp.MustCompile(`(?i)speed[=:]?\s*([\d.]+)x`)
)

// ParseStats extracts counters from a free-form log line. Lines in the
// pipe-separated key=value form are preferred; regex matching covers the rest.
func ParseStats(logLine string) Stats {
	fields := parsePairs(logLine)

	stats := Stats{
		Frames:  fields["frames"],
		FPS:     fields["fps"],
		Time:    trimFraction(fields["time"]),
		Bitrate: fields["bitrate"],
		Speed:   fields["speed"],
	}

	if stats.Frames == "" {
		stats.Frames = firstGroup(framesPattern, logLine)
	}
	if stats.FPS == "" {
		stats.FPS = firstGroup(fpsPattern, logLine)
	}
	if stats.Time == "" {
		stats.Time = trimFraction(firstGroup(timePattern, logLine))
	}
	if stats.Bitrate == "" {
		stats.Bitrate = firstGroup(bitratePattern, logLine)
	}
	if stats.Speed == "" {
		if speed := firstGroup(speedPattern, logLine); speed != "" {
			stats.Speed = speed + "x"
		}
	}

	return stats
}

// parsePairs splits "k1=v1|k2=v2" lines into a lower-cased key map.
func parsePairs(line string) map[string]string {
	fields := map[string]string{}
	if !strings.Contains(line, "|") {
		return fields
	}

	for _, part := range strings.Split(line, "|") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			fields[key] = value
		}
	}
	return fields
}

func firstGroup(pattern *regexp.Regexp, line string) string {
	match := pattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// trimFraction drops fractional seconds from a time token ("00:01:02.50").
func trimFraction(value string) string {
	token, _, _ := strings.Cut(value, ".")
	return token
}

// ParseClock converts an HH:MM:SS token into total seconds.
func ParseClock(value string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, false
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

// ParseDurationSeconds reads a video-info duration, which servers report
// either as "SECONDS ..." (first space-separated float) or as HH:MM:SS.
func ParseDurationSeconds(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, ok := ParseClock(value); ok {
		return seconds, true
	}

	token, _, _ := strings.Cut(value, " ")
	seconds, err := strconv.ParseFloat(token, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return int(seconds), true
}

// UnknownPercent is displayed while a job runs without a parseable duration.
const UnknownPercent = 50

// Percent computes transcode completion from the log-line elapsed time and
// the probed total duration. When either side does not parse to a positive
// number of seconds, it reports UnknownPercent and known=false.
func Percent(elapsed, duration string) (percent int, known bool) {
	elapsedSec, okElapsed := ParseClock(elapsed)
	totalSec, okTotal := ParseDurationSeconds(duration)
	if !okElapsed || !okTotal || elapsedSec <= 0 || totalSec <= 0 {
		return UnknownPercent, false
	}

	percent = int(float64(elapsedSec)/float64(totalSec)*100 + 0.5)
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// ClampStep bounds the server's pipeline step indicator to [0, max].
func ClampStep(step, max int) int {
	if step < 0 {
		return 0
	}
	if step > max {
		return max
	}
	return step
}
