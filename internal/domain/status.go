package domain

import (
	"encoding/json"
	"strings"
)

// VideoInfo is the probe record the server reports for the file in progress.
type VideoInfo struct {
	Name       string `json:"name,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Format     string `json:"format,omitempty"`
	VCodec     string `json:"vcodec,omitempty"`
	ACodec     string `json:"acodec,omitempty"`
	Size       string `json:"size,omitempty"`
}

// HistoryEntry is one finished transcode run in the server's history list.
type HistoryEntry struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Size      string `json:"size,omitempty"`
}

// UnmarshalJSON accepts both the object form and the legacy positional
// array form [name, status, timestamp, duration] some server versions emit.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		fields := []*string{&h.Name, &h.Status, &h.Timestamp, &h.Duration, &h.Profile, &h.Size}
		for i, part := range parts {
			if i >= len(fields) {
				break
			}
			*fields[i] = part
		}
		return nil
	}

	type plain HistoryEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*h = HistoryEntry(p)
	return nil
}

// JobStatus is one snapshot of the server's /status endpoint. It is replaced
// wholesale on every poll and never mutated in place.
type JobStatus struct {
	CurrentVideo string         `json:"current_video,omitempty"`
	CurrentFile  string         `json:"current_file,omitempty"`
	LogLine      string         `json:"log_line,omitempty"`
	QueueSize    int            `json:"queue_size,omitempty"`
	CurrentStep  int            `json:"current_step,omitempty"`
	VideoInfo    VideoInfo      `json:"video_info,omitempty"`
	History      []HistoryEntry `json:"history,omitempty"`
}

// ActiveName returns the reported in-progress file name under either field
// name the server may use. Empty means the server is idle.
func (s JobStatus) ActiveName() string {
	if s.CurrentFile != "" {
		return s.CurrentFile
	}
	return s.CurrentVideo
}
