package bootstrap

import (
	"media-optimizer/internal/domain"
	"media-optimizer/internal/profiles"
	"media-optimizer/internal/progress"
)

// maxPipelineStep is the last stage of the server's processing pipeline.
const maxPipelineStep = 4

// HistoryView is one finished run prepared for display.
type HistoryView struct {
	Name        string                `json:"name"`
	Status      string                `json:"status"`
	Class       progress.HistoryClass `json:"class"`
	Timestamp   string                `json:"timestamp,omitempty"`
	Duration    string                `json:"duration,omitempty"`
	ProfileName string                `json:"profileName,omitempty"`
	Size        string                `json:"size,omitempty"`
}

// StatusView is the render-ready projection of the tracker session and the
// latest server status snapshot.
type StatusView struct {
	State         domain.TrackerState `json:"state"`
	ActiveName    string              `json:"activeName,omitempty"`
	UploadPercent int                 `json:"uploadPercent"`
	LogLine       string              `json:"logLine,omitempty"`
	Stats         progress.Stats      `json:"stats"`
	Percent       int                 `json:"percent"`
	PercentKnown  bool                `json:"percentKnown"`
	Step          int                 `json:"step"`
	QueueSize     int                 `json:"queueSize"`
	VideoInfo     domain.VideoInfo    `json:"videoInfo"`
	Duration      string              `json:"duration,omitempty"`
	History       []HistoryView       `json:"history"`
	ErrorMsg      string              `json:"errorMsg,omitempty"`
}

// buildStatusView projects one session snapshot and poll result into the
// fields the progress panel renders.
func buildStatusView(session domain.Session, status domain.JobStatus) StatusView {
	stats := progress.ParseStats(status.LogLine)
	percent, known := progress.Percent(stats.Time, status.VideoInfo.Duration)

	view := StatusView{
		State:         session.State,
		ActiveName:    status.ActiveName(),
		UploadPercent: session.Percent,
		LogLine:       status.LogLine,
		Stats:         stats,
		Percent:       percent,
		PercentKnown:  known,
		Step:          progress.ClampStep(status.CurrentStep, maxPipelineStep),
		QueueSize:     status.QueueSize,
		VideoInfo:     status.VideoInfo,
		ErrorMsg:      session.ErrorMsg,
	}
	if seconds, ok := progress.ParseDurationSeconds(status.VideoInfo.Duration); ok {
		view.Duration = progress.FormatClock(seconds)
	}

	// The server appends runs chronologically; the panel shows the newest
	// first, capped.
	entries := status.History
	if len(entries) > progress.HistoryLimit {
		entries = entries[len(entries)-progress.HistoryLimit:]
	}
	view.History = make([]HistoryView, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		view.History = append(view.History, HistoryView{
			Name:        entry.Name,
			Status:      entry.Status,
			Class:       progress.ClassifyStatus(entry.Status),
			Timestamp:   entry.Timestamp,
			Duration:    progress.FormatHistoryDuration(entry.Duration),
			ProfileName: profiles.DisplayName(entry.Profile),
			Size:        entry.Size,
		})
	}
	return view
}
