package domain

// TrackerState identifies the single active phase of the upload/transcode tracker.
type TrackerState string

const (
	TrackerStateIdle       TrackerState = "idle"
	TrackerStateUploading  TrackerState = "uploading"
	TrackerStateProcessing TrackerState = "processing"
	TrackerStateError      TrackerState = "error"
	TrackerStateCancelled  TrackerState = "cancelled"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ServerURL      string `json:"serverUrl"`
	DataDir        string `json:"dataDir"`
	DefaultProfile string `json:"defaultProfile"`
}

// UploadSelection describes the file chosen for the next submission.
type UploadSelection struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Session is a snapshot of one user-initiated file submission.
type Session struct {
	ID       string          `json:"id"`
	File     UploadSelection `json:"file"`
	Profile  string          `json:"profile"`
	Percent  int             `json:"percent"`
	State    TrackerState    `json:"state"`
	ErrorMsg string          `json:"errorMsg,omitempty"`
}

// Profile is a named server-defined transcoding configuration.
type Profile struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Preset      string `json:"preset,omitempty"`
	CRF         int    `json:"crf,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

// Estimate is the server's size projection for a pending upload.
type Estimate struct {
	OriginalMB       float64 `json:"original_mb"`
	EstimatedMB      float64 `json:"estimated_mb"`
	CompressionRatio string  `json:"compression_ratio"`
	Filename         string  `json:"filename,omitempty"`
}
