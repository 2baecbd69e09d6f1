package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-optimizer/internal/domain"
	"media-optimizer/internal/upload"
)

// ErrUploadInProgress is returned when starting a second active session.
var ErrUploadInProgress = errors.New("upload already in progress")

// ErrNoFileSelected is returned when submitting without a selected file.
var ErrNoFileSelected = errors.New("no file selected")

// statusClient is the server surface the tracker polls and cancels through.
type statusClient interface {
	Status(ctx context.Context) (domain.JobStatus, error)
	CancelProcess(ctx context.Context) error
}

// uploader isolates the upload transport behind an interface.
type uploader interface {
	Upload(ctx context.Context, req upload.Request) (upload.Result, error)
}

// defaultPollInterval is the cadence of /status reads while processing.
const defaultPollInterval = 2 * time.Second

// Tracker owns the client-visible lifecycle of one upload-then-transcode
// run: file selection, abortable upload with progress, the polling phase,
// and recovery back to idle on completion, error, or cancellation.
type Tracker struct {
	client    statusClient
	uploader  uploader
	serverURL string
	events    *EventBus
	logger    *slog.Logger

	mu           sync.Mutex
	state        domain.TrackerState
	selection    *domain.UploadSelection
	profile      string
	sessionID    string
	percent      int
	errText      string
	settled      bool
	uploadCancel context.CancelFunc
	pollCancel   context.CancelFunc
	pollInterval time.Duration
	lastStatus   domain.JobStatus
	notify       func(Event)
}

// New creates an idle tracker bound to the given server surface.
func New(client statusClient, up uploader, serverURL string, events *EventBus) *Tracker {
	return &Tracker{
		client:       client,
		uploader:     up,
		serverURL:    serverURL,
		events:       events,
		logger:       slog.Default(),
		state:        domain.TrackerStateIdle,
		profile:      "balanced",
		pollInterval: defaultPollInterval,
	}
}

// SetNotifier registers a push callback invoked for every published event.
func (t *Tracker) SetNotifier(notify func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notify = notify
}

// SetPollInterval overrides the status polling cadence.
func (t *Tracker) SetPollInterval(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if interval > 0 {
		t.pollInterval = interval
	}
}

// State returns the current tracker state.
func (t *Tracker) State() domain.TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsUploading reports whether an upload transport is in flight.
func (t *Tracker) IsUploading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == domain.TrackerStateUploading
}

// Session returns a snapshot of the current submission for UI rendering.
func (t *Tracker) Session() domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	session := domain.Session{
		ID:       t.sessionID,
		Profile:  t.profile,
		Percent:  t.percent,
		State:    t.state,
		ErrorMsg: t.errText,
	}
	if t.selection != nil {
		session.File = *t.selection
	}
	return session
}

// LastStatus returns the most recent poll snapshot.
func (t *Tracker) LastStatus() domain.JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastStatus
}

// SetProfile records the active transcoding profile for the next submission.
func (t *Tracker) SetProfile(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key != "" {
		t.profile = key
	}
}

// Profile returns the active profile key.
func (t *Tracker) Profile() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.profile
}

// SelectFile records the file for the next submission. Selection is rejected
// while an upload transport is active.
func (t *Tracker) SelectFile(selection domain.UploadSelection) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == domain.TrackerStateUploading {
		return ErrUploadInProgress
	}

	t.selection = &selection
	return nil
}

// ClearSelection drops the pending file selection.
func (t *Tracker) ClearSelection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.TrackerStateUploading {
		t.selection = nil
	}
}

// Submit starts uploading the selected file. It fails synchronously when no
// file is selected or a session is already active; the second guard ensures
// a duplicate submit never starts another transport.
func (t *Tracker) Submit() error {
	t.mu.Lock()

	if t.state == domain.TrackerStateUploading || t.state == domain.TrackerStateProcessing {
		t.mu.Unlock()
		return ErrUploadInProgress
	}
	if t.selection == nil {
		t.mu.Unlock()
		return ErrNoFileSelected
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.sessionID = uuid.NewString()
	t.state = domain.TrackerStateUploading
	t.percent = 0
	t.errText = ""
	t.settled = false
	t.uploadCancel = cancel
	t.lastStatus = domain.JobStatus{}

	req := upload.Request{
		ServerURL:  t.serverURL,
		FilePath:   t.selection.Path,
		Profile:    t.profile,
		OnProgress: t.onUploadProgress,
	}
	sessionID := t.sessionID
	t.publishLocked(Event{
		SessionID: sessionID,
		Type:      EventTypeState,
		State:     domain.TrackerStateUploading,
		Message:   "Uploading " + t.selection.Name,
	})
	t.mu.Unlock()

	go t.runUpload(ctx, sessionID, req)
	return nil
}

// runUpload executes the transport and settles the session exactly once.
func (t *Tracker) runUpload(ctx context.Context, sessionID string, req upload.Request) {
	_, err := t.uploader.Upload(ctx, req)
	t.settleUpload(sessionID, err)
}

// settleUpload applies the single upload outcome. Late or duplicate
// settlement attempts (for example an error event after a local abort) are
// ignored.
func (t *Tracker) settleUpload(sessionID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.settled || t.sessionID != sessionID {
		return
	}
	t.settled = true
	t.uploadCancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Local abort already drove the cancelled transition.
			return
		}
		t.toErrorLocked(presentableError(err))
		return
	}

	t.state = domain.TrackerStateProcessing
	t.percent = 100
	t.publishLocked(Event{
		SessionID: sessionID,
		Type:      EventTypeState,
		State:     domain.TrackerStateProcessing,
		Message:   "Upload complete, optimization started",
	})
	t.startPollingLocked()
}

// onUploadProgress records a monotonically non-decreasing sent percentage.
func (t *Tracker) onUploadProgress(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != domain.TrackerStateUploading || percent <= t.percent {
		return
	}
	t.percent = percent
	t.publishLocked(Event{
		SessionID: t.sessionID,
		Type:      EventTypeProgress,
		State:     domain.TrackerStateUploading,
		Percent:   percent,
	})
}

// Cancel aborts the current phase. During upload the transport is aborted
// locally; during processing the server is asked to stop, but the UI resets
// regardless of that request's outcome. Cancelling with nothing active is a
// no-op.
func (t *Tracker) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case domain.TrackerStateUploading:
		if t.uploadCancel != nil {
			t.uploadCancel()
			t.uploadCancel = nil
		}
		t.settled = true
		t.publishLocked(Event{
			SessionID: t.sessionID,
			Type:      EventTypeState,
			State:     domain.TrackerStateCancelled,
			Message:   "Upload cancelled",
		})
		t.toIdleLocked("")
		return nil

	case domain.TrackerStateProcessing:
		t.stopPollingLocked()
		sessionID := t.sessionID
		// Fail-open: the cancel request is best effort and must not keep
		// the UI stuck in processing when the server misbehaves.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := t.client.CancelProcess(ctx); err != nil {
				t.logger.Warn("cancel process request failed", "session", sessionID, "error", err)
			}
		}()
		t.publishLocked(Event{
			SessionID: sessionID,
			Type:      EventTypeState,
			State:     domain.TrackerStateCancelled,
			Message:   "Processing cancelled",
		})
		t.toIdleLocked("")
		return nil

	default:
		return nil
	}
}

// Acknowledge clears a surfaced error and returns the tracker to idle.
func (t *Tracker) Acknowledge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == domain.TrackerStateError {
		t.toIdleLocked("")
	}
}

// startPollingLocked launches the status poll loop; caller holds the mutex.
func (t *Tracker) startPollingLocked() {
	t.stopPollingLocked()
	ctx, cancel := context.WithCancel(context.Background())
	t.pollCancel = cancel
	go t.pollLoop(ctx)
}

// stopPollingLocked halts any active poll loop; caller holds the mutex.
func (t *Tracker) stopPollingLocked() {
	if t.pollCancel != nil {
		t.pollCancel()
		t.pollCancel = nil
	}
}

// pollLoop reads /status on a fixed cadence, with an immediate first tick.
func (t *Tracker) pollLoop(ctx context.Context) {
	t.mu.Lock()
	interval := t.pollInterval
	t.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce(ctx)
		}
	}
}

// pollOnce fetches one status snapshot and reconciles tracker state with it.
// Ticks observed while an upload is in flight are discarded so a stale idle
// snapshot cannot overwrite live upload progress.
func (t *Tracker) pollOnce(ctx context.Context) {
	t.mu.Lock()
	if t.state == domain.TrackerStateUploading {
		t.mu.Unlock()
		return
	}
	if t.state != domain.TrackerStateProcessing {
		t.mu.Unlock()
		return
	}
	sessionID := t.sessionID
	t.mu.Unlock()

	status, err := t.client.Status(ctx)
	if err != nil {
		if ctx.Err() == nil {
			// Transient poll failures are retried on the next tick.
			t.logger.Warn("status poll failed", "session", sessionID, "error", err)
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// The state may have moved while the fetch was in flight.
	if t.state != domain.TrackerStateProcessing || t.sessionID != sessionID {
		return
	}

	if line := status.LogLine; line != "" && strings.Contains(strings.ToLower(line), "error") {
		t.toErrorLocked(line)
		return
	}

	if status.ActiveName() == "" {
		t.publishLocked(Event{
			SessionID: sessionID,
			Type:      EventTypeState,
			State:     domain.TrackerStateIdle,
			Message:   "Optimization finished",
		})
		t.toIdleLocked("")
		return
	}

	t.lastStatus = status
	t.publishLocked(Event{
		SessionID: sessionID,
		Type:      EventTypeStatus,
		State:     domain.TrackerStateProcessing,
		Status:    &status,
	})
}

// toErrorLocked surfaces a terminal failure; caller holds the mutex.
func (t *Tracker) toErrorLocked(message string) {
	t.stopPollingLocked()
	t.state = domain.TrackerStateError
	t.errText = message
	t.publishLocked(Event{
		SessionID: t.sessionID,
		Type:      EventTypeError,
		State:     domain.TrackerStateError,
		Message:   message,
	})
}

// toIdleLocked resets all per-session display state; caller holds the mutex.
func (t *Tracker) toIdleLocked(message string) {
	t.stopPollingLocked()
	t.state = domain.TrackerStateIdle
	t.percent = 0
	t.errText = ""
	t.sessionID = ""
	t.lastStatus = domain.JobStatus{}
	t.publishLocked(Event{
		Type:    EventTypeState,
		State:   domain.TrackerStateIdle,
		Message: message,
	})
}

// publishLocked stores the event and pushes it to the registered notifier.
func (t *Tracker) publishLocked(event Event) {
	published := t.events.Publish(event)
	if t.notify != nil {
		t.notify(published)
	}
}

// Events returns all events with sequence greater than sinceSeq.
func (t *Tracker) Events(sinceSeq int64) []Event {
	return t.events.Since(sinceSeq)
}

// presentableError keeps the upload error's phase message for the UI.
func presentableError(err error) string {
	var uploadErr *upload.Error
	if errors.As(err, &uploadErr) {
		return uploadErr.Message
	}
	return err.Error()
}
