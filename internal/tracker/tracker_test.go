package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-optimizer/internal/domain"
	"media-optimizer/internal/upload"
)

type statusResult struct {
	status domain.JobStatus
	err    error
}

// fakeStatusClient serves queued snapshots, repeating the last one.
type fakeStatusClient struct {
	mu          sync.Mutex
	queue       []statusResult
	last        statusResult
	cancelErr   error
	cancelCalls int
}

func (f *fakeStatusClient) Status(ctx context.Context) (domain.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) > 0 {
		f.last = f.queue[0]
		f.queue = f.queue[1:]
	}
	return f.last.status, f.last.err
}

func (f *fakeStatusClient) CancelProcess(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeStatusClient) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCalls
}

// fakeUploader emits scripted progress, then optionally blocks until its
// context is cancelled or release is closed.
type fakeUploader struct {
	progress []int
	err      error
	block    chan struct{}
	calls    int32
}

func (f *fakeUploader) Upload(ctx context.Context, req upload.Request) (upload.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	for _, percent := range f.progress {
		if req.OnProgress != nil {
			req.OnProgress(percent)
		}
	}
	if f.block != nil {
		select {
		case <-ctx.Done():
			return upload.Result{}, &upload.Error{Phase: "cancel", Message: "upload cancelled", Err: context.Canceled}
		case <-f.block:
		}
	}
	if f.err != nil {
		return upload.Result{}, f.err
	}
	return upload.Result{Status: "queued"}, nil
}

func (f *fakeUploader) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func activeStatus(name string) domain.JobStatus {
	return domain.JobStatus{
		CurrentVideo: name,
		LogLine:      "frames=120|fps=24.0|time=00:01:02.50|bitrate=1200k|speed=1.5x",
		VideoInfo:    domain.VideoInfo{Name: name, Duration: "180.0 s"},
	}
}

func newTestTracker(client *fakeStatusClient, up *fakeUploader) *Tracker {
	tr := New(client, up, "http://media.local", NewEventBus(100))
	tr.SetPollInterval(5 * time.Millisecond)
	return tr
}

func selectTestFile(t *testing.T, tr *Tracker) {
	t.Helper()
	require.NoError(t, tr.SelectFile(domain.UploadSelection{
		Path: "/videos/movie.mkv",
		Name: "movie.mkv",
		Size: 100 << 20,
	}))
}

func TestSubmitWithoutSelection(t *testing.T) {
	tr := newTestTracker(&fakeStatusClient{}, &fakeUploader{})
	assert.ErrorIs(t, tr.Submit(), ErrNoFileSelected)
	assert.Equal(t, domain.TrackerStateIdle, tr.State())
}

func TestSubmitGuardRejectsSecondSession(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{})}
	tr := newTestTracker(&fakeStatusClient{}, up)
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())
	assert.Equal(t, domain.TrackerStateUploading, tr.State())

	assert.ErrorIs(t, tr.Submit(), ErrUploadInProgress)
	assert.Equal(t, 1, up.callCount(), "second submit must not start a transport")

	assert.ErrorIs(t, tr.SelectFile(domain.UploadSelection{Name: "other.mkv"}), ErrUploadInProgress)

	require.NoError(t, tr.Cancel())
}

func TestUploadProgressIsMonotonic(t *testing.T) {
	up := &fakeUploader{progress: []int{10, 5, 10, 40, 100}, block: make(chan struct{})}
	tr := newTestTracker(&fakeStatusClient{}, up)
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())

	assert.Eventually(t, func() bool {
		return tr.Session().Percent == 100
	}, time.Second, time.Millisecond)

	var percents []int
	for _, event := range tr.Events(0) {
		if event.Type == EventTypeProgress {
			percents = append(percents, event.Percent)
		}
	}
	assert.Equal(t, []int{10, 40, 100}, percents)

	require.NoError(t, tr.Cancel())
}

func TestUploadSuccessPollsUntilIdle(t *testing.T) {
	client := &fakeStatusClient{
		queue: []statusResult{
			{status: activeStatus("movie.mkv")},
			{status: activeStatus("movie.mkv")},
			{status: domain.JobStatus{History: []domain.HistoryEntry{{Name: "movie.mkv", Status: "Procesado correctamente"}}}},
		},
	}
	tr := newTestTracker(client, &fakeUploader{progress: []int{100}})
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())

	assert.Eventually(t, func() bool {
		return tr.State() == domain.TrackerStateIdle && tr.Events(0) != nil
	}, time.Second, time.Millisecond)

	// States must have passed through uploading and processing before idle.
	var states []domain.TrackerState
	for _, event := range tr.Events(0) {
		if event.Type == EventTypeState {
			states = append(states, event.State)
		}
	}
	require.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, domain.TrackerStateUploading, states[0])
	assert.Equal(t, domain.TrackerStateProcessing, states[1])
	assert.Equal(t, domain.TrackerStateIdle, states[len(states)-1])

	// Stats cleared on completion.
	assert.Empty(t, tr.LastStatus().ActiveName())
	assert.Zero(t, tr.Session().Percent)
}

func TestUploadFailureSurfacesError(t *testing.T) {
	up := &fakeUploader{err: &upload.Error{Phase: "send", Message: "connection failed during upload"}}
	tr := newTestTracker(&fakeStatusClient{}, up)
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())

	assert.Eventually(t, func() bool {
		return tr.State() == domain.TrackerStateError
	}, time.Second, time.Millisecond)
	assert.Equal(t, "connection failed during upload", tr.Session().ErrorMsg)

	// A failed session is terminal but the user may submit again.
	require.NoError(t, tr.Submit())
	assert.Eventually(t, func() bool {
		return up.callCount() == 2
	}, time.Second, time.Millisecond)
}

func TestCancelDuringUploadReturnsToIdle(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{})}
	tr := newTestTracker(&fakeStatusClient{}, up)
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())
	require.NoError(t, tr.Cancel())

	assert.Equal(t, domain.TrackerStateIdle, tr.State())

	// Later cancels are no-ops.
	require.NoError(t, tr.Cancel())
	require.NoError(t, tr.Cancel())

	var sawCancelled bool
	for _, event := range tr.Events(0) {
		if event.State == domain.TrackerStateCancelled {
			sawCancelled = true
		}
	}
	assert.True(t, sawCancelled)
}

func TestCancelDuringProcessingIsFailOpen(t *testing.T) {
	client := &fakeStatusClient{
		last:      statusResult{status: activeStatus("movie.mkv")},
		cancelErr: context.DeadlineExceeded,
	}
	tr := newTestTracker(client, &fakeUploader{})
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())
	assert.Eventually(t, func() bool {
		return tr.State() == domain.TrackerStateProcessing
	}, time.Second, time.Millisecond)

	// The server-side cancel fails, but the UI must still reset.
	require.NoError(t, tr.Cancel())
	assert.Equal(t, domain.TrackerStateIdle, tr.State())

	assert.Eventually(t, func() bool {
		return client.cancelCount() == 1
	}, time.Second, time.Millisecond)
}

func TestPollTickSkippedWhileUploading(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{})}
	client := &fakeStatusClient{}
	tr := newTestTracker(client, up)
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())
	before := len(tr.Events(0))

	// A stray tick during the upload phase must not touch visible state.
	tr.pollOnce(context.Background())

	assert.Equal(t, domain.TrackerStateUploading, tr.State())
	assert.Len(t, tr.Events(0), before)

	require.NoError(t, tr.Cancel())
}

func TestPollErrorTextTransitionsToError(t *testing.T) {
	client := &fakeStatusClient{
		last: statusResult{status: domain.JobStatus{
			CurrentVideo: "movie.mkv",
			LogLine:      "Error: unsupported codec",
		}},
	}
	tr := newTestTracker(client, &fakeUploader{})
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())
	assert.Eventually(t, func() bool {
		return tr.State() == domain.TrackerStateError
	}, time.Second, time.Millisecond)
	assert.Contains(t, tr.Session().ErrorMsg, "unsupported codec")
}

func TestPollNetworkFailureIsRetried(t *testing.T) {
	client := &fakeStatusClient{
		queue: []statusResult{
			{err: context.DeadlineExceeded},
			{err: context.DeadlineExceeded},
			{status: activeStatus("movie.mkv")},
		},
	}
	tr := newTestTracker(client, &fakeUploader{})
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())

	// Transient poll failures leave the tracker in processing and the next
	// successful tick lands a snapshot.
	assert.Eventually(t, func() bool {
		return tr.LastStatus().ActiveName() == "movie.mkv"
	}, time.Second, time.Millisecond)
	assert.Equal(t, domain.TrackerStateProcessing, tr.State())

	require.NoError(t, tr.Cancel())
}

func TestAcknowledgeClearsError(t *testing.T) {
	up := &fakeUploader{err: &upload.Error{Phase: "timeout", Message: "upload timed out"}}
	tr := newTestTracker(&fakeStatusClient{}, up)
	selectTestFile(t, tr)

	require.NoError(t, tr.Submit())
	assert.Eventually(t, func() bool {
		return tr.State() == domain.TrackerStateError
	}, time.Second, time.Millisecond)

	tr.Acknowledge()
	assert.Equal(t, domain.TrackerStateIdle, tr.State())
	assert.Empty(t, tr.Session().ErrorMsg)
}

func TestNotifierReceivesPublishedEvents(t *testing.T) {
	up := &fakeUploader{progress: []int{100}, block: make(chan struct{})}
	tr := newTestTracker(&fakeStatusClient{}, up)

	var mu sync.Mutex
	var seen []EventType
	tr.SetNotifier(func(event Event) {
		mu.Lock()
		seen = append(seen, event.Type)
		mu.Unlock()
	})

	selectTestFile(t, tr)
	require.NoError(t, tr.Submit())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, time.Second, time.Millisecond)

	require.NoError(t, tr.Cancel())
}
