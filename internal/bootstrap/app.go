package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"media-optimizer/internal/api"
	"media-optimizer/internal/cache"
	"media-optimizer/internal/catalog"
	"media-optimizer/internal/config"
	"media-optimizer/internal/diagnostics"
	"media-optimizer/internal/domain"
	"media-optimizer/internal/profiles"
	"media-optimizer/internal/progress"
	"media-optimizer/internal/tracker"
	"media-optimizer/internal/upload"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mkv;*.avi;*.mov;*.wmv;*.flv;*.webm;*.m4v;*.mpg;*.mpeg;*.ts",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// menuCollapsedKey stores the sidebar preference; it never expires.
const menuCollapsedKey = "menu_collapsed"

// SelectionResult is the dialog outcome returned to the UI: the chosen file
// plus, when the server answered in time, its compression estimate with
// display-ready sizes.
type SelectionResult struct {
	File          domain.UploadSelection `json:"file"`
	Estimate      *domain.Estimate       `json:"estimate,omitempty"`
	OriginalSize  string                 `json:"originalSize,omitempty"`
	EstimatedSize string                 `json:"estimatedSize,omitempty"`
}

// newSelectionResult pairs the selection with its estimate, when one arrived.
func newSelectionResult(selection domain.UploadSelection, estimate *domain.Estimate) SelectionResult {
	result := SelectionResult{File: selection}
	if estimate != nil {
		result.Estimate = estimate
		result.OriginalSize = progress.FormatSizeMB(estimate.OriginalMB)
		result.EstimatedSize = progress.FormatSizeMB(estimate.EstimatedMB)
	}
	return result
}

// App wires configuration, the server client, caching, and the upload
// tracker behind Wails bindings.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport

	assets  fs.FS
	checker *diagnostics.Checker

	mu         sync.Mutex
	runtimeCtx context.Context
	pending    *domain.Settings
	client     *api.Client
	cacheStore *cache.Store
	library    *catalog.Service
	profiles   *profiles.Catalog
	tracker    *tracker.Tracker
	events     *tracker.EventBus
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".media-optimizer", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		events:      tracker.NewEventBus(1000),
	}
	if err := app.wireServices(settings); err != nil {
		return nil, err
	}
	return app, nil
}

// wireServices builds the server-bound components for the given settings.
// The tracker's event bus survives rewiring so the UI keeps its sequence.
func (a *App) wireServices(settings domain.Settings) error {
	cacheStore, err := cache.Open(settings.DataDir)
	if err != nil {
		return fmt.Errorf("open local cache: %w", err)
	}

	client := api.NewClient(settings.ServerURL)
	tr := tracker.New(client, upload.NewUploader(), client.BaseURL(), a.events)
	tr.SetProfile(settings.DefaultProfile)
	tr.SetNotifier(a.emitTrackerEvent)

	a.mu.Lock()
	old := a.cacheStore
	a.client = client
	a.cacheStore = cacheStore
	a.library = catalog.NewService(client, cacheStore)
	a.profiles = profiles.NewCatalog(client)
	a.tracker = tr
	a.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Media Optimizer",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			a.runtimeCtx = nil
			store := a.cacheStore
			a.mu.Unlock()
			if store != nil {
				_ = store.Close()
			}
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, refreshes diagnostics, and
// rewires the server client. A running session keeps its old wiring; the
// saved settings are held and applied on the tracker's next idle transition.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	busy := a.tracker != nil && a.tracker.State() != domain.TrackerStateIdle
	if busy {
		a.pending = &normalized
	} else {
		a.pending = nil
	}
	a.mu.Unlock()

	if !busy {
		if err := a.wireServices(normalized); err != nil {
			return domain.Settings{}, err
		}
	}
	return normalized, nil
}

// applyPendingSettings rewires the server-bound services with settings saved
// while a session was active. Called when the tracker reports idle.
func (a *App) applyPendingSettings() {
	a.mu.Lock()
	pending := a.pending
	tr := a.tracker
	a.mu.Unlock()

	if pending == nil || tr == nil || tr.State() != domain.TrackerStateIdle {
		return
	}
	if err := a.wireServices(*pending); err != nil {
		slog.Warn("apply saved settings failed", "error", err)
		return
	}

	a.mu.Lock()
	if a.pending == pending {
		a.pending = nil
	}
	a.mu.Unlock()
}

// RefreshDiagnostics reloads settings and reruns startup checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings)
	report := a.Diagnostics
	a.mu.Unlock()
	return report, nil
}

// SelectVideoFile opens the native picker, records the selection on the
// tracker, and asks the server for a size estimate. The estimate is a
// convenience: when it fails the selection still stands and Estimate is nil.
func (a *App) SelectVideoFile() (SelectionResult, error) {
	tr := a.currentTracker()
	if tr.IsUploading() {
		return SelectionResult{}, tracker.ErrUploadInProgress
	}

	ctx, err := a.runtimeContext()
	if err != nil {
		return SelectionResult{}, err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video file",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return SelectionResult{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return SelectionResult{}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return SelectionResult{}, fmt.Errorf("inspect selected file: %w", err)
	}

	selection := domain.UploadSelection{
		Path: path,
		Name: filepath.Base(path),
		Size: info.Size(),
	}
	if err := tr.SelectFile(selection); err != nil {
		return SelectionResult{}, err
	}

	estimateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if estimate, err := a.currentClient().Estimate(estimateCtx, selection.Name, tr.Profile()); err == nil {
		return newSelectionResult(selection, &estimate), nil
	}
	return newSelectionResult(selection, nil), nil
}

// ClearSelection drops the pending file selection.
func (a *App) ClearSelection() {
	a.currentTracker().ClearSelection()
}

// Submit starts uploading the selected file.
func (a *App) Submit() error {
	return a.currentTracker().Submit()
}

// Cancel aborts the active upload or requests server-side cancellation.
func (a *App) Cancel() error {
	return a.currentTracker().Cancel()
}

// Acknowledge clears a displayed error and returns the tracker to idle.
func (a *App) Acknowledge() {
	a.currentTracker().Acknowledge()
}

// TrackerSession returns the current session snapshot for UI rendering.
func (a *App) TrackerSession() domain.Session {
	return a.currentTracker().Session()
}

// TrackerEvents returns all events with sequence greater than sinceSeq.
func (a *App) TrackerEvents(sinceSeq int64) []tracker.Event {
	return a.events.Since(sinceSeq)
}

// StatusView derives the render-ready processing view from the latest poll.
func (a *App) StatusView() StatusView {
	tr := a.currentTracker()
	return buildStatusView(tr.Session(), tr.LastStatus())
}

// LoadCatalog returns the movie/series catalog, cache-first unless forced.
func (a *App) LoadCatalog(force bool) (domain.Catalog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return a.currentLibrary().Load(ctx, force)
}

// ThumbnailURL resolves artwork for one movie; empty means no artwork.
func (a *App) ThumbnailURL(movie domain.Movie) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	url, err := a.currentLibrary().ThumbnailURL(ctx, movie)
	if err != nil {
		if errors.Is(err, catalog.ErrNoArtwork) {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

// PosterURL resolves artwork for one series; empty means no artwork.
func (a *App) PosterURL(serieName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	url, err := a.currentLibrary().PosterURL(ctx, serieName)
	if err != nil {
		if errors.Is(err, catalog.ErrNoArtwork) {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

// CategoryLabel converts a category path into its display name.
func (a *App) CategoryLabel(path string) string {
	return catalog.FormatCategoryName(path)
}

// Profiles returns the transcoding profile list, server-provided when possible.
func (a *App) Profiles() []domain.Profile {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.mu.Lock()
	pc := a.profiles
	a.mu.Unlock()
	return pc.Load(ctx)
}

// SelectProfile records the profile used for the next submission.
func (a *App) SelectProfile(key string) {
	a.currentTracker().SetProfile(key)
}

// ActiveProfile returns the profile key for the next submission.
func (a *App) ActiveProfile() string {
	return a.currentTracker().Profile()
}

// MenuCollapsed returns the persisted sidebar preference.
func (a *App) MenuCollapsed() bool {
	var collapsed bool
	store := a.currentCache()
	if store == nil {
		return false
	}
	if found, err := store.GetJSON(menuCollapsedKey, &collapsed); err != nil || !found {
		return false
	}
	return collapsed
}

// SetMenuCollapsed persists the sidebar preference.
func (a *App) SetMenuCollapsed(collapsed bool) error {
	store := a.currentCache()
	if store == nil {
		return nil
	}
	return store.SetJSON(menuCollapsedKey, collapsed, 0)
}

// emitTrackerEvent pushes tracker events to the frontend over the runtime bus
// and triggers deferred settings application on idle transitions.
func (a *App) emitTrackerEvent(event tracker.Event) {
	if event.State == domain.TrackerStateIdle {
		go a.applyPendingSettings()
	}

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "tracker:event", event)
	}
}

func (a *App) currentTracker() *tracker.Tracker {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker
}

func (a *App) currentClient() *api.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

func (a *App) currentLibrary() *catalog.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.library
}

func (a *App) currentCache() *cache.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cacheStore
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.ServerURL = strings.TrimRight(strings.TrimSpace(settings.ServerURL), "/")
	settings.DataDir = strings.TrimSpace(settings.DataDir)
	settings.DefaultProfile = strings.TrimSpace(settings.DefaultProfile)

	defaults := config.DefaultSettings()
	if settings.ServerURL == "" {
		settings.ServerURL = defaults.ServerURL
	}
	if settings.DataDir == "" {
		settings.DataDir = defaults.DataDir
	}
	if settings.DefaultProfile == "" {
		settings.DefaultProfile = defaults.DefaultProfile
	}
	return settings
}
