package diagnostics

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"media-optimizer/internal/domain"
)

// Checker validates backend reachability and required local paths.
type Checker struct {
	httpClient *http.Client
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS and network dependencies.
func NewChecker() *Checker {
	return &Checker{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkServerURL(settings.ServerURL),
		c.checkEndpoint(settings.ServerURL, "/status", "endpoint_status", "Status endpoint"),
		c.checkEndpoint(settings.ServerURL, "/optimizer/profiles", "endpoint_profiles", "Profiles endpoint"),
		c.checkDataDir(settings.DataDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkServerURL validates the configured base URL shape.
func (c *Checker) checkServerURL(serverURL string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "server_url",
		Name: "Server URL",
	}

	if strings.TrimSpace(serverURL) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Server URL is empty."
		item.Hint = "Set the media server's base URL in settings."
		return item
	}

	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Server URL is not a valid http(s) URL: %s", serverURL)
		item.Hint = "Use a full URL such as http://media.local:5000."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Configured server: %s", serverURL)
	return item
}

// checkEndpoint verifies one backend endpoint answers HTTP at all. Any
// response counts as reachable; auth and error payloads are the server's
// business, not a connectivity failure.
func (c *Checker) checkEndpoint(serverURL, path, id, name string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(serverURL) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Skipped: no server URL configured."
		return item
	}

	started := time.Now()
	resp, err := c.httpClient.Get(strings.TrimRight(serverURL, "/") + path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot reach %s: %v", path, err)
		item.Hint = "Check that the media server is running and the URL is correct."
		return item
	}
	resp.Body.Close()

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s answered %d in %dms", path, resp.StatusCode, time.Since(started).Milliseconds())
	return item
}

// checkDataDir validates local cache directory existence and write access.
func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Data directory",
	}

	if strings.TrimSpace(dataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is empty."
		item.Hint = "Set a local directory for the catalog and artwork cache."
		return item
	}

	if err := c.mkdirAll(dataDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create data directory: %s", dataDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dataDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not writable: %s", dataDir)
		item.Hint = "Choose a writable directory for the local cache."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dataDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	httpClient *http.Client,
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		httpClient: httpClient,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
