package diagnostics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"media-optimizer/internal/domain"
)

func itemByID(t *testing.T, report domain.DiagnosticReport, id string) domain.DiagnosticItem {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("report has no item %q", id)
	return domain.DiagnosticItem{}
}

func testChecker(client *http.Client) *Checker {
	return NewCheckerForTests(client, os.MkdirAll, os.CreateTemp, os.Remove)
}

func TestRunAllPass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := testChecker(server.Client())
	report := checker.Run(domain.Settings{
		ServerURL: server.URL,
		DataDir:   t.TempDir(),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got report %+v", report)
	}
	if len(report.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(report.Items))
	}
	for _, item := range report.Items {
		if item.Status != domain.DiagnosticStatusPass {
			t.Errorf("item %s: expected pass, got %s (%s)", item.ID, item.Status, item.Message)
		}
	}
}

func TestEndpointErrorResponseStillReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := testChecker(server.Client())
	report := checker.Run(domain.Settings{
		ServerURL: server.URL,
		DataDir:   t.TempDir(),
	})

	if item := itemByID(t, report, "endpoint_status"); item.Status != domain.DiagnosticStatusPass {
		t.Errorf("expected 500 to count as reachable, got %s (%s)", item.Status, item.Message)
	}
}

func TestUnreachableServerFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	checker := testChecker(&http.Client{})
	report := checker.Run(domain.Settings{
		ServerURL: serverURL,
		DataDir:   t.TempDir(),
	})

	if !report.HasFailures {
		t.Fatal("expected failures for unreachable server")
	}
	if item := itemByID(t, report, "endpoint_status"); item.Status != domain.DiagnosticStatusFail {
		t.Errorf("expected fail for unreachable /status, got %s", item.Status)
	}
	if item := itemByID(t, report, "endpoint_profiles"); item.Status != domain.DiagnosticStatusFail {
		t.Errorf("expected fail for unreachable /optimizer/profiles, got %s", item.Status)
	}
}

func TestInvalidServerURL(t *testing.T) {
	checker := testChecker(&http.Client{})

	for _, serverURL := range []string{"", "   ", "not a url", "localhost:5000"} {
		report := checker.Run(domain.Settings{ServerURL: serverURL, DataDir: t.TempDir()})
		if item := itemByID(t, report, "server_url"); item.Status != domain.DiagnosticStatusFail {
			t.Errorf("serverURL %q: expected fail, got %s", serverURL, item.Status)
		}
	}
}

func TestDataDirCreateFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	checker := NewCheckerForTests(
		server.Client(),
		func(string, os.FileMode) error { return errors.New("mkdir denied") },
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{ServerURL: server.URL, DataDir: "/nope"})
	item := itemByID(t, report, "data_dir")
	if item.Status != domain.DiagnosticStatusFail {
		t.Fatalf("expected fail, got %s", item.Status)
	}
	if item.Hint == "" {
		t.Error("expected a hint for data dir failure")
	}
}

func TestDataDirWriteProbeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	checker := NewCheckerForTests(
		server.Client(),
		os.MkdirAll,
		func(string, string) (*os.File, error) { return nil, errors.New("read-only fs") },
		os.Remove,
	)

	report := checker.Run(domain.Settings{ServerURL: server.URL, DataDir: t.TempDir()})
	if item := itemByID(t, report, "data_dir"); item.Status != domain.DiagnosticStatusFail {
		t.Errorf("expected fail for unwritable dir, got %s", item.Status)
	}
}

func TestWriteProbeCleansUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	dir := t.TempDir()
	checker := testChecker(server.Client())
	report := checker.Run(domain.Settings{ServerURL: server.URL, DataDir: dir})

	if item := itemByID(t, report, "data_dir"); item.Status != domain.DiagnosticStatusPass {
		t.Fatalf("expected pass, got %s (%s)", item.Status, item.Message)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected probe file removed, found %d entries", len(entries))
	}
}
