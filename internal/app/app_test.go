package app

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// writeTestConfig writes a minimal config with all storage roots under a
// temp directory and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	content := fmt.Sprintf(`
environment = "test"

[source]
base_url = "http://127.0.0.1:0"
api_key = "test-key"

[pipeline]
workers = 2
prune_schedule = ""

[storage]
charts_path = %q
reports_path = %q
user_data_path = %q
raw_cache_path = %q

[logging]
level = "error"
`,
		filepath.Join(dir, "charts"),
		filepath.Join(dir, "reports"),
		filepath.Join(dir, "user"),
		filepath.Join(dir, "rawcache"),
	)

	path := filepath.Join(dir, "finlens.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewApp_InitializesAllServices(t *testing.T) {
	a, err := NewApp(writeTestConfig(t))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.Config == nil {
		t.Error("Config is nil")
	}
	if a.Logger == nil {
		t.Error("Logger is nil")
	}
	if a.IngestService == nil {
		t.Error("IngestService is nil")
	}
	if a.Renderer == nil {
		t.Error("Renderer is nil")
	}
	if a.ReportService == nil {
		t.Error("ReportService is nil")
	}
	if a.ReportStore == nil {
		t.Error("ReportStore is nil")
	}
	if a.ProfileStore == nil {
		t.Error("ProfileStore is nil")
	}
	if a.ChartStore == nil {
		t.Error("ChartStore is nil")
	}
	if a.Orchestrator == nil {
		t.Error("Orchestrator is nil")
	}
	if a.StartupTime.IsZero() {
		t.Error("StartupTime is zero")
	}
}

func TestNewApp_CreatesStorageRoots(t *testing.T) {
	a, err := NewApp(writeTestConfig(t))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	for _, path := range []string{
		a.Config.Storage.ChartsPath,
		a.Config.Storage.ReportsPath,
		a.Config.Storage.UserDataPath,
		a.Config.Storage.RawCachePath,
	} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Errorf("storage root %s not created: %v", path, err)
		}
	}
}

func TestNewApp_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = -1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewApp(path); err == nil {
		t.Error("NewApp accepted an invalid config")
	}
}

func TestNewApp_SchedulerOnlyWithSchedule(t *testing.T) {
	a, err := NewApp(writeTestConfig(t))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.Close()

	if a.scheduler != nil {
		t.Error("scheduler started despite empty prune schedule")
	}
}
