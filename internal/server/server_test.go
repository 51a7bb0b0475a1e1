package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/finlens/internal/app"
	"github.com/finlens/finlens/internal/models"
)

// stubSource serves deterministic EOD bars for any symbol except NOPE.US.
func stubSource(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/eod/NOPE.US" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
		require.NoError(t, err)
		to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
		require.NoError(t, err)

		var rows []map[string]interface{}
		for d, i := from, 0; !d.After(to); d, i = d.AddDate(0, 0, 1), i+1 {
			c := 100 + float64(i)
			rows = append(rows, map[string]interface{}{
				"date":           d.Format("2006-01-02"),
				"open":           c,
				"high":           c + 1,
				"low":            c - 1,
				"close":          c,
				"adjusted_close": c,
				"volume":         1000 + i,
			})
		}
		json.NewEncoder(w).Encode(rows)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	source := stubSource(t)
	dir := t.TempDir()

	content := fmt.Sprintf(`
environment = "test"

[source]
base_url = %q
api_key = "test-key"

[pipeline]
workers = 2
retry_interval = "10ms"
prune_schedule = ""

[storage]
charts_path = %q
reports_path = %q
user_data_path = %q
raw_cache_path = %q

[logging]
level = "error"
`,
		source.URL,
		filepath.Join(dir, "charts"),
		filepath.Join(dir, "reports"),
		filepath.Join(dir, "user"),
		filepath.Join(dir, "rawcache"),
	)

	configPath := filepath.Join(dir, "finlens.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	a, err := app.NewApp(configPath)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(New(a).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func getJSON(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func reportBody() map[string]interface{} {
	return map[string]interface{}{
		"symbol":      "AAPL.US",
		"from":        "2024-01-01",
		"to":          "2024-01-31",
		"granularity": "daily",
		"indicators": []map[string]interface{}{
			{"name": "sma", "window": 5},
		},
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	resp, body = getJSON(t, srv.URL+"/api/version")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "version")
}

func TestGenerateReport_Sync(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/api/reports", reportBody())
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var env struct {
		Success bool          `json:"success"`
		Data    models.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.True(t, env.Success)

	report := env.Data
	assert.Contains(t, report.ID, "rpt-")
	assert.Equal(t, "AAPL.US", report.Symbol)
	assert.Equal(t, models.ReportStatusComplete, report.Status)
	require.NotEmpty(t, report.Artifacts)
	assert.Equal(t, 31, report.Stats.Bars)

	// The stored report is retrievable by ID.
	resp, _ = getJSON(t, srv.URL+"/api/reports/"+report.ID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// And its chart artifact serves as a PNG.
	resp, png := getJSON(t, srv.URL+"/api/charts/"+report.Artifacts[0].Hash)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	require.True(t, len(png) > 8)
	assert.Equal(t, "PNG", string(png[1:4]))
}

func TestGenerateReport_SyncIdempotent(t *testing.T) {
	srv := newTestServer(t)

	_, first := postJSON(t, srv.URL+"/api/reports", reportBody())
	_, second := postJSON(t, srv.URL+"/api/reports", reportBody())

	var a, b struct {
		Data models.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(first, &a))
	require.NoError(t, json.Unmarshal(second, &b))
	assert.Equal(t, a.Data.ID, b.Data.ID)
}

func TestGenerateReport_Async(t *testing.T) {
	srv := newTestServer(t)

	body := reportBody()
	body["async"] = true

	resp, payload := postJSON(t, srv.URL+"/api/reports", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "body: %s", payload)

	var env struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &env))
	jobID := env.Data["job_id"]
	require.NotEmpty(t, jobID)

	// Poll until the job reaches a terminal state.
	deadline := time.Now().Add(10 * time.Second)
	var status models.JobStatus
	for {
		resp, payload = getJSON(t, srv.URL+"/api/jobs/"+jobID)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var jobEnv struct {
			Data models.JobStatus `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &jobEnv))
		status = jobEnv.Data
		if status.State.Terminal() {
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish: %+v", status)
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, models.JobComplete, status.State)
	assert.NotEmpty(t, status.ReportID)
}

func TestGenerateReport_BadRequest(t *testing.T) {
	srv := newTestServer(t)

	body := reportBody()
	delete(body, "symbol")

	resp, _ := postJSON(t, srv.URL+"/api/reports", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = reportBody()
	body["from"], body["to"] = body["to"], body["from"]
	resp, _ = postJSON(t, srv.URL+"/api/reports", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateReport_UnknownSymbol(t *testing.T) {
	srv := newTestServer(t)

	body := reportBody()
	body["symbol"] = "NOPE.US"

	resp, _ := postJSON(t, srv.URL+"/api/reports", body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetReport_Unknown(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := getJSON(t, srv.URL+"/api/reports/rpt-doesnotexist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobStatus_Unknown(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := getJSON(t, srv.URL+"/api/jobs/not-a-job")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProfiles_SaveAndGet(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/profiles", map[string]interface{}{
		"user_id": "alice",
		"profile": map[string]string{"risk": "moderate"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := getJSON(t, srv.URL+"/api/profiles/alice")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "moderate")

	resp, _ = getJSON(t, srv.URL+"/api/profiles/nobody")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPrices(t *testing.T) {
	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/api/prices?symbol=AAPL.US&days=10")
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var env struct {
		Data models.Series `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, "AAPL.US", env.Data.Symbol)
	assert.NotEmpty(t, env.Data.Bars)

	resp, _ = getJSON(t, srv.URL+"/api/prices?symbol=AAPL.US&days=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSystemStatus(t *testing.T) {
	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/api/system/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"environment":"test"`)
	assert.Contains(t, string(body), "uptime")
}
