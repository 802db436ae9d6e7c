package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/G-Research/pgload/internal/pgload/configuration"
	"github.com/G-Research/pgload/internal/pgload/orchestrator"
)

func TestAnalyzeCmd(t *testing.T) {
	server := monitorServer(t)

	out, err := execute(t, "analyze", "--monitor-url", server.URL+"/api/v1", "SELECT 1")

	require.NoError(t, err)
	assert.Contains(t, out, "Query: SELECT 1...")
	assert.Contains(t, out, `"cost": 12.5`)
}

func TestAnalyzeCmd_UsesConfiguredQueriesAndReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	out, err := execute(t, "analyze", "--monitor-url", server.URL+"/api/v1")

	assert.Error(t, err)
	for _, query := range configuration.DefaultAnalysisQueries() {
		assert.Contains(t, out, "Query: "+query[:20])
	}
}

func TestClustersCmd(t *testing.T) {
	server := monitorServer(t)

	out, err := execute(t, "clusters", "--metrics", "--monitor-url", server.URL+"/api/v1")

	require.NoError(t, err)
	assert.Contains(t, out, "   ├─ c1: Cluster One - healthy")
	assert.Contains(t, out, "Health of c1: healthy, score 90, 1 active alerts (0 critical)")
	assert.Contains(t, out, "   ├─ Connections: 5/100")
}

func TestClustersCmd_MonitorUnavailable(t *testing.T) {
	_, err := execute(t, "clusters", "--monitor-url", "http://127.0.0.1:1/api/v1")
	assert.Error(t, err)
}

func TestRootCmd_InvalidLogLevel(t *testing.T) {
	_, err := execute(t, "clusters", "--log-level", "loud")
	assert.Error(t, err)
}

func TestRunLoadTest(t *testing.T) {
	reportFile := filepath.Join(t.TempDir(), "result.yaml")
	config := &configuration.Config{
		Duration:   100 * time.Millisecond,
		Monitor:    configuration.MonitorConfig{Url: "http://127.0.0.1:1/api/v1", Timeout: time.Second},
		ReportFile: reportFile,
		Clusters: []configuration.ClusterConfig{
			{Id: "local", Driver: "sqlite", Dsn: ":memory:"},
		},
		Categories: []configuration.QueryCategory{
			{
				Name:      configuration.CategoryRead,
				Enabled:   true,
				Pacing:    configuration.PacingRange{Min: time.Millisecond, Max: 2 * time.Millisecond},
				Templates: []configuration.QueryTemplate{{Sql: "SELECT 1"}},
			},
		},
	}
	var out bytes.Buffer
	reg := prometheus.NewRegistry()

	err := runLoadTest(context.Background(), &out, config, reg, reg)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Monitoring service not accessible at http://127.0.0.1:1/api/v1")
	assert.Contains(t, out.String(), "   ├─ local (sqlite)")
	assert.Contains(t, out.String(), "Total queries executed: ")
	assert.Contains(t, out.String(), "No metrics available for local")

	report, err := orchestrator.ReadReport(reportFile)
	require.NoError(t, err)
	require.Len(t, report.Tasks, 1)
	assert.Greater(t, report.TotalQueries, int64(0))
	assert.Equal(t, report.TotalQueries, report.PerCluster["local"])
}

func TestRunLoadTest_MonitorReachable(t *testing.T) {
	server := monitorServer(t)
	config := &configuration.Config{
		Duration: 50 * time.Millisecond,
		Monitor:  configuration.MonitorConfig{Url: server.URL + "/api/v1", Timeout: time.Second},
		Clusters: []configuration.ClusterConfig{{Id: "c1", Driver: "sqlite", Dsn: ":memory:"}},
		Categories: []configuration.QueryCategory{
			{
				Name:      configuration.CategoryRead,
				Enabled:   true,
				Pacing:    configuration.PacingRange{Min: time.Millisecond, Max: 2 * time.Millisecond},
				Templates: []configuration.QueryTemplate{{Sql: "SELECT 1"}},
			},
		},
	}
	var out bytes.Buffer
	reg := prometheus.NewRegistry()

	err := runLoadTest(context.Background(), &out, config, reg, reg)

	require.NoError(t, err)
	assert.NotContains(t, out.String(), "Monitoring service not accessible")
	assert.Contains(t, out.String(), "Health of c1: healthy, score 90")
}

func TestRunLoadTest_Interrupted(t *testing.T) {
	config := &configuration.Config{
		Duration: time.Hour,
		Monitor:  configuration.MonitorConfig{Url: "http://127.0.0.1:1/api/v1", Timeout: time.Second},
		Clusters: []configuration.ClusterConfig{{Id: "local", Driver: "sqlite", Dsn: ":memory:"}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	var out bytes.Buffer
	reg := prometheus.NewRegistry()

	err := runLoadTest(ctx, &out, config, reg, reg)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out.String(), "Load test interrupted by user")
}

func execute(t *testing.T, args ...string) (string, error) {
	path := filepath.Join(t.TempDir(), "pgload.yaml")
	require.NoError(t, os.WriteFile(path, []byte("duration: 1s\n"), 0o600))

	var out bytes.Buffer
	root := RootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--config", path))
	err := root.Execute()
	return out.String(), err
}

func monitorServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/clusters", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"c1","name":"Cluster One","status":"healthy"}]`)
	})
	mux.HandleFunc("/api/v1/clusters/c1/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"cluster_id":"c1","status":"healthy","score":90,"active_alerts":1}`)
	})
	mux.HandleFunc("/api/v1/clusters/c1/metrics", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"connections_active":5,"connections_total":100}`)
	})
	mux.HandleFunc("/api/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"cost":12.5}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}
