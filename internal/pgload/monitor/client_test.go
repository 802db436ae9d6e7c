package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/pgload/internal/common/logging"
	"github.com/G-Research/pgload/internal/pgload/metrics"
)

func TestClient_Clusters(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = io.WriteString(w, `[{"id":"prod-cluster-1","name":"Production 1","status":"healthy","extra":true}]`)
		},
	})

	clusters, err := newTestClient(server).Clusters(context.Background())

	require.NoError(t, err)
	expected := []ClusterSummary{{Id: "prod-cluster-1", Name: "Production 1", Status: "healthy"}}
	if diff := cmp.Diff(expected, clusters); diff != "" {
		t.Errorf("unexpected clusters (-want +got):\n%s", diff)
	}
}

func TestClient_ClustersFailureReturnsEmptyList(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})

	clusters, err := newTestClient(server).Clusters(context.Background())

	assert.Error(t, err)
	assert.NotNil(t, clusters)
	assert.Empty(t, clusters)
}

func TestClient_Metrics(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters/prod-cluster-1/metrics": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"connections_active": 12, "connections_total": 100, "cache_hit_ratio": 99.5}`)
		},
	})

	snapshot, err := newTestClient(server).Metrics(context.Background(), "prod-cluster-1")

	require.NoError(t, err)
	require.NotNil(t, snapshot.ConnectionsActive)
	assert.Equal(t, 12.0, *snapshot.ConnectionsActive)
	assert.Equal(t, 99.5, *snapshot.CacheHitRatio)
	assert.Nil(t, snapshot.LockWaits)
	assert.False(t, snapshot.IsEmpty())
}

func TestClient_MetricsServerErrorRendersNoMetrics(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters/c1/metrics": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		},
	})
	client := newTestClient(server)

	snapshot, err := client.Metrics(context.Background(), "c1")
	assert.Error(t, err)
	assert.True(t, snapshot.IsEmpty())

	var out bytes.Buffer
	client.DisplayMetrics(context.Background(), &out, "c1")
	assert.Equal(t, "No metrics available for c1\n", out.String())
}

func TestClient_MetricsUndecodableBody(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters/c1/metrics": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "not json")
		},
	})

	snapshot, err := newTestClient(server).Metrics(context.Background(), "c1")

	assert.Error(t, err)
	assert.Equal(t, Snapshot{}, snapshot)
}

func TestClient_MetricsDecodesFieldsIndependently(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters/c1/metrics": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{
				"connections_active": "12",
				"connections_total": 100,
				"cache_hit_ratio": "n/a",
				"lock_waits": null,
				"deadlock_count": {"total": 2},
				"replication_lag_ms": " 3.5 "
			}`)
		},
	})

	snapshot, err := newTestClient(server).Metrics(context.Background(), "c1")

	require.NoError(t, err)
	require.NotNil(t, snapshot.ConnectionsActive)
	assert.Equal(t, 12.0, *snapshot.ConnectionsActive)
	require.NotNil(t, snapshot.ConnectionsTotal)
	assert.Equal(t, 100.0, *snapshot.ConnectionsTotal)
	require.NotNil(t, snapshot.ReplicationLagMs)
	assert.Equal(t, 3.5, *snapshot.ReplicationLagMs)
	assert.Nil(t, snapshot.CacheHitRatio)
	assert.Nil(t, snapshot.LockWaits)
	assert.Nil(t, snapshot.DeadlockCount)
	assert.Nil(t, snapshot.TableBloatPct)

	var out bytes.Buffer
	RenderSnapshot(&out, "c1", snapshot)
	assert.Contains(t, out.String(), "   ├─ Connections: 12/100\n")
	assert.Contains(t, out.String(), "   ├─ Cache Hit Ratio: 0.00%\n")
}

func TestClient_EscapesClusterId(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(server.Close)

	_, err := newTestClient(server).Metrics(context.Background(), "a/b c")

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/clusters/a%2Fb%20c/metrics", gotPath)
}

func TestClient_Health(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters/c1/health": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"cluster_id":"c1","status":"degraded","score":70,"active_alerts":3,"critical_alerts":1}`)
		},
	})

	health, err := newTestClient(server).Health(context.Background(), "c1")

	require.NoError(t, err)
	assert.Equal(t, Health{ClusterId: "c1", Status: "degraded", Score: 70, ActiveAlerts: 3, CriticalAlerts: 1}, health)
}

func TestClient_HealthFailureIsUnknown(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters/c1/health": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})

	health, err := newTestClient(server).Health(context.Background(), "c1")

	require.Error(t, err)
	assert.Equal(t, StatusUnknown, health.Status)
	assert.Equal(t, err.Error(), health.Error)
	assert.Contains(t, health.Error, "503")
}

func TestClient_Analyze(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/analyze": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]string{"query": "SELECT 1"}, body)
			_, _ = io.WriteString(w, `{"cost":12.5}`)
		},
	})

	analysis, err := newTestClient(server).Analyze(context.Background(), "SELECT 1")

	require.NoError(t, err)
	assert.Equal(t, Analysis{"cost": json.Number("12.5")}, analysis)
}

func TestClient_AnalyzeKeepsNumbersExact(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/analyze": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"query_id":9007199254740993,"plan":{"rows":1e3,"cost":0.1}}`)
		},
	})

	analysis, err := newTestClient(server).Analyze(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.Equal(t, json.Number("9007199254740993"), analysis["query_id"])
	encoded, err := json.Marshal(analysis)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query_id":9007199254740993,"plan":{"rows":1e3,"cost":0.1}}`, string(encoded))
	assert.Contains(t, string(encoded), "9007199254740993")
}

func TestClient_AnalyzeFailureReturnsNil(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{})

	analysis, err := newTestClient(server).Analyze(context.Background(), "SELECT 1")

	assert.Error(t, err)
	assert.Nil(t, analysis)
}

func TestClient_Ping(t *testing.T) {
	var requested []string
	server := newServer(t, map[string]http.HandlerFunc{
		"/health": func(w http.ResponseWriter, r *http.Request) {
			requested = append(requested, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		},
	})
	assert.NoError(t, newTestClient(server).Ping(context.Background()))
	assert.NoError(t, NewClient(server.URL+"/api/v1/", time.Second, WithLogger(logging.NullEntry())).Ping(context.Background()))
	assert.Equal(t, []string{"/health", "/health"}, requested)

	down := newServer(t, map[string]http.HandlerFunc{})
	assert.Error(t, newTestClient(down).Ping(context.Background()))
}

func TestClient_TimeoutBoundsEachCall(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	clients := map[string]*Client{
		"configured timeout": NewClient(server.URL+"/api/v1", 50*time.Millisecond, WithLogger(logging.NullEntry())),
		"custom http client": NewClient(server.URL+"/api/v1", time.Hour,
			WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}), WithLogger(logging.NullEntry())),
	}
	for name, client := range clients {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			_, err := client.Clusters(context.Background())

			assert.Error(t, err)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestClient_UnreachableService(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/api/v1", time.Second, WithLogger(logging.NullEntry()))

	clusters, err := client.Clusters(context.Background())
	assert.Error(t, err)
	assert.Empty(t, clusters)

	health, err := client.Health(context.Background(), "c1")
	assert.Error(t, err)
	assert.Equal(t, StatusUnknown, health.Status)
	assert.NotEmpty(t, health.Error)
}

func TestClient_RecordsRequestMetrics(t *testing.T) {
	server := newServer(t, map[string]http.HandlerFunc{
		"/api/v1/clusters": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[]`)
		},
	})
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	client := NewClient(server.URL+"/api/v1", time.Second, WithMetrics(m), WithLogger(logging.NullEntry()))

	_, err = client.Clusters(context.Background())
	require.NoError(t, err)
	_, err = client.Metrics(context.Background(), "missing")
	require.Error(t, err)

	expected := `
# HELP pgload_monitor_requests_total Number of requests made to the monitoring service.
# TYPE pgload_monitor_requests_total counter
pgload_monitor_requests_total{endpoint="clusters",outcome="success"} 1
pgload_monitor_requests_total{endpoint="metrics",outcome="failure"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, bytes.NewBufferString(expected), "pgload_monitor_requests_total"))
}

func TestRenderSnapshot(t *testing.T) {
	active, total, ratio, lag := 12.0, 100.0, 99.456, 3.0
	var out bytes.Buffer

	RenderSnapshot(&out, "c1", Snapshot{
		ConnectionsActive: &active,
		ConnectionsTotal:  &total,
		CacheHitRatio:     &ratio,
		ReplicationLagMs:  &lag,
	})

	expected := "\nMetrics for c1:\n" +
		"   ├─ Connections: 12/100\n" +
		"   ├─ Cache Hit Ratio: 99.46%\n" +
		"   ├─ Transactions/sec: 0.00\n" +
		"   ├─ Lock Waits: 0\n" +
		"   ├─ Deadlocks: 0\n" +
		"   ├─ Replication Lag: 3ms\n" +
		"   └─ Table Bloat: 0.00%\n"
	assert.Equal(t, expected, out.String())
}

func TestRenderHealthAndClusters(t *testing.T) {
	var out bytes.Buffer
	RenderClusters(&out, []ClusterSummary{{Id: "c1", Name: "one", Status: "healthy"}})
	RenderHealth(&out, "c1", Health{Status: StatusUnknown, Error: "boom"})
	RenderHealth(&out, "c2", Health{Status: "healthy", Score: 95})

	assert.Equal(t,
		"   ├─ c1: one - healthy\n"+
			"   Health of c1: unknown (boom)\n"+
			"   Health of c2: healthy, score 95, 0 active alerts (0 critical)\n",
		out.String())
}

func newServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	for path, handler := range routes {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(server.URL+"/api/v1", time.Second, WithLogger(logging.NullEntry()))
}
