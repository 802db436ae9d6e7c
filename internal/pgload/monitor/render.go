package monitor

import (
	"context"
	"fmt"
	"io"
)

// DisplayMetrics fetches the current snapshot for a cluster and renders it to w.
func (c *Client) DisplayMetrics(ctx context.Context, w io.Writer, clusterId string) {
	snapshot, _ := c.Metrics(ctx, clusterId)
	RenderSnapshot(w, clusterId, snapshot)
}

// RenderSnapshot writes a snapshot as an indented tree. Absent fields render as zero.
func RenderSnapshot(w io.Writer, clusterId string, s Snapshot) {
	if s.IsEmpty() {
		fmt.Fprintf(w, "No metrics available for %s\n", clusterId)
		return
	}
	fmt.Fprintf(w, "\nMetrics for %s:\n", clusterId)
	fmt.Fprintf(w, "   ├─ Connections: %.0f/%.0f\n", valueOrZero(s.ConnectionsActive), valueOrZero(s.ConnectionsTotal))
	fmt.Fprintf(w, "   ├─ Cache Hit Ratio: %.2f%%\n", valueOrZero(s.CacheHitRatio))
	fmt.Fprintf(w, "   ├─ Transactions/sec: %.2f\n", valueOrZero(s.TransactionsPerSec))
	fmt.Fprintf(w, "   ├─ Lock Waits: %.0f\n", valueOrZero(s.LockWaits))
	fmt.Fprintf(w, "   ├─ Deadlocks: %.0f\n", valueOrZero(s.DeadlockCount))
	fmt.Fprintf(w, "   ├─ Replication Lag: %.0fms\n", valueOrZero(s.ReplicationLagMs))
	fmt.Fprintf(w, "   └─ Table Bloat: %.2f%%\n", valueOrZero(s.TableBloatPct))
}

// RenderHealth writes a one line health summary for a cluster.
func RenderHealth(w io.Writer, clusterId string, h Health) {
	if h.Error != "" {
		fmt.Fprintf(w, "   Health of %s: %s (%s)\n", clusterId, h.Status, h.Error)
		return
	}
	fmt.Fprintf(w, "   Health of %s: %s, score %d, %d active alerts (%d critical)\n",
		clusterId, h.Status, h.Score, h.ActiveAlerts, h.CriticalAlerts)
}

// RenderClusters writes the cluster list as reported by the service.
func RenderClusters(w io.Writer, clusters []ClusterSummary) {
	for _, cluster := range clusters {
		fmt.Fprintf(w, "   ├─ %s: %s - %s\n", cluster.Id, cluster.Name, cluster.Status)
	}
}
