package orchestrator

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/pgload/internal/pgload/workload"
)

// RunResult aggregates the outcome of every task of a run.
type RunResult struct {
	RunId   string
	Started time.Time
	// Configured duration of the run, used as the throughput denominator.
	Duration time.Duration
	Tasks    []workload.TaskResult
}

// Total is the number of successful statements across all tasks.
func (r *RunResult) Total() int64 {
	var total int64
	for _, task := range r.Tasks {
		total += task.Succeeded
	}
	return total
}

// Failed is the number of failed statements across all tasks.
func (r *RunResult) Failed() int64 {
	var failed int64
	for _, task := range r.Tasks {
		failed += task.Failed
	}
	return failed
}

// PerCluster sums successful statements by cluster.
func (r *RunResult) PerCluster() map[string]int64 {
	perCluster := make(map[string]int64)
	for _, task := range r.Tasks {
		perCluster[task.Cluster] += task.Succeeded
	}
	return perCluster
}

// Throughput is the average number of successful statements per second of configured duration.
func (r *RunResult) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Total()) / r.Duration.Seconds()
}

// ClusterIds returns the ids of the clusters that ran at least one task, sorted.
func (r *RunResult) ClusterIds() []string {
	ids := maps.Keys(r.PerCluster())
	slices.Sort(ids)
	return ids
}
