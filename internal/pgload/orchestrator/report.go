package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/G-Research/pgload/internal/pgload/monitor"
)

const (
	separator = "============================================================"
	// Queries are echoed in the analysis section truncated to this many characters.
	maxQueryEcho = 60
)

func (o *Orchestrator) printHeader(ctx context.Context) {
	fmt.Fprintln(o.out, "Starting load test...")
	fmt.Fprintf(o.out, "Duration: %s\n", o.cfg.Duration)
	fmt.Fprintf(o.out, "Target clusters: %d\n\n", len(o.cfg.Clusters))

	fmt.Fprintln(o.out, "Initial Cluster Status:")
	clusters, _ := o.monitor.Clusters(ctx)
	monitor.RenderClusters(o.out, clusters)
	fmt.Fprintln(o.out)
}

func (o *Orchestrator) report(ctx context.Context, result *RunResult) {
	fmt.Fprintf(o.out, "\n%s\nLoad Test Complete!\n%s\n", separator, separator)
	fmt.Fprintf(o.out, "Total queries executed: %d\n", result.Total())
	fmt.Fprintf(o.out, "Failed queries: %d\n", result.Failed())
	fmt.Fprintf(o.out, "Average QPS: %.2f\n\n", result.Throughput())

	perCluster := result.PerCluster()
	fmt.Fprintln(o.out, "Queries per cluster:")
	for _, id := range result.ClusterIds() {
		fmt.Fprintf(o.out, "   ├─ %s: %d\n", id, perCluster[id])
	}
	fmt.Fprintln(o.out, "Queries per task:")
	for _, task := range result.Tasks {
		fmt.Fprintf(o.out, "   ├─ %s/%s: %d succeeded, %d failed\n", task.Cluster, task.Category, task.Succeeded, task.Failed)
	}
	fmt.Fprintln(o.out)

	fmt.Fprintln(o.out, "Final Metrics:")
	for _, cluster := range o.cfg.Clusters {
		snapshot, _ := o.monitor.Metrics(ctx, cluster.Id)
		monitor.RenderSnapshot(o.out, cluster.Id, snapshot)
		health, _ := o.monitor.Health(ctx, cluster.Id)
		monitor.RenderHealth(o.out, cluster.Id, health)
	}

	if len(o.cfg.AnalysisQueries) == 0 {
		return
	}
	fmt.Fprintln(o.out, "\nTesting Query Analysis:")
	for _, query := range o.cfg.AnalysisQueries {
		analysis, _ := o.monitor.Analyze(ctx, query)
		PrintAnalysis(o.out, query, analysis)
	}
}

// PrintAnalysis writes a query and, when present, the analyzer's response as indented json.
func PrintAnalysis(w io.Writer, query string, analysis monitor.Analysis) {
	fmt.Fprintf(w, "\n   Query: %s...\n", truncate(query, maxQueryEcho))
	if len(analysis) == 0 {
		return
	}
	encoded, err := json.MarshalIndent(analysis, "", "      ")
	if err != nil {
		fmt.Fprintf(w, "   └─ Analysis: %v\n", analysis)
		return
	}
	fmt.Fprintf(w, "   └─ Analysis: %s\n", encoded)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Report is the on-disk form of a RunResult.
type Report struct {
	RunId         string           `json:"runId"`
	Started       time.Time        `json:"started"`
	Duration      string           `json:"duration"`
	TotalQueries  int64            `json:"totalQueries"`
	FailedQueries int64            `json:"failedQueries"`
	Throughput    float64          `json:"throughput"`
	PerCluster    map[string]int64 `json:"perCluster"`
	Tasks         []TaskReport     `json:"tasks"`
}

type TaskReport struct {
	Cluster   string `json:"cluster"`
	Category  string `json:"category"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Elapsed   string `json:"elapsed"`
}

func NewReport(result *RunResult) Report {
	tasks := make([]TaskReport, len(result.Tasks))
	for i, task := range result.Tasks {
		tasks[i] = TaskReport{
			Cluster:   task.Cluster,
			Category:  task.Category,
			Succeeded: task.Succeeded,
			Failed:    task.Failed,
			Elapsed:   task.Elapsed.String(),
		}
	}
	return Report{
		RunId:         result.RunId,
		Started:       result.Started,
		Duration:      result.Duration.String(),
		TotalQueries:  result.Total(),
		FailedQueries: result.Failed(),
		Throughput:    result.Throughput(),
		PerCluster:    result.PerCluster(),
		Tasks:         tasks,
	}
}

// WriteReport writes the result to path as yaml, replacing any existing file.
func WriteReport(path string, result *RunResult) error {
	data, err := yaml.Marshal(NewReport(result))
	if err != nil {
		return errors.Wrap(err, "marshalling report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing report to %s", path)
	}
	return nil
}

// ReadReport reads a report previously written by WriteReport.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, errors.Wrapf(err, "reading report from %s", path)
	}
	var report Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return Report{}, errors.Wrapf(err, "parsing report %s", path)
	}
	return report, nil
}
