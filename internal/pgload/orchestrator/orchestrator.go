package orchestrator

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/G-Research/pgload/internal/pgload/configuration"
	"github.com/G-Research/pgload/internal/pgload/connection"
	"github.com/G-Research/pgload/internal/pgload/metrics"
	"github.com/G-Research/pgload/internal/pgload/monitor"
	"github.com/G-Research/pgload/internal/pgload/workload"
)

// MonitorClient is the subset of the monitoring service used during a run.
type MonitorClient interface {
	Clusters(ctx context.Context) ([]monitor.ClusterSummary, error)
	Metrics(ctx context.Context, clusterId string) (monitor.Snapshot, error)
	Health(ctx context.Context, clusterId string) (monitor.Health, error)
	Analyze(ctx context.Context, query string) (monitor.Analysis, error)
}

type State int32

const (
	Initializing State = iota
	Running
	Draining
	Reporting
	Done
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Reporting:
		return "Reporting"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// task is one runner together with the connection it exclusively owns.
type task struct {
	manager *connection.Manager
	runner  *workload.Runner
}

// Orchestrator runs every enabled query category against every configured cluster for the
// configured duration, reporting progress from the monitoring service while the load runs.
type Orchestrator struct {
	cfg     *configuration.Config
	monitor MonitorClient
	dial    connection.Dialer
	clock   clock.WithTicker
	out     io.Writer
	metrics *metrics.Metrics
	seed    int64
	log     *log.Entry
	state   int32
}

type Option func(*Orchestrator)

func WithDialer(dial connection.Dialer) Option {
	return func(o *Orchestrator) { o.dial = dial }
}

func WithClock(c clock.WithTicker) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithOutput sets where progress and reports are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSeed makes workload randomisation reproducible. Overrides the configured seed.
func WithSeed(seed int64) Option {
	return func(o *Orchestrator) { o.seed = seed }
}

func New(cfg *configuration.Config, monitor MonitorClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		monitor: monitor,
		dial:    connection.Dial,
		clock:   clock.RealClock{},
		out:     os.Stdout,
		seed:    cfg.Seed,
		log:     log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	return State(atomic.LoadInt32(&o.state))
}

// Check reports an error unless load is currently being generated.
func (o *Orchestrator) Check() error {
	if state := o.State(); state != Running {
		return errors.Errorf("load test is %s", state)
	}
	return nil
}

func (o *Orchestrator) setState(s State) {
	atomic.StoreInt32(&o.state, int32(s))
	o.log.Infof("Load test is now %s", s)
}

// Run executes the load test.
//
// It performs the following steps:
//  1. Prints the initial cluster status and connects one manager per (cluster, category) task
//  2. Starts every runner, and a poller that prints progress and metrics every poll interval
//  3. Waits for the configured duration, then stops the poller and waits for runners to finish
//  4. Prints the final report, metrics, health and query analyses
//  5. Closes every connection
//
// If ctx is cancelled while the load is running, Run returns ctx.Err() straight away without
// waiting for runners or closing connections.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunId:    uuid.NewString(),
		Started:  o.clock.Now(),
		Duration: o.cfg.Duration,
	}
	o.log = log.WithField("runId", result.RunId)
	o.setState(Initializing)

	o.printHeader(ctx)
	tasks := o.createTasks()
	o.connect(ctx, tasks)

	o.setState(Running)
	start := o.clock.Now()
	results := make([]workload.TaskResult, len(tasks))
	g := errgroup.Group{}
	g.SetLimit(concurrencyLimit(len(tasks), len(o.cfg.Clusters)))
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			results[i] = t.runner.Run(ctx, o.cfg.Duration)
			return nil
		})
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		o.poll(pollCtx, start)
	}()

	select {
	case <-o.clock.After(o.cfg.Duration):
	case <-ctx.Done():
		stopPolling()
		<-pollDone
		return nil, ctx.Err()
	}

	o.setState(Draining)
	stopPolling()
	<-pollDone
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	result.Tasks = results

	o.setState(Reporting)
	o.report(ctx, result)

	if err := closeAll(ctx, tasks); err != nil {
		o.log.WithError(err).Warn("Failed to close connections")
	}
	o.setState(Done)
	return result, nil
}

func (o *Orchestrator) createTasks() []task {
	categories := o.cfg.EnabledCategories()
	tasks := make([]task, 0, len(o.cfg.Clusters)*len(categories))
	for _, cluster := range o.cfg.Clusters {
		for _, category := range categories {
			logger := o.log.WithFields(log.Fields{"cluster": cluster.Id, "category": category.Name})
			manager := connection.NewManager(cluster,
				connection.WithDialer(o.dial),
				connection.WithLogger(logger),
			)
			runner := workload.NewRunner(cluster.Id, category, manager,
				workload.WithClock(o.clock),
				workload.WithRand(o.newRand(len(tasks))),
				workload.WithMetrics(o.metrics),
				workload.WithLogger(logger),
			)
			tasks = append(tasks, task{manager: manager, runner: runner})
		}
	}
	return tasks
}

// connect makes one connection attempt per task in parallel. Failures leave the manager
// disconnected, and its runner then counts every call as failed.
func (o *Orchestrator) connect(ctx context.Context, tasks []task) {
	g := errgroup.Group{}
	for _, t := range tasks {
		manager := t.manager
		g.Go(func() error {
			_ = manager.Connect(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) newRand(i int) *rand.Rand {
	if o.seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
	}
	return rand.New(rand.NewSource(o.seed + int64(i)))
}

// poll prints progress and the current metrics of every cluster each poll interval until ctx is done.
func (o *Orchestrator) poll(ctx context.Context, start time.Time) {
	if o.cfg.PollInterval <= 0 {
		return
	}
	ticker := o.clock.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			fmt.Fprintf(o.out, "\nProgress: %ds / %ds\n", int(o.clock.Since(start).Seconds()), int(o.cfg.Duration.Seconds()))
			for _, cluster := range o.cfg.Clusters {
				snapshot, _ := o.monitor.Metrics(ctx, cluster.Id)
				monitor.RenderSnapshot(o.out, cluster.Id, snapshot)
			}
		}
	}
}

func closeAll(ctx context.Context, tasks []task) error {
	var result *multierror.Error
	for _, t := range tasks {
		if err := t.manager.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func concurrencyLimit(tasks, clusters int) int {
	limit := 3 * clusters
	if tasks > limit {
		limit = tasks
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}
