package workload

import (
	"context"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/pgload/internal/pgload/configuration"
	"github.com/G-Research/pgload/internal/pgload/metrics"
)

// Executor runs a single statement. *connection.Manager satisfies it.
type Executor interface {
	Execute(ctx context.Context, query string, args ...interface{}) error
}

// TaskResult is the outcome of running one category against one cluster.
type TaskResult struct {
	Cluster   string        `json:"cluster"`
	Category  string        `json:"category"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Runner repeatedly executes randomly chosen templates of one query category until its deadline.
type Runner struct {
	cluster  string
	category configuration.QueryCategory
	executor Executor
	clock    clock.Clock
	rand     *rand.Rand
	metrics  *metrics.Metrics
	log      *log.Entry
}

type Option func(*Runner)

func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithRand sets the random source. The Runner takes ownership; it must not be shared.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Runner) { r.rand = rnd }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(logger *log.Entry) Option {
	return func(r *Runner) { r.log = logger }
}

func NewRunner(cluster string, category configuration.QueryCategory, executor Executor, opts ...Option) *Runner {
	r := &Runner{
		cluster:  cluster,
		category: category,
		executor: executor,
		clock:    clock.RealClock{},
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log: log.WithFields(log.Fields{
			"cluster":  cluster,
			"category": category.Name,
		}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes statements until duration has elapsed or ctx is cancelled. The deadline is
// only checked between iterations, so the final call and its pacing delay may finish after it.
// No call is started once the deadline has passed.
func (r *Runner) Run(ctx context.Context, duration time.Duration) TaskResult {
	result := TaskResult{Cluster: r.cluster, Category: r.category.Name}
	if len(r.category.Templates) == 0 {
		r.log.Warn("Category has no templates, nothing to run")
		return result
	}

	r.metrics.RunnerStarted()
	defer r.metrics.RunnerFinished()

	start := r.clock.Now()
	for r.clock.Since(start) < duration && ctx.Err() == nil {
		template := r.category.Templates[r.rand.Intn(len(r.category.Templates))]
		args := r.params(template.Params)

		callStart := r.clock.Now()
		err := r.executor.Execute(ctx, template.Sql, args...)
		r.metrics.RecordQuery(r.cluster, r.category.Name, r.clock.Since(callStart), err)
		if err == nil {
			result.Succeeded++
		} else {
			result.Failed++
		}

		r.clock.Sleep(r.delay())
	}
	result.Elapsed = r.clock.Since(start)

	r.log.WithFields(log.Fields{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"elapsed":   result.Elapsed,
	}).Debug("Runner finished")
	return result
}

func (r *Runner) params(specs []configuration.ParamSpec) []interface{} {
	if len(specs) == 0 {
		return nil
	}
	args := make([]interface{}, len(specs))
	for i, spec := range specs {
		args[i] = uniformInt64(r.rand, spec.Min, spec.Max)
	}
	return args
}

func (r *Runner) delay() time.Duration {
	p := r.category.Pacing
	return time.Duration(uniformInt64(r.rand, int64(p.Min), int64(p.Max)))
}

// uniformInt64 returns a uniformly distributed integer in [min, max].
func uniformInt64(rnd *rand.Rand, min, max int64) int64 {
	if max <= min {
		return min
	}
	span := max - min + 1
	if span > 0 {
		return min + rnd.Int63n(span)
	}
	// The range covers more than half of int64; rejection sampling accepts at least every other draw.
	for {
		if v := int64(rnd.Uint64()); v >= min && v <= max {
			return v
		}
	}
}
