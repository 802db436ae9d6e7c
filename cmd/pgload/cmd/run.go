package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/pgload/internal/common/app"
	"github.com/G-Research/pgload/internal/common/health"
	"github.com/G-Research/pgload/internal/common/logging"
	"github.com/G-Research/pgload/internal/pgload/configuration"
	"github.com/G-Research/pgload/internal/pgload/metrics"
	"github.com/G-Research/pgload/internal/pgload/monitor"
	"github.com/G-Research/pgload/internal/pgload/orchestrator"
)

const pingTimeout = 2 * time.Second

// Run the load test against every configured cluster, printing progress and a final report.
func runCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the load test.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			return runLoadTest(ctx, cmd.OutOrStdout(), config, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		},
	}

	defaults := configuration.Default()
	flags := cmd.Flags()
	flags.Duration("duration", defaults.Duration, "how long to generate load for")
	flags.Duration("poll-interval", defaults.PollInterval, "interval between progress reports")
	flags.Int("metrics-port", defaults.Metrics.Port, "port to serve prometheus metrics on, 0 disables")
	flags.String("report-file", "", "write the run result as yaml to this file")
	flags.Int64("seed", 0, "seed for workload randomisation, 0 seeds from the clock")
	bindFlags(v, flags, map[string]string{
		"duration":      "duration",
		"poll-interval": "pollInterval",
		"metrics-port":  "metrics.port",
		"report-file":   "reportFile",
		"seed":          "seed",
	})

	return cmd
}

func runLoadTest(ctx context.Context, out io.Writer, config *configuration.Config, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	m, err := metrics.New(reg)
	if err != nil {
		return errors.Wrap(err, "registering metrics")
	}
	client := monitor.NewClient(config.Monitor.Url, config.Monitor.Timeout, monitor.WithMetrics(m))
	o := orchestrator.New(config, client, orchestrator.WithOutput(out), orchestrator.WithMetrics(m))

	if config.Metrics.Port > 0 {
		if err := logging.AddPrometheusHook(log.StandardLogger()); err != nil {
			return err
		}
		checker := health.NewMultiChecker(o, health.CheckerFunc(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			return client.Ping(pingCtx)
		}))
		go func() {
			if err := metrics.Serve(ctx, config.Metrics.Port, gatherer, checker); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	printPreamble(ctx, out, client, config)

	result, err := o.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "\n\nLoad test interrupted by user")
		return err
	}
	if err != nil {
		return err
	}

	if config.ReportFile != "" {
		if err := orchestrator.WriteReport(config.ReportFile, result); err != nil {
			return err
		}
		log.Infof("Run result written to %s", config.ReportFile)
	}
	return nil
}

func printPreamble(ctx context.Context, out io.Writer, client *monitor.Client, config *configuration.Config) {
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "PostgreSQL Load Generator & Monitor")
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		log.WithError(err).Debug("Monitoring service health check failed")
		fmt.Fprintf(out, "Monitoring service not accessible at %s, metrics will be unavailable.\n\n", config.Monitor.Url)
	}

	fmt.Fprintln(out, "Target clusters:")
	for _, cluster := range config.Clusters {
		if cluster.Dsn != "" {
			fmt.Fprintf(out, "   ├─ %s (%s)\n", cluster.Id, cluster.DriverName())
			continue
		}
		fmt.Fprintf(out, "   ├─ %s at %s:%d (%s)\n", cluster.Id, cluster.Host, cluster.Port, cluster.DriverName())
	}
	fmt.Fprintln(out)
}
