package cmd

import (
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/pgload/internal/pgload/monitor"
	"github.com/G-Research/pgload/internal/pgload/orchestrator"
)

// Submit queries to the monitoring service's analyzer and print its responses.
// Without arguments the configured analysis queries are used.
func analyzeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [query]...",
		Short: "Analyze queries with the monitoring service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			queries := args
			if len(queries) == 0 {
				queries = config.AnalysisQueries
			}

			client := monitor.NewClient(config.Monitor.Url, config.Monitor.Timeout)
			var result *multierror.Error
			for _, query := range queries {
				analysis, err := client.Analyze(cmd.Context(), query)
				if err != nil {
					result = multierror.Append(result, err)
				}
				orchestrator.PrintAnalysis(cmd.OutOrStdout(), query, analysis)
			}
			return result.ErrorOrNil()
		},
	}
	return cmd
}
