package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/pgload/internal/pgload/monitor"
)

// List the clusters known to the monitoring service together with their health,
// and optionally their current metrics.
func clustersCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Show clusters known to the monitoring service.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			showMetrics, err := cmd.Flags().GetBool("metrics")
			if err != nil {
				return err
			}

			client := monitor.NewClient(config.Monitor.Url, config.Monitor.Timeout)
			clusters, err := client.Clusters(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(clusters) == 0 {
				fmt.Fprintln(out, "No clusters registered")
				return nil
			}
			fmt.Fprintln(out, "Clusters:")
			monitor.RenderClusters(out, clusters)
			fmt.Fprintln(out)
			for _, cluster := range clusters {
				health, _ := client.Health(cmd.Context(), cluster.Id)
				monitor.RenderHealth(out, cluster.Id, health)
				if showMetrics {
					client.DisplayMetrics(cmd.Context(), out, cluster.Id)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("metrics", false, "also show current metrics for every cluster")
	return cmd
}
