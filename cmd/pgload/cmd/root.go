package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/pgload/internal/common/logging"
	"github.com/G-Research/pgload/internal/pgload/configuration"
)

const (
	configFlag    = "config"
	logLevelFlag  = "log-level"
	logFormatFlag = "log-format"
	monitorFlag   = "monitor-url"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	v := configuration.NewViper()

	cmd := &cobra.Command{
		Use:   "pgload",
		Short: "pgload generates mixed workloads against PostgreSQL clusters while watching them through the monitoring service.",
		Long: `pgload generates mixed workloads against PostgreSQL clusters while watching them through the monitoring service.

Clusters, query categories and timings are read from a config file. If --config is not
provided, $HOME/.pgload.yaml is used when present and built-in defaults otherwise.
Any scalar key may also be set through the environment as PGLOAD_<KEY>, and DB_PASSWORD
overrides the password of every cluster.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := cmd.Flags().GetString(logLevelFlag)
			if err != nil {
				return err
			}
			format, err := cmd.Flags().GetString(logFormatFlag)
			if err != nil {
				return err
			}
			return logging.Configure(logging.Config{Level: level, Format: format})
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(configFlag, "", "config file (default is $HOME/.pgload.yaml)")
	flags.String(logLevelFlag, "info", "log level, e.g. debug, info, warn")
	flags.String(logFormatFlag, logging.FormatText, "log format, either text or json")
	flags.String(monitorFlag, configuration.DefaultMonitorUrl, "base url of the monitoring service api")
	bindFlags(v, flags, map[string]string{monitorFlag: "monitor.url"})

	cmd.AddCommand(
		runCmd(v),
		clustersCmd(v),
		analyzeCmd(v),
	)
	return cmd
}

// loadConfig reads the config file named by --config into v and returns the validated configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*configuration.Config, error) {
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, err
	}
	if err := configuration.ReadConfigFile(v, path); err != nil {
		return nil, err
	}
	return configuration.Load(v)
}

// bindFlags binds each named flag to a viper key. A flag that is not set on the command line leaves
// the value from the environment, config file or defaults in place.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keysByFlag map[string]string) {
	for name, key := range keysByFlag {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}
