package configuration

import (
	"fmt"
	"time"
)

const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// Config is the complete configuration of a load test run. It is built once at
// startup and passed by pointer to the components that need it; nothing mutates
// it afterwards.
type Config struct {
	// Total wall time during which workload runners are started.
	Duration time.Duration
	// Interval between progress reports and metrics snapshots.
	PollInterval time.Duration
	Monitor      MonitorConfig
	Metrics      MetricsConfig
	Clusters     []ClusterConfig
	Categories   []QueryCategory
	// Queries submitted to the monitoring service for analysis once the run completes.
	AnalysisQueries []string
	// If set, the run result is written to this path as yaml.
	ReportFile string
	// Seed for workload randomisation. Zero means seed from the wall clock.
	Seed int64
}

type MonitorConfig struct {
	// Base url of the monitoring service api, e.g. http://localhost:8080/api/v1
	Url     string
	Timeout time.Duration
}

type MetricsConfig struct {
	// Port on which prometheus metrics are served. Zero disables the endpoint.
	Port int
}

// ClusterConfig holds the connection parameters of a single database cluster.
type ClusterConfig struct {
	Id       string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Client library used to connect. One of pgx (default) or the name of a database/sql driver.
	Driver string
	// Optional verbatim data source name. Overrides the fields above when set.
	Dsn string
}

// QueryCategory is a named group of query templates sharing a pacing profile.
type QueryCategory struct {
	Name      string
	Enabled   bool
	Pacing    PacingRange
	Templates []QueryTemplate
}

// QueryTemplate is a parameterised statement. Params lists, in placeholder order,
// the bounded random integers substituted for $1, $2, ...
type QueryTemplate struct {
	Sql    string
	Params []ParamSpec
}

// ParamSpec describes one random integer parameter drawn uniformly from [Min, Max].
type ParamSpec struct {
	Name string
	Min  int64
	Max  int64
}

// PacingRange is the interval from which the delay between two calls of a runner is drawn.
type PacingRange struct {
	Min time.Duration
	Max time.Duration
}

func (p PacingRange) String() string {
	return fmt.Sprintf("%s..%s", p.Min, p.Max)
}

// EnabledCategories returns the categories for which runners are started.
func (c *Config) EnabledCategories() []QueryCategory {
	enabled := make([]QueryCategory, 0, len(c.Categories))
	for _, category := range c.Categories {
		if category.Enabled {
			enabled = append(enabled, category)
		}
	}
	return enabled
}

// GetCluster returns the configuration of the cluster with the given id.
func (c *Config) GetCluster(id string) (ClusterConfig, bool) {
	for _, cluster := range c.Clusters {
		if cluster.Id == id {
			return cluster, true
		}
	}
	return ClusterConfig{}, false
}

// DriverName returns the client library used for this cluster, defaulting to pgx.
func (c ClusterConfig) DriverName() string {
	if c.Driver == "" {
		return DriverPgx
	}
	return c.Driver
}
