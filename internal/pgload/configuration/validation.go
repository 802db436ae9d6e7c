package configuration

import (
	"database/sql"
	"net/url"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Validate checks the configuration and returns every problem found, aggregated into a single error.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Duration <= 0 {
		result = multierror.Append(result, errors.Errorf("duration must be positive, got %s", c.Duration))
	}
	if c.PollInterval <= 0 {
		result = multierror.Append(result, errors.Errorf("pollInterval must be positive, got %s", c.PollInterval))
	}
	if c.Monitor.Timeout <= 0 {
		result = multierror.Append(result, errors.Errorf("monitor.timeout must be positive, got %s", c.Monitor.Timeout))
	}
	if u, err := url.Parse(c.Monitor.Url); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, errors.Errorf("monitor.url %q is not an absolute url", c.Monitor.Url))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		result = multierror.Append(result, errors.Errorf("metrics.port %d is out of range", c.Metrics.Port))
	}

	if len(c.Clusters) == 0 {
		result = multierror.Append(result, errors.New("at least one cluster must be configured"))
	}
	seenClusters := map[string]bool{}
	for i, cluster := range c.Clusters {
		if cluster.Id == "" {
			result = multierror.Append(result, errors.Errorf("cluster %d: id is required", i))
			continue
		}
		if seenClusters[cluster.Id] {
			result = multierror.Append(result, errors.Errorf("cluster %s: duplicate id", cluster.Id))
		}
		seenClusters[cluster.Id] = true
		if err := cluster.validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if len(c.EnabledCategories()) == 0 {
		result = multierror.Append(result, errors.New("at least one query category must be enabled"))
	}
	seenCategories := map[string]bool{}
	for i, category := range c.Categories {
		if category.Name == "" {
			result = multierror.Append(result, errors.Errorf("category %d: name is required", i))
			continue
		}
		if seenCategories[category.Name] {
			result = multierror.Append(result, errors.Errorf("category %s: duplicate name", category.Name))
		}
		seenCategories[category.Name] = true
		if err := category.validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func (c ClusterConfig) validate() error {
	var result *multierror.Error
	driver := c.DriverName()
	if driver != DriverPgx && driver != DriverPostgres && !slices.Contains(sql.Drivers(), driver) {
		result = multierror.Append(result, errors.Errorf("cluster %s: unknown driver %q", c.Id, driver))
	}
	if c.Dsn != "" {
		return result.ErrorOrNil()
	}
	if c.Host == "" {
		result = multierror.Append(result, errors.Errorf("cluster %s: host is required", c.Id))
	}
	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, errors.Errorf("cluster %s: invalid port %d", c.Id, c.Port))
	}
	if c.User == "" {
		result = multierror.Append(result, errors.Errorf("cluster %s: user is required", c.Id))
	}
	if c.Database == "" {
		result = multierror.Append(result, errors.Errorf("cluster %s: database is required", c.Id))
	}
	return result.ErrorOrNil()
}

func (q QueryCategory) validate() error {
	var result *multierror.Error
	if q.Pacing.Min < 0 {
		result = multierror.Append(result, errors.Errorf("category %s: pacing min must not be negative", q.Name))
	}
	if q.Pacing.Max < q.Pacing.Min {
		result = multierror.Append(result, errors.Errorf("category %s: pacing max %s is less than min %s", q.Name, q.Pacing.Max, q.Pacing.Min))
	}
	if q.Enabled && len(q.Templates) == 0 {
		result = multierror.Append(result, errors.Errorf("category %s: at least one template is required", q.Name))
	}
	for i, template := range q.Templates {
		if template.Sql == "" {
			result = multierror.Append(result, errors.Errorf("category %s: template %d has no sql", q.Name, i))
		}
		for _, param := range template.Params {
			if param.Max < param.Min {
				result = multierror.Append(result, errors.Errorf("category %s: template %d parameter %s has max < min", q.Name, i, param.Name))
			}
		}
	}
	return result.ErrorOrNil()
}
