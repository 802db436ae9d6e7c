package configuration

import "time"

const (
	CategoryRead      = "read"
	CategoryWrite     = "write"
	CategoryAnalytics = "analytics"
	CategorySlow      = "slow"

	DefaultMonitorUrl = "http://localhost:8080/api/v1"
	DefaultPassword   = "changeme"
)

// Default returns the built-in configuration: three pgbench clusters reachable on
// consecutive local ports and the pgbench read/write/analytics workload.
func Default() *Config {
	return &Config{
		Duration:     60 * time.Second,
		PollInterval: 10 * time.Second,
		Monitor: MonitorConfig{
			Url:     DefaultMonitorUrl,
			Timeout: 5 * time.Second,
		},
		Clusters: []ClusterConfig{
			defaultCluster("prod-cluster-1", 5432),
			defaultCluster("prod-cluster-2", 5433),
			defaultCluster("dev-cluster-1", 5434),
		},
		Categories:      DefaultCategories(),
		AnalysisQueries: DefaultAnalysisQueries(),
	}
}

func defaultCluster(id string, port int) ClusterConfig {
	return ClusterConfig{
		Id:       id,
		Host:     "localhost",
		Port:     port,
		User:     "postgres",
		Password: DefaultPassword,
		Database: "postgres",
		SSLMode:  "disable",
		Driver:   DriverPgx,
	}
}

var (
	accountId = ParamSpec{Name: "aid", Min: 1, Max: 1000}
	tellerId  = ParamSpec{Name: "tid", Min: 1, Max: 10}
	branchId  = ParamSpec{Name: "bid", Min: 1, Max: 10}
	delta     = ParamSpec{Name: "delta", Min: -100, Max: 100}
)

// DefaultCategories returns the pgbench workload categories. The slow category is disabled by default.
func DefaultCategories() []QueryCategory {
	return []QueryCategory{
		{
			Name:    CategoryRead,
			Enabled: true,
			Pacing:  PacingRange{Min: 10 * time.Millisecond, Max: 100 * time.Millisecond},
			Templates: []QueryTemplate{
				{Sql: "SELECT * FROM pgbench_accounts WHERE aid = $1", Params: []ParamSpec{accountId}},
				{Sql: "SELECT * FROM pgbench_tellers WHERE tid = $1", Params: []ParamSpec{accountId}},
				{Sql: "SELECT * FROM pgbench_branches WHERE bid = $1", Params: []ParamSpec{accountId}},
			},
		},
		{
			Name:    CategoryWrite,
			Enabled: true,
			Pacing:  PacingRange{Min: 50 * time.Millisecond, Max: 200 * time.Millisecond},
			Templates: []QueryTemplate{
				{
					Sql:    "UPDATE pgbench_accounts SET abalance = abalance + $1 WHERE aid = $2",
					Params: []ParamSpec{delta, accountId},
				},
				{
					Sql:    "INSERT INTO pgbench_history (tid, bid, aid, delta, mtime) VALUES ($1, $2, $3, $4, NOW())",
					Params: []ParamSpec{tellerId, branchId, accountId, delta},
				},
			},
		},
		{
			Name:    CategoryAnalytics,
			Enabled: true,
			Pacing:  PacingRange{Min: time.Second, Max: 3 * time.Second},
			Templates: []QueryTemplate{
				{
					Sql: `SELECT b.bid, COUNT(a.aid) AS accounts,
       AVG(a.abalance) AS avg_balance,
       SUM(a.abalance) AS total_balance
FROM pgbench_accounts a
JOIN pgbench_branches b ON a.bid = b.bid
GROUP BY b.bid`,
				},
				{
					Sql: `SELECT COUNT(*) AS total_accounts,
       SUM(CASE WHEN abalance > 0 THEN 1 ELSE 0 END) AS positive,
       SUM(CASE WHEN abalance < 0 THEN 1 ELSE 0 END) AS negative
FROM pgbench_accounts`,
				},
			},
		},
		{
			Name:    CategorySlow,
			Enabled: false,
			Pacing:  PacingRange{Min: 2 * time.Second, Max: 5 * time.Second},
			Templates: []QueryTemplate{
				{Sql: "SELECT * FROM pgbench_accounts ORDER BY abalance LIMIT 100"},
				{Sql: "SELECT DISTINCT abalance FROM pgbench_accounts ORDER BY abalance"},
			},
		},
	}
}

// DefaultAnalysisQueries returns the queries sent to the monitoring service's analyzer after a run.
func DefaultAnalysisQueries() []string {
	return []string{
		"SELECT * FROM pgbench_accounts WHERE aid = 1;",
		"SELECT COUNT(*) FROM pgbench_accounts WHERE abalance > 0;",
		"SELECT a.*, b.* FROM pgbench_accounts a JOIN pgbench_branches b ON a.bid = b.bid WHERE a.aid < 100;",
	}
}
