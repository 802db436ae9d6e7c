package monitor

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const StatusUnknown = "unknown"

// ClusterSummary is one entry of the monitoring service's cluster list.
type ClusterSummary struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Snapshot is the set of metrics reported for one cluster at one instant.
// Fields the service omitted are nil; renderers substitute zero.
type Snapshot struct {
	ConnectionsActive  *float64 `json:"connections_active,omitempty"`
	ConnectionsTotal   *float64 `json:"connections_total,omitempty"`
	CacheHitRatio      *float64 `json:"cache_hit_ratio,omitempty"`
	TransactionsPerSec *float64 `json:"transactions_per_sec,omitempty"`
	LockWaits          *float64 `json:"lock_waits,omitempty"`
	DeadlockCount      *float64 `json:"deadlock_count,omitempty"`
	ReplicationLagMs   *float64 `json:"replication_lag_ms,omitempty"`
	TableBloatPct      *float64 `json:"table_bloat_pct,omitempty"`
}

// IsEmpty reports whether no field was present in the response.
func (s Snapshot) IsEmpty() bool {
	for _, f := range s.fields() {
		if f != nil {
			return false
		}
	}
	return true
}

// UnmarshalJSON decodes each field on its own. A field holding a number or a numeric string is
// kept; a field of any other form is treated as absent rather than failing the whole snapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	*s = Snapshot{
		ConnectionsActive:  parseNumber(raw["connections_active"]),
		ConnectionsTotal:   parseNumber(raw["connections_total"]),
		CacheHitRatio:      parseNumber(raw["cache_hit_ratio"]),
		TransactionsPerSec: parseNumber(raw["transactions_per_sec"]),
		LockWaits:          parseNumber(raw["lock_waits"]),
		DeadlockCount:      parseNumber(raw["deadlock_count"]),
		ReplicationLagMs:   parseNumber(raw["replication_lag_ms"]),
		TableBloatPct:      parseNumber(raw["table_bloat_pct"]),
	}
	return nil
}

func parseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return nil
	}
	return &f
}

func (s Snapshot) fields() []*float64 {
	return []*float64{
		s.ConnectionsActive,
		s.ConnectionsTotal,
		s.CacheHitRatio,
		s.TransactionsPerSec,
		s.LockWaits,
		s.DeadlockCount,
		s.ReplicationLagMs,
		s.TableBloatPct,
	}
}

// Health is the health status the monitoring service computes for a cluster.
// When the status could not be fetched, Status is "unknown" and Error holds the reason.
type Health struct {
	ClusterId      string `json:"cluster_id,omitempty"`
	Status         string `json:"status"`
	Score          int    `json:"score,omitempty"`
	ActiveAlerts   int    `json:"active_alerts,omitempty"`
	CriticalAlerts int    `json:"critical_alerts,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Analysis is the analyzer's response, passed through as decoded. Numbers are kept as
// json.Number so they print exactly as the service sent them.
type Analysis map[string]interface{}

func (a *Analysis) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var decoded map[string]interface{}
	if err := dec.Decode(&decoded); err != nil {
		return errors.WithStack(err)
	}
	*a = decoded
	return nil
}

func valueOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
