package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/pgload/internal/pgload/metrics"
)

const (
	DefaultTimeout = 5 * time.Second

	endpointClusters = "clusters"
	endpointMetrics  = "metrics"
	endpointHealth   = "health"
	endpointAnalyze  = "analyze"
	endpointPing     = "ping"
)

// Client talks to the monitoring service. Every call makes a single request bounded by the
// client timeout. On any failure the call returns the empty value of its result type together
// with the error; callers that only want best-effort data may ignore the error.
type Client struct {
	baseUrl    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        *log.Entry
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its Timeout is left as configured by the caller.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.httpClient = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(client *Client) { client.metrics = m }
}

func WithLogger(logger *log.Entry) Option {
	return func(client *Client) { client.log = logger }
}

func NewClient(baseUrl string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseUrl:    strings.TrimRight(baseUrl, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.WithField("service", "monitor"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clusters returns the clusters known to the monitoring service, or an empty list.
func (c *Client) Clusters(ctx context.Context) ([]ClusterSummary, error) {
	var clusters []ClusterSummary
	err := c.do(ctx, endpointClusters, http.MethodGet, c.baseUrl+"/clusters", nil, &clusters)
	if err != nil {
		c.log.WithError(err).Warn("Failed to fetch clusters")
		return []ClusterSummary{}, err
	}
	if clusters == nil {
		clusters = []ClusterSummary{}
	}
	return clusters, nil
}

// Metrics returns the current metrics snapshot for a cluster, or an empty snapshot.
func (c *Client) Metrics(ctx context.Context, clusterId string) (Snapshot, error) {
	var snapshot Snapshot
	err := c.do(ctx, endpointMetrics, http.MethodGet, c.clusterUrl(clusterId, "metrics"), nil, &snapshot)
	if err != nil {
		c.log.WithError(err).Warnf("Failed to fetch metrics for %s", clusterId)
		return Snapshot{}, err
	}
	return snapshot, nil
}

// Health returns the health status of a cluster. On failure the status is "unknown" and carries the error text.
func (c *Client) Health(ctx context.Context, clusterId string) (Health, error) {
	var health Health
	err := c.do(ctx, endpointHealth, http.MethodGet, c.clusterUrl(clusterId, "health"), nil, &health)
	if err != nil {
		return Health{ClusterId: clusterId, Status: StatusUnknown, Error: err.Error()}, err
	}
	if health.Status == "" {
		health.Status = StatusUnknown
	}
	return health, nil
}

// Analyze submits a query to the analyzer and returns its response unchanged, or nil.
func (c *Client) Analyze(ctx context.Context, query string) (Analysis, error) {
	body, err := json.Marshal(struct {
		Query string `json:"query"`
	}{Query: query})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var analysis Analysis
	err = c.do(ctx, endpointAnalyze, http.MethodPost, c.baseUrl+"/analyze", body, &analysis)
	if err != nil {
		c.log.WithError(err).Warn("Failed to analyze query")
		return nil, err
	}
	return analysis, nil
}

// Ping checks that the health endpoint at the root of the service's host responds with 200.
func (c *Client) Ping(ctx context.Context) error {
	base, err := url.Parse(c.baseUrl + "/")
	if err != nil {
		return errors.Wrapf(err, "parsing monitor url %s", c.baseUrl)
	}
	target := base.ResolveReference(&url.URL{Path: "/health"})
	return c.do(ctx, endpointPing, http.MethodGet, target.String(), nil, nil)
}

func (c *Client) clusterUrl(clusterId string, resource string) string {
	return c.baseUrl + "/clusters/" + url.PathEscape(clusterId) + "/" + resource
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, body []byte, into interface{}) (err error) {
	defer func() { c.metrics.RecordMonitorRequest(endpoint, err) }()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrapf(err, "building request for %s", target)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.Errorf("%s %s: unexpected status %s", method, target, resp.Status)
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return errors.Wrapf(err, "decoding response from %s", target)
	}
	return nil
}
