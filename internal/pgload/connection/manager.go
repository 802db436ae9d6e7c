package connection

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/pgload/internal/common/logging"
	"github.com/G-Research/pgload/internal/pgload/configuration"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	// Execution errors are logged truncated to this many characters.
	maxDiagnosticLength = 50
)

// ErrNotConnected is returned by Execute when the manager holds no connection.
var ErrNotConnected = errors.New("not connected")

// Manager owns at most one connection to one cluster. It is not safe for concurrent use;
// each Manager is driven by a single workload runner.
type Manager struct {
	cluster        configuration.ClusterConfig
	dial           Dialer
	connectTimeout time.Duration
	log            *log.Entry
	conn           Conn
}

type Option func(*Manager)

func WithDialer(dial Dialer) Option {
	return func(m *Manager) { m.dial = dial }
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = timeout }
}

func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) { m.log = logger }
}

func NewManager(cluster configuration.ClusterConfig, opts ...Option) *Manager {
	m := &Manager{
		cluster:        cluster,
		dial:           Dial,
		connectTimeout: DefaultConnectTimeout,
		log:            log.WithField("cluster", cluster.Id),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect makes a single attempt to establish the connection. On failure the error is
// logged, the manager stays disconnected and every later Execute is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	if m.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	conn, err := m.dial(dialCtx, m.cluster)
	if err != nil {
		m.log.WithError(err).Warnf("Failed to connect to %s", m.cluster.Id)
		return err
	}
	m.conn = conn
	m.log.Debugf("Connected to %s", m.cluster.Id)
	return nil
}

// Execute runs a single statement in autocommit mode. It returns ErrNotConnected without
// touching the network if no connection is held.
func (m *Manager) Execute(ctx context.Context, query string, args ...interface{}) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	err := m.conn.Exec(ctx, query, args...)
	if err != nil {
		code := SQLState(err)
		m.log.WithFields(log.Fields{
			"sqlstate": code,
			"class":    ErrorClass(code),
		}).Warnf("Query failed: %s", logging.TruncatedError(err, maxDiagnosticLength))
	}
	return err
}

// Close releases the connection if one is held. Calling Close more than once is safe.
func (m *Manager) Close(ctx context.Context) error {
	if m.conn == nil {
		return nil
	}
	conn := m.conn
	m.conn = nil
	if err := conn.Close(ctx); err != nil {
		return errors.Wrapf(err, "closing connection to %s", m.cluster.Id)
	}
	return nil
}

func (m *Manager) Connected() bool {
	return m.conn != nil
}

func (m *Manager) ClusterId() string {
	return m.cluster.Id
}
