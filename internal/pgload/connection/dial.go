package connection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/G-Research/pgload/internal/pgload/configuration"
)

// Conn is a single live database session.
type Conn interface {
	// Exec runs one statement in autocommit mode, discarding any rows.
	Exec(ctx context.Context, query string, args ...interface{}) error
	Close(ctx context.Context) error
}

// Dialer opens a Conn for the given cluster.
type Dialer func(ctx context.Context, cluster configuration.ClusterConfig) (Conn, error)

// Dial opens a connection using the client library configured for the cluster.
func Dial(ctx context.Context, cluster configuration.ClusterConfig) (Conn, error) {
	if cluster.DriverName() == configuration.DriverPgx {
		return DialPgx(ctx, cluster)
	}
	return DialSQL(ctx, cluster)
}

// DialPgx opens a native pgx connection.
func DialPgx(ctx context.Context, cluster configuration.ClusterConfig) (Conn, error) {
	conn, err := pgx.Connect(ctx, ConnectionString(cluster))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to cluster %s", cluster.Id)
	}
	return &pgxConn{conn: conn}, nil
}

// DialSQL opens a database/sql handle using the driver named in the cluster config,
// restricted to a single underlying session.
func DialSQL(ctx context.Context, cluster configuration.ClusterConfig) (Conn, error) {
	db, err := sql.Open(cluster.DriverName(), ConnectionString(cluster))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s connection to cluster %s", cluster.DriverName(), cluster.Id)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "connecting to cluster %s", cluster.Id)
	}
	return &sqlConn{db: db}, nil
}

// ConnectionString returns the cluster's Dsn if set, otherwise a libpq keyword/value string.
func ConnectionString(cluster configuration.ClusterConfig) string {
	if cluster.Dsn != "" {
		return cluster.Dsn
	}
	// https://www.postgresql.org/docs/current/libpq-connect.html#LIBPQ-CONNSTRING
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	values := []struct{ key, value string }{
		{"host", cluster.Host},
		{"port", fmt.Sprint(cluster.Port)},
		{"user", cluster.User},
		{"password", cluster.Password},
		{"dbname", cluster.Database},
		{"sslmode", cluster.SSLMode},
	}
	parts := make([]string, 0, len(values))
	for _, kv := range values {
		if kv.value == "" || (kv.key == "port" && cluster.Port == 0) {
			continue
		}
		parts = append(parts, kv.key+"='"+replacer.Replace(kv.value)+"'")
	}
	return strings.Join(parts, " ")
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c *pgxConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.conn.Exec(ctx, query, args...)
	return err
}

func (c *pgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

type sqlConn struct {
	db *sql.DB
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c *sqlConn) Close(_ context.Context) error {
	return c.db.Close()
}
