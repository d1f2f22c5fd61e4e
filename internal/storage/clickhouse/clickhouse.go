package clickhouse

import (
	"context"
	"fmt"
	"net"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Conn wraps clickhouse driver.Conn for dependency injection.
type Conn struct {
	driver.Conn
}

// NewConn creates a new ClickHouse connection to the database named in dsn.
func NewConn(ctx context.Context, dsn string) (*Conn, error) {
	opts, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return open(ctx, opts)
}

// NewConnWithDatabase connects using dsn but targets database instead of
// the one in the DSN. An empty database uses the server default.
func NewConnWithDatabase(ctx context.Context, dsn, database string) (*Conn, error) {
	opts, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	opts.Auth.Database = database
	return open(ctx, opts)
}

func open(ctx context.Context, opts *clickhouse.Options) (*Conn, error) {
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	// Verify connection
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &Conn{Conn: conn}, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.Conn.Close()
}

const defaultNativePort = "9000"

// ParseDSN parses a clickhouse:// DSN, including comma-separated hosts and
// driver query options. Hosts without a port get the native port.
func ParseDSN(dsn string) (*clickhouse.Options, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	for i, addr := range opts.Addr {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			opts.Addr[i] = net.JoinHostPort(addr, defaultNativePort)
		}
	}
	return opts, nil
}
