package migrations

import (
	"context"
	"fmt"
	"strings"

	chstore "solana-wallet-ledger/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database if needed, applies every
// embedded statement, and returns a connection to that database.
// ClickHouse DDL in these files is idempotent, so no version table is kept.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	opts, err := chstore.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	dbName := opts.Auth.Database
	if dbName == "" {
		return nil, fmt.Errorf("clickhouse dsn missing database")
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName))
	_ = admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	ms, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, m := range ms {
		for _, stmt := range splitStatements(m.sql) {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", m.version, err)
			}
		}
	}

	return conn, nil
}

// splitStatements splits a script on semicolons that sit outside quotes and
// -- comments. The ClickHouse driver runs one statement per Exec.
func splitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
		quote byte
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		ch := script[i]
		switch {
		case quote != 0:
			cur.WriteByte(ch)
			if ch == '\\' && i+1 < len(script) {
				i++
				cur.WriteByte(script[i])
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return stmts
}
