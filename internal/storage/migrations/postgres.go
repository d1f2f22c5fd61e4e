package migrations

import (
	"context"
	"fmt"

	"solana-wallet-ledger/internal/storage/postgres"
)

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// migrationLockKey is the advisory lock that serializes concurrent migrators.
const migrationLockKey = 7_405_113

// RunPostgresMigrations applies embedded migrations not yet recorded in
// schema_migrations, each in its own transaction, and returns the versions
// it applied.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	ms, err := load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range ms {
		ok, err := applyPostgres(ctx, pool, m)
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if ok {
			applied = append(applied, m.version)
		}
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, m migration) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return false, fmt.Errorf("lock: %w", err)
	}

	var done bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.version,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("check version: %w", err)
	}
	if done {
		return false, nil
	}

	// No arguments: pgx uses the simple protocol, so a file may hold several statements.
	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
		return false, fmt.Errorf("record version: %w", err)
	}
	return true, tx.Commit(ctx)
}
