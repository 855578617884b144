// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/zknotes/migrations"
)

// Dialect selects the migration set and the goose dialect.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) goose() (goose.Dialect, error) {
	switch d {
	case Postgres:
		return goose.DialectPostgres, nil
	case SQLite:
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("migrate: unknown dialect %q", d)
	}
}

// Up runs all pending migrations for the dialect against db and returns how many were applied.
func Up(ctx context.Context, db *sql.DB, d Dialect) (int, error) {
	gd, err := d.goose()
	if err != nil {
		return 0, err
	}
	sub, err := fs.Sub(migrations.FS, string(d))
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(gd, db, sub)
	if err != nil {
		return 0, fmt.Errorf("migrate: provider: %w", err)
	}
	res, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: up: %w", err)
	}
	return len(res), nil
}

// UpPostgres opens a short-lived database/sql handle through pgx's stdlib driver and migrates it.
func UpPostgres(ctx context.Context, dsn string) (int, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return Up(ctx, db, Postgres)
}
