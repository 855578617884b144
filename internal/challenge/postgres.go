package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Store shared by every server instance using the same database.
type Postgres struct {
	pool pgxQuerier
	now  func() time.Time
}

// NewPostgres constructs a PostgreSQL-backed store over a pool or connection.
func NewPostgres(q pgxQuerier) *Postgres {
	return &Postgres{pool: q, now: time.Now}
}

// Put upserts the nonce for username.
func (p *Postgres) Put(ctx context.Context, username string, nonce []byte, ttl time.Duration) error {
	const q = `
INSERT INTO auth_challenges (username, nonce, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (username)
DO UPDATE SET nonce = EXCLUDED.nonce, expires_at = EXCLUDED.expires_at`
	_, err := p.pool.Exec(ctx, q, username, nonce, p.now().Add(ttl).UTC())
	return err
}

// ConsumeIfMatches deletes the row and compares what it returned. A single DELETE ... RETURNING
// means two racing logins cannot both see the same nonce.
func (p *Postgres) ConsumeIfMatches(ctx context.Context, username string, supplied []byte) (bool, error) {
	const q = `DELETE FROM auth_challenges WHERE username = $1 RETURNING nonce, expires_at`
	var (
		nonce     []byte
		expiresAt time.Time
	)
	err := p.pool.QueryRow(ctx, q, username).Scan(&nonce, &expiresAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	if !p.now().Before(expiresAt) {
		return false, nil
	}
	return matches(nonce, supplied), nil
}

// Forget implements Store.
func (p *Postgres) Forget(ctx context.Context, username string) error {
	const q = `DELETE FROM auth_challenges WHERE username = $1`
	_, err := p.pool.Exec(ctx, q, username)
	return err
}

// Purge removes expired rows and returns how many were deleted.
func (p *Postgres) Purge(ctx context.Context) (int64, error) {
	const q = `DELETE FROM auth_challenges WHERE expires_at <= $1`
	tag, err := p.pool.Exec(ctx, q, p.now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
