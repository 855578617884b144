package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/and161185/zknotes/internal/errs"
	"github.com/and161185/zknotes/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository using SQLite.
type UserRepo struct {
	db  *DB
	now func() time.Time
}

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db, now: time.Now} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, signature_salt, encryption_salt, public_key, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	created := u.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	_, err := r.db.SQL.ExecContext(ctx, q,
		u.ID, u.Username, u.SignatureSalt, u.EncryptionSalt, u.PublicKey, toMicros(created))
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UsernameExists checks for a row with the username.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=?)`
	var exists bool
	if err := r.db.SQL.QueryRowContext(ctx, q, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT id, username, signature_salt, encryption_salt, public_key, created_at
FROM users WHERE username=?`
	var (
		u       model.User
		created int64
	)
	err := r.db.SQL.QueryRowContext(ctx, q, username).
		Scan(&u.ID, &u.Username, &u.SignatureSalt, &u.EncryptionSalt, &u.PublicKey, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMicros(created)
	return &u, nil
}

// GetSignatureSalt selects only the signature salt.
func (r *UserRepo) GetSignatureSalt(ctx context.Context, username string) ([]byte, error) {
	const q = `SELECT signature_salt FROM users WHERE username=?`
	var salt []byte
	err := r.db.SQL.QueryRowContext(ctx, q, username).Scan(&salt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return salt, nil
}

// Delete removes the user's notes and then the user inside one transaction.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	var username string
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE user_id=?`, id); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx, `DELETE FROM users WHERE id=? RETURNING username`, id).Scan(&username)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return username, nil
}
