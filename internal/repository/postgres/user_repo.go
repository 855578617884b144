package postgres

import (
	"context"
	"errors"

	"github.com/and161185/zknotes/internal/errs"
	"github.com/and161185/zknotes/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, signature_salt, encryption_salt, public_key)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.SignatureSalt, u.EncryptionSalt, u.PublicKey)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// UsernameExists checks for a row with the username.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT id, username, signature_salt, encryption_salt, public_key, created_at
FROM users WHERE username=$1`
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, username).
		Scan(&u.ID, &u.Username, &u.SignatureSalt, &u.EncryptionSalt, &u.PublicKey, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetSignatureSalt selects only the signature salt.
func (r *UserRepo) GetSignatureSalt(ctx context.Context, username string) ([]byte, error) {
	const q = `SELECT signature_salt FROM users WHERE username=$1`
	var salt []byte
	err := r.db.Pool.QueryRow(ctx, q, username).Scan(&salt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		const delNotes = `DELETE FROM notes WHERE user_id=$1`
		if _, err := tx.Exec(ctx, delNotes, id); err != nil {
			return err
		}
		const delUser = `DELETE FROM users WHERE id=$1 RETURNING username`
		err := tx.QueryRow(ctx, delUser, id).Scan(&username)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return username, nil
}
