// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/zknotes/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to user identities.
type UserRepository interface {
	// Create inserts a new user; errs.ErrAlreadyExists on a taken username.
	Create(ctx context.Context, u *model.User) error
	// UsernameExists reports whether the username is taken.
	UsernameExists(ctx context.Context, username string) (bool, error)
	// GetByUsername loads a user; errs.ErrNotFound when absent.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetSignatureSalt returns only the signature salt; errs.ErrNotFound when absent.
	GetSignatureSalt(ctx context.Context, username string) ([]byte, error)
	// Delete removes the user and every note they own in one transaction and returns the
	// deleted username; errs.ErrNotFound when absent.
	Delete(ctx context.Context, id uuid.UUID) (string, error)
}
