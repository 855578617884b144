// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// EncryptedBlob is an opaque ciphertext produced on the client side. The server never decrypts it.
type EncryptedBlob []byte

// User is an account identity. There is no password: the user proves possession of the
// private half of PublicKey by signing challenges.
type User struct {
	ID             uuid.UUID // PK
	Username       string    // unique, immutable
	SignatureSalt  []byte    // relayed to the client for signing-key derivation
	EncryptionSalt []byte    // relayed to the client for note-key derivation, unused by the server
	PublicKey      []byte    // Ed25519 public key
	CreatedAt      time.Time
}

// UserView is what signup returns to the caller.
type UserView struct {
	ID             uuid.UUID
	Username       string
	SignatureSalt  []byte
	EncryptionSalt []byte
	PublicKey      []byte
}

// View strips server-side fields from the user.
func (u *User) View() UserView {
	return UserView{
		ID:             u.ID,
		Username:       u.Username,
		SignatureSalt:  u.SignatureSalt,
		EncryptionSalt: u.EncryptionSalt,
		PublicKey:      u.PublicKey,
	}
}

// Note is a single encrypted note owned by one user.
type Note struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID // FK -> users.id
	EncryptedTitle   EncryptedBlob
	EncryptedContent EncryptedBlob
	Timestamp        time.Time // set on create, refreshed on update; sort and cursor key
}

// Challenge is issued to a client that wants to log in.
type Challenge struct {
	SignatureSalt []byte
	Nonce         []byte
}

// LoginGrant is returned after a successful challenge response.
type LoginGrant struct {
	Token          string
	ExpiresAt      time.Time
	EncryptionSalt []byte
}

// NotePage is a page-number pagination window.
type NotePage struct {
	Items      []Note
	Page       int
	PageSize   int
	TotalCount int
}

// HasMore reports whether pages exist after this one, i.e. Page*PageSize < TotalCount,
// computed without multiplying so a huge Page cannot wrap.
func (p NotePage) HasMore() bool {
	if p.PageSize < 1 || p.TotalCount < 1 {
		return false
	}
	pages := (p.TotalCount + p.PageSize - 1) / p.PageSize
	return p.Page < pages
}

// NoteCursorPage is a cursor pagination window. NextCursor and NextCursorID are the key of
// the last item and are zero when HasMore is false.
type NoteCursorPage struct {
	Items        []Note
	PageSize     int
	HasMore      bool
	NextCursor   time.Time
	NextCursorID uuid.UUID // breaks ties on NextCursor
}
