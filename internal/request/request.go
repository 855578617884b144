// Package request holds already-validated input values for the service layer.
//
// Each constructor checks the transport-level rules (required, length, base64,
// alphanumeric usernames) and returns decoded bytes, so services never see raw
// base64 strings.
package request

import (
	"encoding/base64"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Length limits on base64-encoded fields, in characters.
const (
	UsernameMaxLength            = 32
	SignatureSaltB64MaxLength    = 256
	EncryptionSaltB64MaxLength   = 256
	PublicKeyB64MaxLength        = 256
	NonceB64MaxLength            = 256
	SignatureB64MaxLength        = 256
	EncryptedTitleB64MaxLength   = 256
	EncryptedContentB64MaxLength = 2048

	MaxPageSize = 100
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ValidationError reports a single rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Reason }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Username is an alphanumeric account name of at most UsernameMaxLength characters.
type Username string

// NewUsername validates s as a username.
func NewUsername(s string) (Username, error) {
	if s == "" {
		return "", invalid("username", "is required")
	}
	if len(s) > UsernameMaxLength {
		return "", invalid("username", "cannot exceed %d characters", UsernameMaxLength)
	}
	if !usernamePattern.MatchString(s) {
		return "", invalid("username", "must be alphanumeric")
	}
	return Username(s), nil
}

func (u Username) String() string { return string(u) }

// decodeB64 enforces 1..max characters of standard padded base64.
func decodeB64(field, s string, max int) ([]byte, error) {
	if s == "" {
		return nil, invalid(field, "is required")
	}
	if len(s) > max {
		return nil, invalid(field, "must be between 1 and %d characters long", max)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, invalid(field, "must be a valid base64 string")
	}
	return b, nil
}

// Signup is a validated account creation request.
type Signup struct {
	Username       Username
	SignatureSalt  []byte
	EncryptionSalt []byte
	PublicKey      []byte
}

// NewSignup validates a signup payload.
func NewSignup(username, signatureSaltB64, encryptionSaltB64, publicKeyB64 string) (Signup, error) {
	u, err := NewUsername(username)
	if err != nil {
		return Signup{}, err
	}
	sigSalt, err := decodeB64("signatureSaltB64", signatureSaltB64, SignatureSaltB64MaxLength)
	if err != nil {
		return Signup{}, err
	}
	encSalt, err := decodeB64("encryptionSaltB64", encryptionSaltB64, EncryptionSaltB64MaxLength)
	if err != nil {
		return Signup{}, err
	}
	pk, err := decodeB64("publicKeyB64", publicKeyB64, PublicKeyB64MaxLength)
	if err != nil {
		return Signup{}, err
	}
	return Signup{Username: u, SignatureSalt: sigSalt, EncryptionSalt: encSalt, PublicKey: pk}, nil
}

// Login is a validated challenge response.
type Login struct {
	Username  Username
	Nonce     []byte
	Signature []byte
}

// NewLogin validates a login payload. The signature length is checked by the service,
// which reports it separately.
func NewLogin(username, nonceB64, signatureB64 string) (Login, error) {
	u, err := NewUsername(username)
	if err != nil {
		return Login{}, err
	}
	nonce, err := decodeB64("nonceB64", nonceB64, NonceB64MaxLength)
	if err != nil {
		return Login{}, err
	}
	sig, err := decodeB64("signatureB64", signatureB64, SignatureB64MaxLength)
	if err != nil {
		return Login{}, err
	}
	return Login{Username: u, Nonce: nonce, Signature: sig}, nil
}

// NoteContent is the encrypted body of a note create or update.
type NoteContent struct {
	EncryptedTitle   []byte
	EncryptedContent []byte
}

// NewNoteContent validates encrypted note fields.
func NewNoteContent(encryptedTitleB64, encryptedContentB64 string) (NoteContent, error) {
	title, err := decodeB64("encryptedTitleB64", encryptedTitleB64, EncryptedTitleB64MaxLength)
	if err != nil {
		return NoteContent{}, err
	}
	content, err := decodeB64("encryptedContentB64", encryptedContentB64, EncryptedContentB64MaxLength)
	if err != nil {
		return NoteContent{}, err
	}
	return NoteContent{EncryptedTitle: title, EncryptedContent: content}, nil
}

// Page selects a page-number window.
type Page struct {
	Page     int
	PageSize int
}

// Offset is the number of items before this page.
func (p Page) Offset() int { return (p.Page - 1) * p.PageSize }

// NewPage validates page >= 1 and 1 <= pageSize <= MaxPageSize. page*pageSize must fit in an
// int so that Offset and the has-more check cannot wrap.
func NewPage(page, pageSize int) (Page, error) {
	if page < 1 {
		return Page{}, invalid("page", "must be positive")
	}
	if err := checkPageSize(pageSize); err != nil {
		return Page{}, err
	}
	if page > math.MaxInt/pageSize {
		return Page{}, invalid("page", "must be at most %d for pageSize %d", math.MaxInt/pageSize, pageSize)
	}
	return Page{Page: page, PageSize: pageSize}, nil
}

// Cursor selects items that sort after (Before, BeforeID) in newest-first order: older than
// Before, or at Before with a smaller id. A nil BeforeID selects strictly older items only.
type Cursor struct {
	Before   time.Time
	BeforeID uuid.UUID
	PageSize int
}

// NewCursor validates a cursor window. beforeID may be uuid.Nil.
func NewCursor(before time.Time, beforeID uuid.UUID, pageSize int) (Cursor, error) {
	if before.IsZero() {
		return Cursor{}, invalid("cursor", "is required")
	}
	if err := checkPageSize(pageSize); err != nil {
		return Cursor{}, err
	}
	return Cursor{Before: before.UTC(), BeforeID: beforeID, PageSize: pageSize}, nil
}

func checkPageSize(n int) error {
	if n < 1 || n > MaxPageSize {
		return invalid("pageSize", "must be between 1 and %d", MaxPageSize)
	}
	return nil
}
