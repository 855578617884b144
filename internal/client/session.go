package client

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/and161185/zknotes/internal/convert"
	cc "github.com/and161185/zknotes/internal/crypto/clientcrypto"
	"github.com/gofrs/uuid/v5"
)

// Session is what a successful SignIn yields. Key never leaves the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Key       *[cc.KeyLen]byte
}

// PlainNote is a decrypted note.
type PlainNote struct {
	ID        uuid.UUID
	Title     string
	Content   string
	Timestamp time.Time
}

var b64 = base64.StdEncoding

// Register creates an account: fresh salts, a password-derived Ed25519 key, and only the
// public half sent to the server.
func (c *Client) Register(ctx context.Context, username string, password []byte, kdf cc.KDF) (convert.UserResponse, error) {
	sigSalt, err := cc.NewSalt()
	if err != nil {
		return convert.UserResponse{}, err
	}
	encSalt, err := cc.NewSalt()
	if err != nil {
		return convert.UserResponse{}, err
	}
	priv := kdf.SigningKey(password, sigSalt)
	return c.Signup(ctx, convert.SignupRequest{
		Username:          username,
		SignatureSaltB64:  b64.EncodeToString(sigSalt),
		EncryptionSaltB64: b64.EncodeToString(encSalt),
		PublicKeyB64:      b64.EncodeToString(priv.Public().(ed25519.PublicKey)),
	})
}

// SignIn runs challenge and login, then derives the note key from the returned salt.
// The returned client carries the token.
func (c *Client) SignIn(ctx context.Context, username string, password []byte, kdf cc.KDF) (*Client, Session, error) {
	ch, err := c.Challenge(ctx, username)
	if err != nil {
		return nil, Session{}, err
	}
	priv := kdf.SigningKey(password, ch.SignatureSalt)
	resp, err := c.Login(ctx, convert.LoginRequest{
		Username:     username,
		NonceB64:     b64.EncodeToString(ch.Nonce),
		SignatureB64: b64.EncodeToString(cc.SignNonce(priv, ch.Nonce)),
	})
	if err != nil {
		return nil, Session{}, err
	}
	encSalt, err := b64.DecodeString(resp.EncryptionSaltB64)
	if err != nil {
		return nil, Session{}, fmt.Errorf("encryptionSaltB64: %w", err)
	}
	s := Session{
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
		Key:       kdf.EncryptionKey(password, encSalt),
	}
	return c.Authed(s.Token), s, nil
}

// Authed returns a copy of c that sends tok.
func (c *Client) Authed(tok string) *Client {
	cp := *c
	cp.token = tok
	return &cp
}

// SealNote encrypts title and content under key.
func SealNote(key *[cc.KeyLen]byte, title, content string) (convert.NoteRequest, error) {
	t, err := cc.Seal(key, []byte(title))
	if err != nil {
		return convert.NoteRequest{}, err
	}
	body, err := cc.Seal(key, []byte(content))
	if err != nil {
		return convert.NoteRequest{}, err
	}
	return convert.ToNoteRequest(t, body), nil
}

// OpenNote decrypts a note received from the server.
func OpenNote(key *[cc.KeyLen]byte, in convert.NoteResponse) (PlainNote, error) {
	n, err := convert.FromNoteResponse(in)
	if err != nil {
		return PlainNote{}, err
	}
	title, err := cc.Open(key, n.EncryptedTitle)
	if err != nil {
		return PlainNote{}, fmt.Errorf("note %s title: %w", n.ID, err)
	}
	content, err := cc.Open(key, n.EncryptedContent)
	if err != nil {
		return PlainNote{}, fmt.Errorf("note %s content: %w", n.ID, err)
	}
	return PlainNote{ID: n.ID, Title: string(title), Content: string(content), Timestamp: n.Timestamp}, nil
}
