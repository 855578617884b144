// Package convert maps domain types to and from the JSON wire shapes shared by the HTTP server
// and the API client.
package convert

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/zknotes/internal/model"
	"github.com/and161185/zknotes/internal/request"
)

// --- helpers ---

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(field, s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return b, nil
}

// --- auth ---

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Username          string `json:"username"`
	SignatureSaltB64  string `json:"signatureSaltB64"`
	EncryptionSaltB64 string `json:"encryptionSaltB64"`
	PublicKeyB64      string `json:"publicKeyB64"`
}

// Validate turns the wire body into a validated signup.
func (r SignupRequest) Validate() (request.Signup, error) {
	return request.NewSignup(r.Username, r.SignatureSaltB64, r.EncryptionSaltB64, r.PublicKeyB64)
}

// UserResponse is the user view returned by signup.
type UserResponse struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	SignatureSaltB64  string `json:"signatureSaltB64"`
	EncryptionSaltB64 string `json:"encryptionSaltB64"`
	PublicKeyB64      string `json:"publicKeyB64"`
}

// ToUserResponse encodes a user view.
func ToUserResponse(v model.UserView) UserResponse {
	return UserResponse{
		ID:                v.ID.String(),
		Username:          v.Username,
		SignatureSaltB64:  b64(v.SignatureSalt),
		EncryptionSaltB64: b64(v.EncryptionSalt),
		PublicKeyB64:      b64(v.PublicKey),
	}
}

// ChallengeResponse is returned by GET /auth/challenge.
type ChallengeResponse struct {
	SignatureSaltB64 string `json:"signatureSaltB64"`
	NonceB64         string `json:"nonceB64"`
}

// ToChallengeResponse encodes a challenge.
func ToChallengeResponse(c model.Challenge) ChallengeResponse {
	return ChallengeResponse{SignatureSaltB64: b64(c.SignatureSalt), NonceB64: b64(c.Nonce)}
}

// FromChallengeResponse decodes the salt and nonce.
func FromChallengeResponse(in ChallengeResponse) (model.Challenge, error) {
	salt, err := unb64("signatureSaltB64", in.SignatureSaltB64)
	if err != nil {
		return model.Challenge{}, err
	}
	nonce, err := unb64("nonceB64", in.NonceB64)
	if err != nil {
		return model.Challenge{}, err
	}
	return model.Challenge{SignatureSalt: salt, Nonce: nonce}, nil
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username     string `json:"username"`
	NonceB64     string `json:"nonceB64"`
	SignatureB64 string `json:"signatureB64"`
}

// Validate turns the wire body into a validated login.
func (r LoginRequest) Validate() (request.Login, error) {
	return request.NewLogin(r.Username, r.NonceB64, r.SignatureB64)
}

// LoginResponse carries the bearer token and the salt for note-key derivation.
type LoginResponse struct {
	Token             string    `json:"token"`
	ExpiresAt         time.Time `json:"expiresAt"`
	EncryptionSaltB64 string    `json:"encryptionSaltB64"`
}

// ToLoginResponse encodes a login grant.
func ToLoginResponse(g model.LoginGrant) LoginResponse {
	return LoginResponse{Token: g.Token, ExpiresAt: g.ExpiresAt.UTC(), EncryptionSaltB64: b64(g.EncryptionSalt)}
}

// --- notes ---

// NoteRequest is the body of POST /notes and PUT /notes/{id}.
type NoteRequest struct {
	EncryptedTitleB64   string `json:"encryptedTitleB64"`
	EncryptedContentB64 string `json:"encryptedContentB64"`
}

// Validate turns the wire body into validated note content.
func (r NoteRequest) Validate() (request.NoteContent, error) {
	return request.NewNoteContent(r.EncryptedTitleB64, r.EncryptedContentB64)
}

// ToNoteRequest encodes encrypted blobs for sending.
func ToNoteRequest(title, content model.EncryptedBlob) NoteRequest {
	return NoteRequest{EncryptedTitleB64: b64(title), EncryptedContentB64: b64(content)}
}

// NoteResponse is a single note on the wire. The owner is implied by the token.
type NoteResponse struct {
	ID                  string    `json:"id"`
	EncryptedTitleB64   string    `json:"encryptedTitleB64"`
	EncryptedContentB64 string    `json:"encryptedContentB64"`
	Timestamp           time.Time `json:"timestamp"`
}

// ToNoteResponse encodes a note.
func ToNoteResponse(n model.Note) NoteResponse {
	return NoteResponse{
		ID:                  n.ID.String(),
		EncryptedTitleB64:   b64(n.EncryptedTitle),
		EncryptedContentB64: b64(n.EncryptedContent),
		Timestamp:           n.Timestamp.UTC(),
	}
}

// FromNoteResponse decodes a note received from the server.
func FromNoteResponse(in NoteResponse) (model.Note, error) {
	var id uuid.UUID
	if err := id.UnmarshalText([]byte(in.ID)); err != nil {
		return model.Note{}, fmt.Errorf("invalid id: %w", err)
	}
	title, err := unb64("encryptedTitleB64", in.EncryptedTitleB64)
	if err != nil {
		return model.Note{}, err
	}
	content, err := unb64("encryptedContentB64", in.EncryptedContentB64)
	if err != nil {
		return model.Note{}, err
	}
	return model.Note{
		ID:               id,
		EncryptedTitle:   title,
		EncryptedContent: content,
		Timestamp:        in.Timestamp.UTC(),
	}, nil
}

func toNoteResponses(in []model.Note) []NoteResponse {
	out := make([]NoteResponse, 0, len(in))
	for _, n := range in {
		out = append(out, ToNoteResponse(n))
	}
	return out
}

// NotePageResponse is a page-number window.
type NotePageResponse struct {
	Items      []NoteResponse `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalCount int            `json:"totalCount"`
	HasMore    bool           `json:"hasMore"`
}

// ToNotePageResponse encodes a page.
func ToNotePageResponse(p model.NotePage) NotePageResponse {
	return NotePageResponse{
		Items:      toNoteResponses(p.Items),
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalCount: p.TotalCount,
		HasMore:    p.HasMore(),
	}
}

// NoteCursorPageResponse is a cursor window. NextCursor and NextCursorID are absent on the
// last page; a client passes both back as cursor and cursorId.
type NoteCursorPageResponse struct {
	Items        []NoteResponse `json:"items"`
	PageSize     int            `json:"pageSize"`
	HasMore      bool           `json:"hasMore"`
	NextCursor   *time.Time     `json:"nextCursor,omitempty"`
	NextCursorID string         `json:"nextCursorId,omitempty"`
}

// ToNoteCursorPageResponse encodes a cursor page.
func ToNoteCursorPageResponse(p model.NoteCursorPage) NoteCursorPageResponse {
	out := NoteCursorPageResponse{
		Items:    toNoteResponses(p.Items),
		PageSize: p.PageSize,
		HasMore:  p.HasMore,
	}
	if !p.NextCursor.IsZero() {
		c := p.NextCursor.UTC()
		out.NextCursor = &c
	}
	if p.NextCursorID != uuid.Nil {
		out.NextCursorID = p.NextCursorID.String()
	}
	return out
}

// --- errors ---

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}
