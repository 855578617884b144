// Package token issues and verifies the HS256 bearer tokens handed out at login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/zknotes/internal/errs"
)

// Settings is the process-wide signing configuration.
type Settings struct {
	SigningKey []byte
	Lifetime   time.Duration
	Issuer     string
	Audience   string
}

// Validate rejects settings that would mint unusable or unsafe tokens.
func (s Settings) Validate() error {
	switch {
	case len(s.SigningKey) == 0:
		return fmt.Errorf("%w: empty jwt signing key", errs.ErrInvalidConfig)
	case s.Lifetime <= 0:
		return fmt.Errorf("%w: jwt lifetime must be positive", errs.ErrInvalidConfig)
	case s.Issuer == "":
		return fmt.Errorf("%w: empty jwt issuer", errs.ErrInvalidConfig)
	case s.Audience == "":
		return fmt.Errorf("%w: empty jwt audience", errs.ErrInvalidConfig)
	}
	return nil
}

// Claims carries the identity embedded in every token.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller recovered from a token.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// Issuer mints tokens.
type Issuer struct {
	s   Settings
	now func() time.Time
}

// NewIssuer validates s and returns an Issuer.
func NewIssuer(s Settings) (*Issuer, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Issuer{s: s, now: time.Now}, nil
}

// Generate creates a signed token for the user and returns it with its expiry.
func (i *Issuer) Generate(username string, userID uuid.UUID) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.s.Lifetime)
	claims := Claims{
		Name: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    i.s.Issuer,
			Audience:  jwt.ClaimStrings{i.s.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.s.SigningKey)
	return signed, exp, err
}

// Verifier checks tokens produced by an Issuer with the same Settings.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewVerifier validates s and returns a Verifier.
func NewVerifier(s Settings) (*Verifier, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{
		key: s.SigningKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(s.Issuer),
			jwt.WithAudience(s.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(30*time.Second),
		),
	}, nil
}

// Verify parses the token and returns the identity it carries.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	var claims Claims
	parsed, err := v.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	if claims.Name == "" {
		return Identity{}, fmt.Errorf("%w: %w", errs.ErrUnauthorized, errors.New("missing name claim"))
	}
	return Identity{UserID: id, Username: claims.Name}, nil
}
