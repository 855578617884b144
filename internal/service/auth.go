// Package service contains application services for authentication and notes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/zknotes/internal/challenge"
	pkgcrypto "github.com/and161185/zknotes/internal/crypto"
	"github.com/and161185/zknotes/internal/errs"
	"github.com/and161185/zknotes/internal/model"
	"github.com/and161185/zknotes/internal/repository"
	"github.com/and161185/zknotes/internal/request"
	"github.com/and161185/zknotes/internal/result"
)

// DefaultChallengeTTL is how long an issued nonce stays valid.
const DefaultChallengeTTL = 2 * time.Minute

// Messages returned to callers. They never say which internal check failed beyond the kind.
const (
	msgBadPublicKey     = "Invalid public key length"
	msgUsernameTaken    = "Username already exists"
	msgUserNotFound     = "User not found"
	msgBadSignatureSize = "Invalid signature length"
	msgChallengeInvalid = "Challenge expired or invalid"
	msgBadSignature     = "Invalid signature"
)

// TokenIssuer mints bearer tokens for authenticated users.
type TokenIssuer interface {
	Generate(username string, userID uuid.UUID) (token string, expiresAt time.Time, err error)
}

// AuthService drives signup, challenge issuance, login and account deletion.
//
// Methods return a result for every expected outcome. A non-nil error means storage or the
// nonce cache failed and the caller should answer with a generic internal error.
type AuthService struct {
	users      repository.UserRepository
	challenges challenge.Store
	tokens     TokenIssuer
	ttl        time.Duration
	log        *zap.Logger
	randBytes  func(n int) ([]byte, error)
}

// AuthOption customizes an AuthService.
type AuthOption func(*AuthService)

// WithChallengeTTL overrides DefaultChallengeTTL. Non-positive values are ignored.
func WithChallengeTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) AuthOption {
	return func(s *AuthService) {
		if l != nil {
			s.log = l
		}
	}
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, challenges challenge.Store, tokens TokenIssuer, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:      users,
		challenges: challenges,
		tokens:     tokens,
		ttl:        DefaultChallengeTTL,
		log:        zap.NewNop(),
		randBytes:  pkgcrypto.RandBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Signup registers a new identity.
func (s *AuthService) Signup(ctx context.Context, req request.Signup) (result.Result[model.UserView], error) {
	name := req.Username.String()
	if len(req.PublicKey) != pkgcrypto.PublicKeySize {
		return result.Fail[model.UserView](result.ErrBadRequest, msgBadPublicKey), nil
	}

	exists, err := s.users.UsernameExists(ctx, name)
	if err != nil {
		return result.Result[model.UserView]{}, fmt.Errorf("signup: lookup: %w", err)
	}
	if exists {
		s.log.Info("signup rejected: username taken", zap.String("username", safeName(name)))
		return result.Fail[model.UserView](result.ErrConflict, msgUsernameTaken), nil
	}

	id, err := uuid.NewV4()
	if err != nil {
		return result.Result[model.UserView]{}, fmt.Errorf("signup: id: %w", err)
	}
	u := &model.User{
		ID:             id,
		Username:       name,
		SignatureSalt:  req.SignatureSalt,
		EncryptionSalt: req.EncryptionSalt,
		PublicKey:      req.PublicKey,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// A concurrent signup can win between the existence check and the insert.
		if errors.Is(err, errs.ErrAlreadyExists) {
			return result.Fail[model.UserView](result.ErrConflict, msgUsernameTaken), nil
		}
		return result.Result[model.UserView]{}, fmt.Errorf("signup: create: %w", err)
	}

	s.log.Info("user signed up", zap.String("username", safeName(name)), zap.Stringer("user_id", id))
	return result.Created(u.View()), nil
}

// Challenge issues a fresh nonce for username, replacing any pending one.
func (s *AuthService) Challenge(ctx context.Context, username request.Username) (result.Result[model.Challenge], error) {
	name := username.String()
	salt, err := s.users.GetSignatureSalt(ctx, name)
	if errors.Is(err, errs.ErrNotFound) {
		return result.Fail[model.Challenge](result.ErrNotFound, msgUserNotFound), nil
	}
	if err != nil {
		return result.Result[model.Challenge]{}, fmt.Errorf("challenge: salt: %w", err)
	}

	nonce, err := s.randBytes(pkgcrypto.NonceSize)
	if err != nil {
		return result.Result[model.Challenge]{}, fmt.Errorf("challenge: nonce: %w", err)
	}
	if err := s.challenges.Put(ctx, name, nonce, s.ttl); err != nil {
		return result.Result[model.Challenge]{}, fmt.Errorf("challenge: store: %w", err)
	}

	s.log.Debug("challenge issued", zap.String("username", safeName(name)))
	return result.OK(model.Challenge{SignatureSalt: salt, Nonce: nonce}), nil
}

// Login checks a signed nonce and mints a token. The checks run in a fixed order: signature
// size, nonce consumption, user lookup, signature verification.
func (s *AuthService) Login(ctx context.Context, req request.Login) (result.Result[model.LoginGrant], error) {
	name := req.Username.String()
	if len(req.Signature) != pkgcrypto.SignatureSize {
		return result.Fail[model.LoginGrant](result.ErrBadRequest, msgBadSignatureSize), nil
	}

	ok, err := s.challenges.ConsumeIfMatches(ctx, name, req.Nonce)
	if err != nil {
		return result.Result[model.LoginGrant]{}, fmt.Errorf("login: consume: %w", err)
	}
	if !ok {
		s.log.Info("login rejected: challenge", zap.String("username", safeName(name)))
		return result.Fail[model.LoginGrant](result.ErrUnauthorized, msgChallengeInvalid), nil
	}

	u, err := s.users.GetByUsername(ctx, name)
	if errors.Is(err, errs.ErrNotFound) {
		// The account existed when the challenge was issued and has since been deleted.
		s.log.Warn("login: user vanished after challenge", zap.String("username", safeName(name)))
		return result.Fail[model.LoginGrant](result.ErrNotFound, msgUserNotFound), nil
	}
	if err != nil {
		return result.Result[model.LoginGrant]{}, fmt.Errorf("login: user: %w", err)
	}

	if !pkgcrypto.VerifyDetached(req.Signature, req.Nonce, u.PublicKey) {
		s.log.Info("login rejected: signature", zap.String("username", safeName(name)))
		return result.Fail[model.LoginGrant](result.ErrUnauthorized, msgBadSignature), nil
	}

	tok, exp, err := s.tokens.Generate(u.Username, u.ID)
	if err != nil {
		return result.Result[model.LoginGrant]{}, fmt.Errorf("login: token: %w", err)
	}

	s.log.Info("user logged in", zap.String("username", safeName(name)), zap.Stringer("user_id", u.ID))
	return result.OK(model.LoginGrant{Token: tok, ExpiresAt: exp, EncryptionSalt: u.EncryptionSalt}), nil
}

// DeleteAccount removes the user with every note they own and drops any pending challenge.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) (result.Result[struct{}], error) {
	if userID == uuid.Nil {
		return result.Fail[struct{}](result.ErrUnauthorized, msgUnauthenticated), nil
	}
	name, err := s.users.Delete(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return result.Fail[struct{}](result.ErrNotFound, msgUserNotFound), nil
	}
	if err != nil {
		return result.Result[struct{}]{}, fmt.Errorf("delete account: %w", err)
	}
	if err := s.challenges.Forget(ctx, name); err != nil {
		// The account is gone already; a leftover nonce can only fail at the user lookup.
		s.log.Warn("delete account: forget challenge", zap.String("username", safeName(name)), zap.Error(err))
	}

	s.log.Info("account deleted", zap.String("username", safeName(name)), zap.Stringer("user_id", userID))
	return result.NoContent[struct{}](), nil
}

var logSanitizer = strings.NewReplacer("\r", "", "\n", "")

// safeName strips line breaks so a username cannot forge log lines.
func safeName(s string) string { return logSanitizer.Replace(s) }
