package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/zknotes/internal/challenge"
	"github.com/and161185/zknotes/internal/errs"
	"github.com/and161185/zknotes/internal/model"
	"github.com/and161185/zknotes/internal/repository"
	"github.com/and161185/zknotes/internal/request"
	"github.com/and161185/zknotes/internal/result"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User

	existsErr error
	getErr    error
	delErr    error

	// vanishOnGet simulates a deletion racing with login.
	vanishOnGet bool
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers { return &fakeUsers{byName: map[string]*model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[u.Username]; ok {
		return errs.ErrAlreadyExists
	}
	c := *u
	f.byName[u.Username] = &c
	return nil
}

func (f *fakeUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byName[username]
	return ok, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.vanishOnGet {
		delete(f.byName, username)
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetSignatureSalt(_ context.Context, username string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u.SignatureSalt, nil
}

func (f *fakeUsers) Delete(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return "", f.delErr
	}
	for name, u := range f.byName {
		if u.ID == id {
			delete(f.byName, name)
			return name, nil
		}
	}
	return "", errs.ErrNotFound
}

type fakeTokens struct {
	calls int
	err   error
}

func (f *fakeTokens) Generate(username string, userID uuid.UUID) (string, time.Time, error) {
	f.calls++
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return "tok-" + username + "-" + userID.String(), time.Now().Add(time.Hour), nil
}

// countingStore records calls and delegates to a real Memory store.
type countingStore struct {
	*challenge.Memory
	consumes int
	putErr   error
}

func (c *countingStore) Put(ctx context.Context, u string, n []byte, ttl time.Duration) error {
	if c.putErr != nil {
		return c.putErr
	}
	return c.Memory.Put(ctx, u, n, ttl)
}

func (c *countingStore) ConsumeIfMatches(ctx context.Context, u string, n []byte) (bool, error) {
	c.consumes++
	return c.Memory.ConsumeIfMatches(ctx, u, n)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type authFixture struct {
	svc    *AuthService
	users  *fakeUsers
	store  *countingStore
	tokens *fakeTokens
	clock  *clock
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clk := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	mem := challenge.NewMemory(0, challenge.WithClock(clk.Now))
	t.Cleanup(mem.Close)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	f := &authFixture{
		users:  newFakeUsers(),
		store:  &countingStore{Memory: mem},
		tokens: &fakeTokens{},
		clock:  clk,
		priv:   priv,
		pub:    pub,
	}
	f.svc = NewAuthService(f.users, f.store, f.tokens, WithLogger(zaptest.NewLogger(t)))
	return f
}

func (f *authFixture) signup(t *testing.T, name string) model.UserView {
	t.Helper()
	res, err := f.svc.Signup(context.Background(), request.Signup{
		Username:       request.Username(name),
		SignatureSalt:  make([]byte, 32),
		EncryptionSalt: []byte("enc-salt-0123456789abcdef0123456"),
		PublicKey:      f.pub,
	})
	require.NoError(t, err)
	require.True(t, res.IsSuccess(), res.Message())
	require.Equal(t, result.KindCreated, res.SuccessKind())
	v, _ := res.Value()
	return v
}

func (f *authFixture) challenge(t *testing.T, name string) []byte {
	t.Helper()
	res, err := f.svc.Challenge(context.Background(), request.Username(name))
	require.NoError(t, err)
	require.True(t, res.IsSuccess(), res.Message())
	ch, _ := res.Value()
	require.Len(t, ch.Nonce, 32)
	return ch.Nonce
}

func (f *authFixture) login(t *testing.T, name string, nonce, sig []byte) result.Result[model.LoginGrant] {
	t.Helper()
	res, err := f.svc.Login(context.Background(), request.Login{
		Username:  request.Username(name),
		Nonce:     nonce,
		Signature: sig,
	})
	require.NoError(t, err)
	return res
}

func TestSignup_CreatedAndView(t *testing.T) {
	f := newAuthFixture(t)
	v := f.signup(t, "alice")
	assert.Equal(t, "alice", v.Username)
	assert.NotEqual(t, uuid.Nil, v.ID)
	assert.Equal(t, []byte(f.pub), v.PublicKey)
}

func TestSignup_BadPublicKeyLength(t *testing.T) {
	f := newAuthFixture(t)
	res, err := f.svc.Signup(context.Background(), request.Signup{
		Username:  "alice",
		PublicKey: make([]byte, 31),
	})
	require.NoError(t, err)
	require.False(t, res.IsSuccess())
	assert.Equal(t, result.ErrBadRequest, res.ErrorKind())
	assert.Empty(t, f.users.byName, "nothing persisted")
}

func TestSignup_DuplicateAlwaysConflict(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")

	payloads := []request.Signup{
		{Username: "alice", PublicKey: f.pub},
		{Username: "alice", PublicKey: make([]byte, 32), SignatureSalt: []byte("x")},
	}
	for _, p := range payloads {
		res, err := f.svc.Signup(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, result.ErrConflict, res.ErrorKind())
		assert.Equal(t, msgUsernameTaken, res.Message())
	}
}

func TestSignup_StorageFaultIsError(t *testing.T) {
	f := newAuthFixture(t)
	f.users.existsErr = errors.New("db down")
	_, err := f.svc.Signup(context.Background(), request.Signup{Username: "alice", PublicKey: f.pub})
	require.Error(t, err)
}

func TestChallenge_UnknownUserNotFound(t *testing.T) {
	f := newAuthFixture(t)
	res, err := f.svc.Challenge(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, result.ErrNotFound, res.ErrorKind())
	assert.Zero(t, f.store.Len())
}

func TestChallenge_StoreFaultIsError(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	f.store.putErr = errors.New("cache down")
	_, err := f.svc.Challenge(context.Background(), "alice")
	require.Error(t, err)
}

func TestLogin_SuccessThenReplayUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	sig := ed25519.Sign(f.priv, nonce)

	res := f.login(t, "alice", nonce, sig)
	require.True(t, res.IsSuccess(), res.Message())
	grant, ok := res.Value()
	require.True(t, ok)
	assert.NotEmpty(t, grant.Token)
	assert.Equal(t, []byte("enc-salt-0123456789abcdef0123456"), grant.EncryptionSalt)

	res = f.login(t, "alice", nonce, sig)
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind())
	assert.Equal(t, 1, f.tokens.calls)
}

func TestLogin_ExpiredNonceUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	f.clock.Advance(DefaultChallengeTTL)

	res := f.login(t, "alice", nonce, ed25519.Sign(f.priv, nonce))
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind())
	assert.Zero(t, f.tokens.calls)
}

func TestLogin_SizeCheckPrecedesConsume(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	sig := ed25519.Sign(f.priv, nonce)

	res := f.login(t, "alice", nonce, sig[:63])
	assert.Equal(t, result.ErrBadRequest, res.ErrorKind())
	assert.Zero(t, f.store.consumes, "nonce cache must not be touched")

	res = f.login(t, "alice", nonce, sig)
	assert.True(t, res.IsSuccess(), "nonce survived the malformed attempt")
}

func TestLogin_MismatchedNonceConsumesChallenge(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	other := make([]byte, 32)

	res := f.login(t, "alice", other, ed25519.Sign(f.priv, other))
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind())
	assert.Equal(t, msgChallengeInvalid, res.Message())

	res = f.login(t, "alice", nonce, ed25519.Sign(f.priv, nonce))
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind(), "failed attempt burned the nonce")
}

func TestLogin_NoChallengeUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := make([]byte, 32)
	res := f.login(t, "alice", nonce, ed25519.Sign(f.priv, nonce))
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind())
	assert.Equal(t, msgChallengeInvalid, res.Message())
}

func TestLogin_BadSignatureUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	res := f.login(t, "alice", nonce, ed25519.Sign(otherPriv, nonce))
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind())
	assert.Equal(t, msgBadSignature, res.Message())
	assert.Zero(t, f.tokens.calls)
}

func TestLogin_UserVanishedAfterChallengeNotFound(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	f.users.vanishOnGet = true

	res := f.login(t, "alice", nonce, ed25519.Sign(f.priv, nonce))
	assert.Equal(t, result.ErrNotFound, res.ErrorKind())
}

func TestLogin_LastChallengeWins(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	first := f.challenge(t, "alice")
	second := f.challenge(t, "alice")
	require.NotEqual(t, first, second)

	res := f.login(t, "alice", second, ed25519.Sign(f.priv, second))
	assert.True(t, res.IsSuccess(), "newest challenge is the live one")

	first = f.challenge(t, "alice")
	f.challenge(t, "alice")
	res = f.login(t, "alice", first, ed25519.Sign(f.priv, first))
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind(), "overwritten challenge is dead")
}

func TestLogin_ConcurrentReplayAtMostOneSuccess(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	sig := ed25519.Sign(f.priv, nonce)
	svc := NewAuthService(f.users, f.store.Memory, &syncTokens{}, WithLogger(zaptest.NewLogger(t)))

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Login(context.Background(), request.Login{Username: "alice", Nonce: nonce, Signature: sig})
			if err == nil && res.IsSuccess() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

type syncTokens struct{ mu sync.Mutex }

func (s *syncTokens) Generate(username string, _ uuid.UUID) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "tok-" + username, time.Now().Add(time.Hour), nil
}

func TestLogin_TokenFaultIsError(t *testing.T) {
	f := newAuthFixture(t)
	f.signup(t, "alice")
	nonce := f.challenge(t, "alice")
	f.tokens.err = errors.New("signer broken")

	_, err := f.svc.Login(context.Background(), request.Login{
		Username: "alice", Nonce: nonce, Signature: ed25519.Sign(f.priv, nonce),
	})
	require.Error(t, err)
}

func TestDeleteAccount(t *testing.T) {
	f := newAuthFixture(t)
	v := f.signup(t, "alice")
	nonce := f.challenge(t, "alice")

	res, err := f.svc.DeleteAccount(context.Background(), v.ID)
	require.NoError(t, err)
	require.True(t, res.IsSuccess())
	assert.Equal(t, result.KindNoContent, res.SuccessKind())
	_, ok := res.Value()
	assert.False(t, ok)
	assert.Zero(t, f.store.Len(), "pending challenge dropped")

	login := f.login(t, "alice", nonce, ed25519.Sign(f.priv, nonce))
	assert.Equal(t, result.ErrUnauthorized, login.ErrorKind())

	res, err = f.svc.DeleteAccount(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ErrNotFound, res.ErrorKind())

	res, err = f.svc.DeleteAccount(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, result.ErrUnauthorized, res.ErrorKind())

	f.users.delErr = errors.New("db down")
	_, err = f.svc.DeleteAccount(context.Background(), uuid.Must(uuid.NewV4()))
	require.Error(t, err)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "aliceforged", safeName("alice\r\nforged"))
}
