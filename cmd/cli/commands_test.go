package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/zknotes/internal/challenge"
	"github.com/and161185/zknotes/internal/client"
	cc "github.com/and161185/zknotes/internal/crypto/clientcrypto"
	"github.com/and161185/zknotes/internal/migrate"
	"github.com/and161185/zknotes/internal/repository/sqlite"
	httpserver "github.com/and161185/zknotes/internal/server/http"
	"github.com/and161185/zknotes/internal/service"
	"github.com/and161185/zknotes/internal/token"
)

func startServer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db, err := sqlite.Open(ctx, sqlite.Memory)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	_, err = migrate.Up(ctx, db.SQL, migrate.SQLite)
	require.NoError(t, err)

	settings := token.Settings{
		SigningKey: []byte("cli-test-signing-key-0123456789a"),
		Lifetime:   time.Hour,
		Issuer:     "zknotes",
		Audience:   "zknotes-client",
	}
	iss, err := token.NewIssuer(settings)
	require.NoError(t, err)
	ver, err := token.NewVerifier(settings)
	require.NoError(t, err)
	store := challenge.NewMemory(0)
	t.Cleanup(store.Close)

	srv := httptest.NewServer(httpserver.NewHandler(httpserver.Deps{
		Auth:     service.NewAuthService(sqlite.NewUserRepo(db), store, iss),
		Notes:    service.NewNoteService(sqlite.NewNoteRepo(db), log),
		Verifier: ver,
		Health:   db,
		Log:      log,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

type cli struct {
	t      *testing.T
	server string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	_ = withTmpConfig(t)
	t.Setenv("ZKN_PASSWORD", "")
	color.NoColor = true
	old := cliKDF
	cliKDF = cc.KDF{Time: 1, Memory: 64, Threads: 1}
	t.Cleanup(func() { cliKDF = old })
	return &cli{t: t, server: startServer(t)}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	full := append([]string{"-server", c.server}, args...)
	err := run(context.Background(), full, &out, io.Discard)
	return out.String(), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, strings.Join(args, " "))
	return out
}

type listed struct {
	Items      []noteRow `json:"items"`
	TotalCount int       `json:"totalCount"`
	HasMore    bool      `json:"hasMore"`
	NextCursor string    `json:"nextCursor"`
}

func (c *cli) list(args ...string) listed {
	c.t.Helper()
	var l listed
	require.NoError(c.t, json.Unmarshal([]byte(c.must(append([]string{"notes"}, args...)...)), &l))
	return l
}

func TestCLI_EndToEnd(t *testing.T) {
	c := newCLI(t)

	c.must("health")
	assert.Contains(t, c.must("signup", "-u", "alice", "-p", "pw"), "created alice")

	_, err := c.run("signup", "-u", "alice", "-p", "pw")
	assert.Equal(t, http.StatusConflict, client.StatusOf(err))

	_, err = c.run("notes")
	assert.ErrorIs(t, err, errLoginRequired)

	c.must("login", "-u", "alice", "-p", "pw")

	first := strings.TrimSpace(c.must("add", "-title", "groceries", "-text", "milk"))
	time.Sleep(2 * time.Millisecond)
	c.must("add", "-title", "todo", "-text", "ship it")

	l := c.list("-size", "1")
	assert.Equal(t, 2, l.TotalCount)
	assert.True(t, l.HasMore)
	require.Len(t, l.Items, 1)
	assert.Equal(t, "todo", l.Items[0].Title)
	assert.Equal(t, "ship it", l.Items[0].Content)

	cur := c.list("-before", l.Items[0].Updated.Format(time.RFC3339Nano), "-size", "5")
	require.Len(t, cur.Items, 1)
	assert.Equal(t, "groceries", cur.Items[0].Title)
	assert.Empty(t, cur.NextCursor)

	keyed := c.list("-before", l.Items[0].Updated.Format(time.RFC3339Nano), "-before-id", l.Items[0].ID, "-size", "5")
	require.Len(t, keyed.Items, 1)
	assert.Equal(t, "groceries", keyed.Items[0].Title)

	assert.Contains(t, c.must("edit", "-id", first, "-title", "groceries", "-text", "milk, eggs"), first)
	l = c.list()
	require.Len(t, l.Items, 2)
	assert.Equal(t, first, l.Items[0].ID, "edited note moves to the front")
	assert.Equal(t, "milk, eggs", l.Items[0].Content)

	c.must("rm", "-id", first)
	_, err = c.run("rm", "-id", first)
	assert.Equal(t, http.StatusNotFound, client.StatusOf(err))

	_, err = c.run("delete-account")
	assert.EqualError(t, err, "refusing without -yes")
	c.must("delete-account", "-yes")

	_, err = c.run("notes")
	assert.ErrorIs(t, err, errLoginRequired)
	_, err = c.run("login", "-u", "alice", "-p", "pw")
	assert.Equal(t, http.StatusNotFound, client.StatusOf(err))
}

func TestCLI_WrongPassword(t *testing.T) {
	c := newCLI(t)
	c.must("signup", "-u", "bob", "-p", "right")

	_, err := c.run("login", "-u", "bob", "-p", "wrong")
	assert.Equal(t, http.StatusUnauthorized, client.StatusOf(err))

	_, _, err = loadSession()
	assert.ErrorIs(t, err, errLoginRequired, "failed login must not save a session")
}

func TestCLI_SessionBoundToServer(t *testing.T) {
	c := newCLI(t)
	c.must("signup", "-u", "carol", "-p", "pw")
	c.must("login", "-u", "carol", "-p", "pw")

	other := &cli{t: t, server: startServer(t)}
	_, err := other.run("notes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login again")
}

func TestCLI_ArgErrors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("signup", "-p", "x")
	assert.EqualError(t, err, "need -u")
	_, err = c.run("add", "-text", "x")
	assert.EqualError(t, err, "need -title")
	_, err = c.run("edit", "-title", "x")
	assert.EqualError(t, err, "need -id")
	_, err = c.run("rm", "-id", "not-a-uuid")
	assert.Error(t, err)
}
