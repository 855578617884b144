package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/zknotes/internal/client"
	"github.com/and161185/zknotes/internal/convert"
	cc "github.com/and161185/zknotes/internal/crypto/clientcrypto"
)

type app struct {
	server string
	out    io.Writer
	errOut io.Writer
	kdf    cc.KDF
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *app) anon() *client.Client { return client.New(a.server) }

// authed loads the saved session. A session saved for another server is refused.
func (a *app) authed() (*client.Client, *[cc.KeyLen]byte, error) {
	s, key, err := loadSession()
	if err != nil {
		return nil, nil, err
	}
	if s.Server != "" && s.Server != a.server {
		return nil, nil, fmt.Errorf("session belongs to %s; login again", s.Server)
	}
	return client.New(a.server, client.WithToken(s.Token)), key, nil
}

func (a *app) ok(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(a.out, format+"\n", args...)
}

func (a *app) health(ctx context.Context) error {
	if err := a.anon().Health(ctx); err != nil {
		return err
	}
	a.ok("ok")
	return nil
}

func (a *app) credentials(name string, args []string) (string, []byte, error) {
	fs := a.flags(name)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return "", nil, errUsage
	}
	if *u == "" {
		return "", nil, errors.New("need -u")
	}
	pw, err := promptPassword(a.errOut, *p)
	if err != nil {
		return "", nil, err
	}
	return *u, pw, nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	u, pw, err := a.credentials("signup", args)
	if err != nil {
		return err
	}
	user, err := a.anon().Register(ctx, u, pw, a.kdf)
	if err != nil {
		return err
	}
	a.ok("created %s (%s)", user.Username, user.ID)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	u, pw, err := a.credentials("login", args)
	if err != nil {
		return err
	}
	_, sess, err := a.anon().SignIn(ctx, u, pw, a.kdf)
	if err != nil {
		return err
	}
	err = saveSession(sessionFile{
		Server:    a.server,
		Username:  u,
		Token:     sess.Token,
		ExpiresAt: expiryOf(sess.Token, sess.ExpiresAt),
	}, sess.Key)
	if err != nil {
		return err
	}
	a.ok("logged in as %s", u)
	return nil
}

type noteRow struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Updated time.Time `json:"updated"`
}

func openRows(key *[cc.KeyLen]byte, items []convert.NoteResponse) ([]noteRow, error) {
	rows := make([]noteRow, 0, len(items))
	for _, it := range items {
		n, err := client.OpenNote(key, it)
		if err != nil {
			return nil, err
		}
		rows = append(rows, noteRow{ID: n.ID.String(), Title: n.Title, Content: n.Content, Updated: n.Timestamp})
	}
	return rows, nil
}

func (a *app) notes(ctx context.Context, args []string) error {
	fs := a.flags("notes")
	page := fs.Int("page", 1, "page number (1-based)")
	size := fs.Int("size", 20, "page size")
	before := fs.String("before", "", "cursor: notes updated before this RFC 3339 time")
	beforeID := fs.String("before-id", "", "cursor tie-breaker: the nextCursorId of the previous page")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	c, key, err := a.authed()
	if err != nil {
		return err
	}

	if *before != "" {
		t, err := time.Parse(time.RFC3339Nano, *before)
		if err != nil {
			return fmt.Errorf("-before: %w", err)
		}
		var id uuid.UUID
		if *beforeID != "" {
			if id, err = uuid.FromString(*beforeID); err != nil {
				return fmt.Errorf("-before-id: %w", err)
			}
		}
		res, err := c.NotesBefore(ctx, t, id, *size)
		if err != nil {
			return err
		}
		rows, err := openRows(key, res.Items)
		if err != nil {
			return err
		}
		out := map[string]any{"items": rows, "hasMore": res.HasMore}
		if res.NextCursor != nil {
			out["nextCursor"] = res.NextCursor.Format(time.RFC3339Nano)
			out["nextCursorId"] = res.NextCursorID
		}
		printJSON(a.out, out)
		return nil
	}

	res, err := c.Notes(ctx, *page, *size)
	if err != nil {
		return err
	}
	rows, err := openRows(key, res.Items)
	if err != nil {
		return err
	}
	printJSON(a.out, map[string]any{
		"items":      rows,
		"page":       res.Page,
		"totalCount": res.TotalCount,
		"hasMore":    res.HasMore,
	})
	return nil
}

// noteBody resolves -text / -file into note content.
func noteBody(text, file string) (string, error) {
	switch {
	case text != "" && file != "":
		return "", errors.New("use either -text or -file")
	case file != "":
		b, err := readAll(file)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return text, nil
	}
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := a.flags("add")
	title := fs.String("title", "", "note title")
	text := fs.String("text", "", "note content")
	file := fs.String("file", "", "content file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *title == "" {
		return errors.New("need -title")
	}
	body, err := noteBody(*text, *file)
	if err != nil {
		return err
	}
	c, key, err := a.authed()
	if err != nil {
		return err
	}
	req, err := client.SealNote(key, *title, body)
	if err != nil {
		return err
	}
	n, err := c.AddNote(ctx, req)
	if err != nil {
		return err
	}
	a.ok("%s", n.ID)
	return nil
}

func parseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, errors.New("need -id")
	}
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("-id: %w", err)
	}
	return id, nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := a.flags("edit")
	rawID := fs.String("id", "", "note id (uuid)")
	title := fs.String("title", "", "note title")
	text := fs.String("text", "", "note content")
	file := fs.String("file", "", "content file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*rawID)
	if err != nil {
		return err
	}
	if *title == "" {
		return errors.New("need -title")
	}
	body, err := noteBody(*text, *file)
	if err != nil {
		return err
	}
	c, key, err := a.authed()
	if err != nil {
		return err
	}
	req, err := client.SealNote(key, *title, body)
	if err != nil {
		return err
	}
	n, err := c.UpdateNote(ctx, id, req)
	if err != nil {
		return err
	}
	a.ok("%s updated %s", n.ID, n.Timestamp.Format(time.RFC3339))
	return nil
}

func (a *app) rm(ctx context.Context, args []string) error {
	fs := a.flags("rm")
	rawID := fs.String("id", "", "note id (uuid)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := parseID(*rawID)
	if err != nil {
		return err
	}
	c, _, err := a.authed()
	if err != nil {
		return err
	}
	if err := c.DeleteNote(ctx, id); err != nil {
		return err
	}
	a.ok("deleted")
	return nil
}

func (a *app) deleteAccount(ctx context.Context, args []string) error {
	fs := a.flags("delete-account")
	yes := fs.Bool("yes", false, "confirm: removes the account and every note")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if !*yes {
		return errors.New("refusing without -yes")
	}
	c, _, err := a.authed()
	if err != nil {
		return err
	}
	if err := c.DeleteAccount(ctx); err != nil {
		return err
	}
	if err := clearSession(); err != nil {
		return err
	}
	a.ok("account deleted")
	return nil
}
