// Command zkn is a CLI client for the zknotes service. Notes are encrypted locally
// and the password never leaves the machine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"

	"github.com/and161185/zknotes/internal/client"
	cc "github.com/and161185/zknotes/internal/crypto/clientcrypto"
)

// ---- session store ----

type sessionFile struct {
	Server    string    `json:"server"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "zknotes")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "zknotes")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

func keyPath() string { return filepath.Join(cfgDir(), "key.bin") }

func saveSession(s sessionFile, key *[cc.KeyLen]byte) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(sessionPath(), b, 0o600); err != nil {
		return err
	}
	return os.WriteFile(keyPath(), key[:], 0o600)
}

var errLoginRequired = errors.New("no valid session (login required)")

func loadSession() (sessionFile, *[cc.KeyLen]byte, error) {
	var s sessionFile
	b, err := os.ReadFile(sessionPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil, errLoginRequired
		}
		return s, nil, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, nil, err
	}
	if s.Token == "" || time.Now().After(s.ExpiresAt) {
		return s, nil, errLoginRequired
	}
	raw, err := os.ReadFile(keyPath())
	if err != nil {
		return s, nil, fmt.Errorf("read key: %w", err)
	}
	if len(raw) != cc.KeyLen {
		return s, nil, errors.New("stored key is corrupt; login again")
	}
	var key [cc.KeyLen]byte
	copy(key[:], raw)
	return s, &key, nil
}

func clearSession() error {
	for _, p := range []string{sessionPath(), keyPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// expiryOf prefers the server-reported expiry and falls back to the token's exp claim.
func expiryOf(tok string, reported time.Time) time.Time {
	if !reported.IsZero() {
		return reported
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(15 * time.Minute)
}

// ---- input ----

// readPassword and cliKDF are swapped in tests.
var (
	readPassword = term.ReadPassword
	cliKDF       = cc.DefaultKDF
)

func promptPassword(w io.Writer, flagValue string) ([]byte, error) {
	if flagValue != "" {
		return []byte(flagValue), nil
	}
	if v := os.Getenv("ZKN_PASSWORD"); v != "" {
		return []byte(v), nil
	}
	fmt.Fprint(w, "Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errors.New("empty password")
	}
	return pw, nil
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage(w io.Writer) {
	fmt.Fprint(w, `zkn CLI
Usage:
  zkn [-server URL] <cmd> [args]

Commands:
  version
  health
  signup          -u <username> [-p <password>]
  login           -u <username> [-p <password>]   (saves token and note key)
  logout
  notes           [-page N] [-size N] | -before <RFC3339> [-before-id <uuid>] [-size N]
  add             -title <t> (-text <s> | -file <path|->)
  edit            -id <uuid> -title <t> (-text <s> | -file <path|->)
  rm              -id <uuid>
  delete-account  -yes

The password may also come from ZKN_PASSWORD; otherwise it is prompted for.
`)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}
		fail(err)
	}
}

func defaultServer() string {
	if v := os.Getenv("ZKN_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// run parses global flags and dispatches one subcommand.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("zkn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", defaultServer(), "server base URL")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() < 1 {
		return errUsage
	}

	a := &app{server: *server, out: stdout, errOut: stderr, kdf: cliKDF}
	rest := fs.Args()[1:]
	switch fs.Arg(0) {
	case "version":
		fmt.Fprintf(stdout, "zkn %s (%s)\n", version, buildDate)
		return nil
	case "health":
		return a.health(ctx)
	case "signup":
		return a.signup(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return clearSession()
	case "notes":
		return a.notes(ctx, rest)
	case "add":
		return a.add(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "rm":
		return a.rm(ctx, rest)
	case "delete-account":
		return a.deleteAccount(ctx, rest)
	default:
		return errUsage
	}
}

func fail(err error) {
	red := color.New(color.FgRed, color.Bold)
	var ae *client.APIError
	if errors.As(err, &ae) {
		red.Fprintf(os.Stderr, "error: ")
		fmt.Fprintf(os.Stderr, "%s (http %d)\n", ae.Message, ae.Status)
		os.Exit(1)
	}
	red.Fprintf(os.Stderr, "error: ")
	fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
	os.Exit(1)
}
