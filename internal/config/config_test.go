package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/zknotes/internal/errs"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaults(t *testing.T) {
	c := Defaults()
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, ":8081", c.Health.Addr)
	assert.Equal(t, DriverSQLite, c.Storage.Driver)
	assert.Equal(t, ChallengeMemory, c.Challenge.Store)
	assert.Equal(t, 2*time.Minute, c.Challenge.TTL)
	assert.Equal(t, time.Hour, c.Token.Lifetime)
	assert.Empty(t, c.Token.SigningKey)

	err := c.Validate()
	require.ErrorIs(t, err, errs.ErrInvalidConfig, "defaults lack a signing key")
}

func TestLoad_EnvOnly(t *testing.T) {
	c, err := Load([]string{"-env-file", ""}, envMap(map[string]string{
		"ZKN_JWT_KEY":              "k",
		"ZKN_CHALLENGE_TTL":        "90s",
		"ZKN_HTTP_ALLOWED_ORIGINS": "https://a.example, https://b.example ,",
		"ZKN_LOG_DEVELOPMENT":      "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, "k", c.Token.SigningKey)
	assert.Equal(t, 90*time.Second, c.Challenge.TTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.HTTP.AllowedOrigins)
	assert.True(t, c.Log.Development)
}

func TestLoad_Precedence(t *testing.T) {
	yml := writeFile(t, "zknotes.yaml", `
http:
  addr: ":9000"
storage:
  driver: postgres
  dsn: postgres://yaml
challenge:
  store: postgres
  ttl: 3m
token:
  signing_key: from-yaml
  lifetime: 30m
log:
  level: debug
`)
	dotenv := writeFile(t, ".env", "ZKN_STORAGE_DSN=postgres://dotenv\nZKN_JWT_LIFETIME=20m\n")

	c, err := Load(
		[]string{"-config", yml, "-env-file", dotenv, "-http-addr", ":7000"},
		envMap(map[string]string{"ZKN_JWT_LIFETIME": "10m"}),
	)
	require.NoError(t, err)

	assert.Equal(t, ":7000", c.HTTP.Addr, "flag beats yaml")
	assert.Equal(t, "postgres://dotenv", c.Storage.DSN, ".env beats yaml")
	assert.Equal(t, 10*time.Minute, c.Token.Lifetime, "process env beats .env")
	assert.Equal(t, "from-yaml", c.Token.SigningKey)
	assert.Equal(t, 3*time.Minute, c.Challenge.TTL)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 15*time.Second, c.HTTP.WriteTimeout, "untouched default survives")
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	yml := writeFile(t, "c.yaml", "token:\n  signing_key: via-env-path\n")
	c, err := Load([]string{"-env-file", ""}, envMap(map[string]string{"ZKN_CONFIG": yml}))
	require.NoError(t, err)
	assert.Equal(t, "via-env-path", c.Token.SigningKey)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]struct {
		args []string
		env  map[string]string
	}{
		"unknown flag":       {args: []string{"-nope"}},
		"missing yaml":       {args: []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}},
		"unknown yaml field": {args: []string{"-config", writeFile(t, "u.yaml", "bogus: 1\n")}},
		"bad duration":       {env: map[string]string{"ZKN_JWT_KEY": "k", "ZKN_CHALLENGE_TTL": "soon"}},
		"bad bool":           {env: map[string]string{"ZKN_JWT_KEY": "k", "ZKN_LOG_DEVELOPMENT": "maybe"}},
		"no key":             {},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			args := append([]string{"-env-file", ""}, tc.args...)
			_, err := Load(args, envMap(tc.env))
			require.ErrorIs(t, err, errs.ErrInvalidConfig)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Token.SigningKey = "k"
		return c
	}
	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	mutate := map[string]func(*Config){
		"driver":             func(c *Config) { c.Storage.Driver = "mysql" },
		"postgres dsn":       func(c *Config) { c.Storage.Driver = DriverPostgres; c.Storage.DSN = "" },
		"sqlite path":        func(c *Config) { c.Storage.Path = "" },
		"store":              func(c *Config) { c.Challenge.Store = "redis" },
		"pg store on sqlite": func(c *Config) { c.Challenge.Store = ChallengePostgres },
		"ttl":                func(c *Config) { c.Challenge.TTL = 0 },
		"lifetime":           func(c *Config) { c.Token.Lifetime = -time.Second },
		"issuer":             func(c *Config) { c.Token.Issuer = "" },
		"audience":           func(c *Config) { c.Token.Audience = "" },
		"level":              func(c *Config) { c.Log.Level = "loud" },
		"http addr":          func(c *Config) { c.HTTP.Addr = "" },
		"tls half":           func(c *Config) { c.HTTP.TLSCert = "cert.pem" },
	}
	for name, m := range mutate {
		c := valid()
		m(&c)
		assert.ErrorIs(t, c.Validate(), errs.ErrInvalidConfig, name)
	}
}

func TestLogConfig_NewLogger(t *testing.T) {
	l, err := LogConfig{Level: "warn"}.NewLogger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1), "debug disabled at warn")

	_, err = LogConfig{Level: "loud"}.NewLogger()
	require.Error(t, err)
}
