// Package config loads server settings from defaults, an optional YAML file, a .env file,
// ZKN_* environment variables and command-line flags, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/and161185/zknotes/internal/errs"
	"github.com/and161185/zknotes/internal/token"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Challenge stores.
const (
	ChallengeMemory   = "memory"
	ChallengePostgres = "postgres"
)

// Config holds runtime settings for the server.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Health    HealthConfig    `yaml:"health"`
	Storage   StorageConfig   `yaml:"storage"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Token     TokenConfig     `yaml:"token"`
	Log       LogConfig       `yaml:"log"`
}

// HTTPConfig is the public API listener.
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	TLSCert           string        `yaml:"tls_cert"` // PEM; TLS is off unless both files are set
	TLSKey            string        `yaml:"tls_key"`
}

// HealthConfig is the gRPC health probe listener. An empty Addr disables it.
type HealthConfig struct {
	Addr       string        `yaml:"addr"`
	Interval   time.Duration `yaml:"interval"`
	Reflection bool          `yaml:"reflection"`
}

// StorageConfig selects the backend. DSN is used by postgres, Path by sqlite.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Path   string `yaml:"path"`
}

// ChallengeConfig configures the login nonce cache.
type ChallengeConfig struct {
	Store         string        `yaml:"store"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// TokenConfig configures bearer tokens.
type TokenConfig struct {
	SigningKey string        `yaml:"signing_key"`
	Lifetime   time.Duration `yaml:"lifetime"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Defaults returns development defaults. The signing key is left empty on purpose so that
// Validate fails until one is supplied.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Health: HealthConfig{
			Addr:     ":8081",
			Interval: 5 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "data/zknotes.db",
		},
		Challenge: ChallengeConfig{
			Store:         ChallengeMemory,
			TTL:           2 * time.Minute,
			SweepInterval: time.Minute,
		},
		Token: TokenConfig{
			Lifetime: time.Hour,
			Issuer:   "zknotes",
			Audience: "zknotes-client",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds a Config from args (without the program name) and the environment lookup
// function, usually os.LookupEnv.
func Load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	fs := flag.NewFlagSet("zknotes-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath = fs.String("config", "", "path to YAML config file (env ZKN_CONFIG)")
		envFile    = fs.String("env-file", ".env", "path to .env file, ignored when absent")
		httpAddr   = fs.String("http-addr", "", "HTTP listen address")
		healthAddr = fs.String("health-addr", "", "gRPC health listen address, empty disables")
		driver     = fs.String("storage", "", "storage driver: postgres | sqlite")
		dsn        = fs.String("dsn", "", "Postgres DSN")
		dbPath     = fs.String("db-path", "", "SQLite database path")
		chStore    = fs.String("challenge-store", "", "challenge store: memory | postgres")
		jwtKey     = fs.String("jwt-key", "", "HS256 signing key")
		logLevel   = fs.String("log-level", "", "log level: debug | info | warn | error")
		tlsCert    = fs.String("tls-cert", "", "TLS certificate (PEM)")
		tlsKey     = fs.String("tls-key", "", "TLS private key (PEM)")
		dev        = fs.Bool("dev", false, "development logging and gRPC reflection")
	)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}

	cfg := Defaults()

	dotenv, err := readDotenv(*envFile)
	if err != nil {
		return nil, err
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	path := *configPath
	if path == "" {
		path, _ = env("ZKN_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.mergeEnv(env); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-addr":
			cfg.HTTP.Addr = *httpAddr
		case "health-addr":
			cfg.Health.Addr = *healthAddr
		case "storage":
			cfg.Storage.Driver = *driver
		case "dsn":
			cfg.Storage.DSN = *dsn
		case "db-path":
			cfg.Storage.Path = *dbPath
		case "challenge-store":
			cfg.Challenge.Store = *chStore
		case "jwt-key":
			cfg.Token.SigningKey = *jwtKey
		case "log-level":
			cfg.Log.Level = *logLevel
		case "tls-cert":
			cfg.HTTP.TLSCert = *tlsCert
		case "tls-key":
			cfg.HTTP.TLSKey = *tlsKey
		case "dev":
			cfg.Log.Development = *dev
			cfg.Health.Reflection = *dev
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	m, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: env file %s: %v", errs.ErrInvalidConfig, path, err)
	}
	return m, nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", errs.ErrInvalidConfig, path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parsing %s: %v", errs.ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) mergeEnv(env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	var bad []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := env(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				bad = append(bad, fmt.Errorf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := env(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				bad = append(bad, fmt.Errorf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	str("ZKN_HTTP_ADDR", &c.HTTP.Addr)
	dur("ZKN_HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	if v, ok := env("ZKN_HTTP_ALLOWED_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = splitList(v)
	}
	str("ZKN_HEALTH_ADDR", &c.Health.Addr)
	dur("ZKN_HEALTH_INTERVAL", &c.Health.Interval)
	str("ZKN_STORAGE_DRIVER", &c.Storage.Driver)
	str("ZKN_STORAGE_DSN", &c.Storage.DSN)
	str("ZKN_STORAGE_PATH", &c.Storage.Path)
	str("ZKN_CHALLENGE_STORE", &c.Challenge.Store)
	dur("ZKN_CHALLENGE_TTL", &c.Challenge.TTL)
	dur("ZKN_CHALLENGE_SWEEP_INTERVAL", &c.Challenge.SweepInterval)
	str("ZKN_JWT_KEY", &c.Token.SigningKey)
	dur("ZKN_JWT_LIFETIME", &c.Token.Lifetime)
	str("ZKN_JWT_ISSUER", &c.Token.Issuer)
	str("ZKN_JWT_AUDIENCE", &c.Token.Audience)
	str("ZKN_LOG_LEVEL", &c.Log.Level)
	boolean("ZKN_LOG_DEVELOPMENT", &c.Log.Development)

	if len(bad) > 0 {
		return fmt.Errorf("%w: %w", errs.ErrInvalidConfig, errors.Join(bad...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every problem at once, wrapped in errs.ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) { problems = append(problems, fmt.Errorf(format, args...)) }

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		add("http.tls_cert and http.tls_key must be set together")
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DSN == "" {
			add("storage.dsn is required for postgres")
		}
	case DriverSQLite:
		if c.Storage.Path == "" {
			add("storage.path is required for sqlite")
		}
	default:
		add("storage.driver %q is not one of postgres, sqlite", c.Storage.Driver)
	}
	switch c.Challenge.Store {
	case ChallengeMemory:
	case ChallengePostgres:
		if c.Storage.Driver != DriverPostgres {
			add("challenge.store postgres needs storage.driver postgres")
		}
	default:
		add("challenge.store %q is not one of memory, postgres", c.Challenge.Store)
	}
	if c.Challenge.TTL <= 0 {
		add("challenge.ttl must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if err := c.TokenSettings().Validate(); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		return nil
	}
	err := errors.Join(problems...)
	if errors.Is(err, errs.ErrInvalidConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
}

// TokenSettings converts the token section for the issuer and verifier.
func (c *Config) TokenSettings() token.Settings {
	return token.Settings{
		SigningKey: []byte(c.Token.SigningKey),
		Lifetime:   c.Token.Lifetime,
		Issuer:     c.Token.Issuer,
		Audience:   c.Token.Audience,
	}
}
