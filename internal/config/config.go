// Package config loads quizvault settings. Sources are layered, later ones
// winning: built-in defaults, an optional YAML file, a .env file, QUIZVAULT_
// environment variables and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks the environment variables Load reads. Nested keys use a
// double underscore, so QUIZVAULT_LOG__LEVEL sets log.level.
const EnvPrefix = "QUIZVAULT_"

type Config struct {
	DataDir           string `koanf:"data_dir" validate:"required"`
	DBPath            string `koanf:"db_path"`
	FlatDir           string `koanf:"flat_dir"`
	DisableStructured bool   `koanf:"disable_structured"`
	ReposDir          string `koanf:"repos_dir"`
	User              string `koanf:"user" validate:"required"`
	Hash              string `koanf:"hash" validate:"oneof=bcrypt sha256 reversible"`

	Log   LogConfig   `koanf:"log"`
	Admin AdminConfig `koanf:"admin"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json logfmt"`
}

type AdminConfig struct {
	Login    string `koanf:"login" validate:"required"`
	Password string `koanf:"password"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		DataDir: "quizvault-data",
		User:    "local",
		Hash:    "bcrypt",
		Log:     LogConfig{Level: "info", Format: "text"},
		Admin:   AdminConfig{Login: "admin"},
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":       "data_dir",
	"db":             "db_path",
	"flat-dir":       "flat_dir",
	"no-db":          "disable_structured",
	"repos-dir":      "repos_dir",
	"user":           "user",
	"hash":           "hash",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"admin-login":    "admin.login",
	"admin-password": "admin.password",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "path to a YAML config file")
	fs.String("env-file", ".env", "path to a .env file")
	fs.String("data-dir", d.DataDir, "directory for local data")
	fs.String("db", "", "SQLite database path (default <data-dir>/quizvault.db)")
	fs.String("flat-dir", "", "flat-file store directory (default <data-dir>/flat)")
	fs.Bool("no-db", false, "skip the SQLite tier")
	fs.String("repos-dir", "", "directory for cloned exam repositories (default <data-dir>/repos)")
	fs.String("user", d.User, "user id that owns imported exams")
	fs.String("hash", d.Hash, "password hashing: bcrypt, sha256 or reversible")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: text, json, logfmt")
	fs.String("admin-login", d.Admin.Login, "administrator login")
	fs.String("admin-password", "", "bootstrap the administrator with this password")
}

// Load builds the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path := flagString(flags, "config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envFile := ".env"
	if flags != nil && flags.Lookup("env-file") != nil {
		envFile = flagString(flags, "env-file")
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fillPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) fillPaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "quizvault.db")
	}
	if c.FlatDir == "" {
		c.FlatDir = filepath.Join(c.DataDir, "flat")
	}
	if c.ReposDir == "" {
		c.ReposDir = filepath.Join(c.DataDir, "repos")
	}
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// flagKey only passes flags set on the command line, so unset flags never
// shadow the file or environment.
func flagKey(f *pflag.Flag) (string, interface{}) {
	key, ok := flagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	return key, f.Value.String()
}

func flagString(flags *pflag.FlagSet, name string) string {
	if flags == nil || flags.Lookup(name) == nil {
		return ""
	}
	v, _ := flags.GetString(name)
	return v
}

// EnsureDirs creates the data directory.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", c.DataDir, err)
	}
	return nil
}
