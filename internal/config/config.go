// Package config loads shellhist settings.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML or
// TOML file, and environment variables. Command-line flags are applied by the
// caller on top. The merged result is checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables.
const (
	EnvConfig   = "SHELLHIST_CONFIG"
	EnvDBPath   = "SHELLHIST_DB_PATH"
	EnvHostname = "SHELLHIST_HOSTNAME"
)

// Config is the complete set of settings.
type Config struct {
	DBPath        string     `yaml:"db_path" toml:"db_path" json:"db_path"`
	Hostname      string     `yaml:"hostname" toml:"hostname" json:"hostname"`
	BusyTimeoutMS int        `yaml:"busy_timeout_ms" toml:"busy_timeout_ms" json:"busy_timeout_ms"`
	LogFile       string     `yaml:"log_file" toml:"log_file" json:"log_file"`
	LogLevel      string     `yaml:"log_level" toml:"log_level" json:"log_level"`
	Sync          SyncConfig `yaml:"sync" toml:"sync" json:"sync"`
}

// SyncConfig holds defaults for the sync command.
type SyncConfig struct {
	Directory        string `yaml:"directory" toml:"directory" json:"directory"`
	SSHCommand       string `yaml:"ssh_command" toml:"ssh_command" json:"ssh_command"`
	RemoteBinary     string `yaml:"remote_binary" toml:"remote_binary" json:"remote_binary"`
	RemoteDB         string `yaml:"remote_db" toml:"remote_db" json:"remote_db"`
	MaxSnapshotBytes int64  `yaml:"max_snapshot_bytes" toml:"max_snapshot_bytes" json:"max_snapshot_bytes"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DBPath:        DefaultDBPath(),
		BusyTimeoutMS: 5000,
		LogLevel:      "info",
		Sync: SyncConfig{
			SSHCommand:       "ssh",
			RemoteBinary:     "shellhist",
			MaxSnapshotBytes: 8 << 30,
		},
	}
}

// BusyTimeout returns the store lock wait window.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// Load reads settings. An explicit path must exist; with an empty path the
// file named by SHELLHIST_CONFIG or the first default location found is used,
// and a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if !explicit {
		path = discover()
	}

	if path != "" {
		if err := decodeFile(ExpandHome(path), &cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	applyEnv(&cfg)
	cfg.DBPath = ExpandHome(cfg.DBPath)
	cfg.LogFile = ExpandHome(cfg.LogFile)
	cfg.Sync.Directory = ExpandHome(cfg.Sync.Directory)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// decodeFile decodes a YAML or TOML file into cfg by extension.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
		}
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported format %q", path, filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvHostname); v != "" {
		cfg.Hostname = v
	}
}

// discover returns the first existing default config file, or "".
func discover() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func configDir() string {
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return filepath.Join(d, "shellhist")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "shellhist")
}

// DefaultDBPath returns the database location used when nothing else is set.
func DefaultDBPath() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "shellhist", "history.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".local", "share", "shellhist", "history.db")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
