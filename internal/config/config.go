package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mod-net/stack/internal/logger"
	"github.com/mod-net/stack/internal/probe"
	"github.com/mod-net/stack/internal/registry"
)

// Service names of the supervised stack. The registry is a fixed table;
// config can override hosts, ports and launch commands but not invent
// services.
const (
	ChainNode     = "chain-node"
	StorageDaemon = "storage-daemon"
	BridgeWorker  = "bridge-worker"
	Dashboard     = "dashboard"
)

// ServiceConfig holds the per-service overrides a deployment may set.
// Zero values fall back to the built-in defaults.
type ServiceConfig struct {
	Command  string        `toml:"command" mapstructure:"command"`
	WorkDir  string        `toml:"workdir" mapstructure:"workdir"`
	Env      []string      `toml:"env" mapstructure:"env"`
	Host     string        `toml:"host" mapstructure:"host"`
	Port     int           `toml:"port" mapstructure:"port"`
	Path     string        `toml:"path" mapstructure:"path"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// JournalConfig selects the lifecycle journal backend.
type JournalConfig struct {
	Backend string `toml:"backend" mapstructure:"backend"` // "sqlite", "postgres" or "none"
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Config is the explicit orchestrator configuration. Every recognized
// option and its default is enumerated by Default; nothing is read from
// ad hoc environment variables.
type Config struct {
	BaseDir string `toml:"base_dir" mapstructure:"base_dir"`
	LockDir string `toml:"lock_dir" mapstructure:"lock_dir"`
	RunDir  string `toml:"run_dir" mapstructure:"run_dir"`
	LogDir  string `toml:"log_dir" mapstructure:"log_dir"`

	// StopGrace is how long a service gets after SIGTERM before SIGKILL.
	StopGrace time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	// LockWait bounds singleton lock acquisition.
	LockWait time.Duration `toml:"lock_wait" mapstructure:"lock_wait"`
	// EvictGrace is the graceful window given to a live lock holder.
	EvictGrace time.Duration `toml:"evict_grace" mapstructure:"evict_grace"`

	// Listen is the admin API address for the serve command.
	Listen string `toml:"listen" mapstructure:"listen"`

	Journal  JournalConfig            `toml:"journal" mapstructure:"journal"`
	Log      logger.Config            `toml:"log" mapstructure:"log"`
	Services map[string]ServiceConfig `toml:"services" mapstructure:"services"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".mod-net")
	return Config{
		BaseDir:    base,
		LockDir:    filepath.Join(base, "locks"),
		RunDir:     filepath.Join(base, "run"),
		LogDir:     filepath.Join(base, "logs"),
		StopGrace:  10 * time.Second,
		LockWait:   15 * time.Second,
		EvictGrace: 5 * time.Second,
		Listen:     "127.0.0.1:7070",
		Journal:    JournalConfig{Backend: "sqlite"},
		Services:   map[string]ServiceConfig{},
	}
}

// Load reads a TOML config file and merges it over the defaults.
// An empty path returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	d := Default()
	if c.BaseDir == "" {
		c.BaseDir = d.BaseDir
	}
	if c.LockDir == "" {
		c.LockDir = filepath.Join(c.BaseDir, "locks")
	}
	if c.RunDir == "" {
		c.RunDir = filepath.Join(c.BaseDir, "run")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.BaseDir, "logs")
	}
	if c.StopGrace <= 0 {
		c.StopGrace = d.StopGrace
	}
	if c.LockWait <= 0 {
		c.LockWait = d.LockWait
	}
	if c.EvictGrace <= 0 {
		c.EvictGrace = d.EvictGrace
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = d.Journal.Backend
	}
	if c.Services == nil {
		c.Services = map[string]ServiceConfig{}
	}
}

// JournalDSN returns the effective journal DSN; the sqlite default lives
// under the run dir.
func (c Config) JournalDSN() string {
	if c.Journal.DSN != "" {
		return c.Journal.DSN
	}
	if c.Journal.Backend == "sqlite" {
		return filepath.Join(c.RunDir, "journal.db")
	}
	return ""
}

// LogConfig returns the rotation config for captured service output.
func (c Config) LogConfig() logger.Config {
	lc := c.Log
	if lc.Dir == "" {
		lc.Dir = c.LogDir
	}
	return lc
}

type builtin struct {
	name      string
	command   string
	deps      []string
	health    probe.Spec
	singleton bool
}

// builtins is the fixed service table of the mod-net stack: ledger node,
// content-addressed storage daemon, bridge/worker API, web dashboard.
func builtins() []builtin {
	return []builtin{
		{
			name:    ChainNode,
			command: "mod-net-node --dev --rpc-port 9944",
			health:  probe.Spec{Kind: probe.KindTCP, Host: "127.0.0.1", Port: 9944, Interval: 500 * time.Millisecond, Timeout: 30 * time.Second},
		},
		{
			name:      StorageDaemon,
			command:   "ipfs daemon --migrate=true",
			health:    probe.Spec{Kind: probe.KindHTTP, Host: "127.0.0.1", Port: 5001, Path: "/api/v0/version", Interval: 500 * time.Millisecond, Timeout: 45 * time.Second},
			singleton: true,
		},
		{
			name:    BridgeWorker,
			command: "mod-net-bridge --listen 127.0.0.1:8765",
			deps:    []string{ChainNode, StorageDaemon},
			health:  probe.Spec{Kind: probe.KindHTTP, Host: "127.0.0.1", Port: 8765, Path: "/health", Interval: 500 * time.Millisecond, Timeout: 20 * time.Second},
		},
		{
			name:    Dashboard,
			command: "mod-net-dashboard --port 3000",
			deps:    []string{BridgeWorker},
			health:  probe.Spec{Kind: probe.KindHTTP, Host: "127.0.0.1", Port: 3000, Path: "/", Interval: 500 * time.Millisecond, Timeout: 10 * time.Second},
		},
	}
}

// Descriptors builds the registry input: built-in table plus overrides.
func (c Config) Descriptors() []registry.Descriptor {
	out := make([]registry.Descriptor, 0, 4)
	for _, b := range builtins() {
		d := registry.Descriptor{
			Name:      b.name,
			Command:   b.command,
			DependsOn: b.deps,
			Health:    b.health,
			PIDFile:   filepath.Join(c.RunDir, b.name+".pid"),
		}
		if b.singleton {
			d.LockPath = filepath.Join(c.LockDir, b.name, "repo.lock")
		}
		if ov, ok := c.Services[b.name]; ok {
			applyOverride(&d, ov)
		}
		out = append(out, d)
	}
	return out
}

// Registry is a convenience wrapper: Descriptors fed through registry.New.
func (c Config) Registry() (*registry.Registry, error) {
	return registry.New(c.Descriptors())
}

func applyOverride(d *registry.Descriptor, ov ServiceConfig) {
	if ov.Command != "" {
		d.Command = ov.Command
	}
	if ov.WorkDir != "" {
		d.WorkDir = ov.WorkDir
	}
	if len(ov.Env) > 0 {
		d.Env = append([]string(nil), ov.Env...)
	}
	if ov.Host != "" {
		d.Health.Host = ov.Host
	}
	if ov.Port != 0 {
		d.Health.Port = ov.Port
	}
	if ov.Path != "" {
		d.Health.Path = ov.Path
	}
	if ov.Interval > 0 {
		d.Health.Interval = ov.Interval
	}
	if ov.Timeout > 0 {
		d.Health.Timeout = ov.Timeout
	}
}
