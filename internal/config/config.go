package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all ledgerdev configuration.
type Config struct {
	Name string `yaml:"name"`

	// Project is the smart-contract project the builder runs against.
	Project ProjectConfig `yaml:"project"`

	// Toolchain controls binary discovery.
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// Execution settings for one-shot commands
	Execution ExecutionConfig `yaml:"execution"`

	// Node configures the local chain daemon.
	Node NodeConfig `yaml:"node"`

	// QueryClient configures read and state-changing calls.
	QueryClient QueryClientConfig `yaml:"query_client"`

	Audit AuditConfig `yaml:"audit"`

	Server ServerConfig `yaml:"server"`

	Logging LoggingConfig `yaml:"logging"`
}

// ProjectConfig locates the contract project.
type ProjectConfig struct {
	Root string `yaml:"root" env:"LEDGERDEV_PROJECT_ROOT"`
}

// ToolchainConfig configures the binary resolver.
type ToolchainConfig struct {
	// ManagerBinDir is the tool-manager-local bin directory (foundryup installs here).
	ManagerBinDir string `yaml:"manager_bin_dir" env:"LEDGERDEV_TOOLCHAIN_BIN_DIR"`

	// ExtraSearchDirs are probed after the built-in locations.
	ExtraSearchDirs []string `yaml:"extra_search_dirs" env:"LEDGERDEV_TOOLCHAIN_SEARCH_DIRS" envSeparator:":"`

	// VersionProbeTimeout bounds each `--version` liveness probe.
	VersionProbeTimeout string `yaml:"version_probe_timeout"`

	// WatchInstallDirs evicts cached paths when files disappear from probe directories.
	WatchInstallDirs bool `yaml:"watch_install_dirs" env:"LEDGERDEV_TOOLCHAIN_WATCH"`
}

// ExecutionConfig configures the process executor.
type ExecutionConfig struct {
	DefaultTimeout string `yaml:"default_timeout" env:"LEDGERDEV_EXEC_TIMEOUT"`
	MaxTimeout     string `yaml:"max_timeout"`

	// MaxOutputBytes caps combined stdout+stderr.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// Environment variables to pass through to tools
	AllowedEnvVars []string `yaml:"allowed_env_vars"`
}

// NodeConfig configures the local chain daemon.
type NodeConfig struct {
	Host    string `yaml:"host" env:"LEDGERDEV_NODE_HOST"`
	Port    int    `yaml:"port" env:"LEDGERDEV_NODE_PORT"`
	ChainID uint64 `yaml:"chain_id" env:"LEDGERDEV_NODE_CHAIN_ID"`

	SettleInterval     string `yaml:"settle_interval"`
	StopSettleInterval string `yaml:"stop_settle_interval"`
	ProbeTimeout       string `yaml:"probe_timeout"`
	ProbeInterval      string `yaml:"probe_interval"`
	StartupProbes      int    `yaml:"startup_probes"`
	StartGrace         string `yaml:"start_grace"`

	// ExtraArgs are appended to the daemon command line.
	ExtraArgs []string `yaml:"extra_args"`

	// LogFile receives the detached daemon's stdout and stderr.
	LogFile string `yaml:"log_file" env:"LEDGERDEV_NODE_LOG"`
}

// QueryClientConfig configures cast invocations.
type QueryClientConfig struct {
	// RPCURL defaults to the local node endpoint when empty.
	RPCURL     string `yaml:"rpc_url" env:"LEDGERDEV_RPC_URL"`
	PrivateKey string `yaml:"private_key" env:"LEDGERDEV_PRIVATE_KEY"`
}

// AuditConfig configures the execution audit store.
type AuditConfig struct {
	Enabled      bool   `yaml:"enabled" env:"LEDGERDEV_AUDIT"`
	DatabasePath string `yaml:"database_path" env:"LEDGERDEV_AUDIT_DB"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"LEDGERDEV_ADDR"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" env:"LEDGERDEV_LOG_LEVEL"` // debug, info, warn, error
	Format     string          `yaml:"format"`                          // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories"`
}

// IsCategoryEnabled returns whether logging is enabled for a category.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Name: "ledgerdev",

		Project: ProjectConfig{
			Root: "contracts",
		},

		Toolchain: ToolchainConfig{
			ManagerBinDir:       filepath.Join(home, ".foundry", "bin"),
			VersionProbeTimeout: "3s",
		},

		Execution: ExecutionConfig{
			DefaultTimeout: "60s",
			MaxTimeout:     "10m",
			MaxOutputBytes: 10 * 1024 * 1024,
			AllowedEnvVars: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "FOUNDRY_PROFILE", "ETH_RPC_URL"},
		},

		Node: NodeConfig{
			Host:               "127.0.0.1",
			Port:               8545,
			ChainID:            31337,
			SettleInterval:     "2s",
			StopSettleInterval: "1s",
			ProbeTimeout:       "2s",
			ProbeInterval:      "1s",
			StartupProbes:      3,
			StartGrace:         "15s",
			LogFile:            filepath.Join(os.TempDir(), "ledgerdev-anvil.log"),
		},

		Audit: AuditConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(".ledgerdev", "audit.db"),
		},

		Server: ServerConfig{
			Addr: "127.0.0.1:7070",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies LEDGERDEV_* environment variables over file values.
func (c *Config) applyEnvOverrides() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Node.Port <= 0 || c.Node.Port > 65535 {
		return fmt.Errorf("invalid node port: %d", c.Node.Port)
	}
	if c.Node.ChainID == 0 {
		return fmt.Errorf("node chain_id must be set")
	}
	if c.Execution.MaxOutputBytes <= 0 {
		return fmt.Errorf("execution max_output_bytes must be positive")
	}
	if c.Project.Root == "" {
		return fmt.Errorf("project root must be set")
	}
	return nil
}

// NodeEndpoint returns the JSON-RPC endpoint of the local node.
func (c *Config) NodeEndpoint() string {
	return fmt.Sprintf("http://%s:%d", c.Node.Host, c.Node.Port)
}

// RPCURL returns the endpoint used by query-client calls.
func (c *Config) RPCURL() string {
	if c.QueryClient.RPCURL != "" {
		return c.QueryClient.RPCURL
	}
	return c.NodeEndpoint()
}

// GetExecutionTimeout returns the default execution timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	return parseDuration(c.Execution.DefaultTimeout, 60*time.Second)
}

// GetMaxTimeout returns the cap applied to caller-specified timeouts.
func (c *Config) GetMaxTimeout() time.Duration {
	return parseDuration(c.Execution.MaxTimeout, 10*time.Minute)
}

// GetVersionProbeTimeout returns the resolver's `--version` probe timeout.
func (c *Config) GetVersionProbeTimeout() time.Duration {
	return parseDuration(c.Toolchain.VersionProbeTimeout, 3*time.Second)
}

// GetSettleInterval returns the wait after spawning the daemon.
func (c *Config) GetSettleInterval() time.Duration {
	return parseDuration(c.Node.SettleInterval, 2*time.Second)
}

// GetStopSettleInterval returns the wait between termination signals.
func (c *Config) GetStopSettleInterval() time.Duration {
	return parseDuration(c.Node.StopSettleInterval, time.Second)
}

// GetProbeTimeout returns the health probe round-trip timeout.
func (c *Config) GetProbeTimeout() time.Duration {
	return parseDuration(c.Node.ProbeTimeout, 2*time.Second)
}

// GetProbeInterval returns the wait between startup health probes.
func (c *Config) GetProbeInterval() time.Duration {
	return parseDuration(c.Node.ProbeInterval, time.Second)
}

// GetStartGrace returns how long an unhealthy daemon counts as starting.
func (c *Config) GetStartGrace() time.Duration {
	return parseDuration(c.Node.StartGrace, 15*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
