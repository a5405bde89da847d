package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultPort is the well-known port the primary bridge binds
	DefaultPort = 27183
	// DefaultAPIKey is the development key assumed when a request carries no key header
	DefaultAPIKey = "dev-agentic-key"
	// DefaultKeyHeader carries the shared key
	DefaultKeyHeader = "X-Api-Key"
	// DiscoveryFileName is the descriptor file name inside the temp directory
	DiscoveryFileName = "agentic_debugger.json"
	// EnvPrefix prefixes every environment override, e.g. AGENTIC_PORT
	EnvPrefix = "AGENTIC"
)

// Config holds all bridge configuration
type Config struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	APIKey        string `mapstructure:"api_key"`
	KeyHeader     string `mapstructure:"key_header"`
	DiscoveryFile string `mapstructure:"discovery_file"`

	HeartbeatInterval       time.Duration `mapstructure:"heartbeat_interval"`
	InstanceTTL             time.Duration `mapstructure:"instance_ttl"`
	SweepInterval           time.Duration `mapstructure:"sweep_interval"`
	SnapshotRefreshInterval time.Duration `mapstructure:"snapshot_refresh_interval"`
	PolicyRefreshInterval   time.Duration `mapstructure:"policy_refresh_interval"`

	PermissionsFile string `mapstructure:"permissions_file"`
	SymbolIndex     string `mapstructure:"symbol_index"`

	LogCapacity  int `mapstructure:"log_capacity"`
	LogBodyLimit int `mapstructure:"log_body_limit"`

	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	ProxyTimeout    time.Duration `mapstructure:"proxy_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CommandRate is the sustained commands per second; 0 disables the limit
	CommandRate float64 `mapstructure:"command_rate"`
	// WebSocketRate is the number of upgrades allowed per client per minute
	WebSocketRate int `mapstructure:"websocket_rate"`

	SolutionName string `mapstructure:"solution_name"`
	Environment  string `mapstructure:"environment"`
	Verbose      bool   `mapstructure:"verbose"`
}

// DefaultDiscoveryFile returns the per-user well-known descriptor location
func DefaultDiscoveryFile() string {
	return filepath.Join(os.TempDir(), DiscoveryFileName)
}

// DefaultPermissionsFile returns ~/.agentic-debugger/permissions.yaml
func DefaultPermissionsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".agentic-debugger", "permissions.yaml")
}

// SetDefaults registers every key with its default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("api_key", DefaultAPIKey)
	v.SetDefault("key_header", DefaultKeyHeader)
	v.SetDefault("discovery_file", DefaultDiscoveryFile())

	v.SetDefault("heartbeat_interval", 5*time.Second)
	v.SetDefault("instance_ttl", 15*time.Second)
	v.SetDefault("sweep_interval", 5*time.Second)
	v.SetDefault("snapshot_refresh_interval", 2*time.Second)
	v.SetDefault("policy_refresh_interval", 5*time.Second)

	v.SetDefault("permissions_file", DefaultPermissionsFile())
	v.SetDefault("symbol_index", "")

	v.SetDefault("log_capacity", 500)
	v.SetDefault("log_body_limit", 4096)

	v.SetDefault("command_timeout", 30*time.Second)
	v.SetDefault("proxy_timeout", 10*time.Second)
	v.SetDefault("shutdown_timeout", 5*time.Second)

	v.SetDefault("command_rate", 0.0)
	v.SetDefault("websocket_rate", 60)

	v.SetDefault("solution_name", "")
	v.SetDefault("environment", "development")
	v.SetDefault("verbose", false)
}

// Load resolves configuration from defaults, an optional YAML file, AGENTIC_*
// environment variables and any flags already bound on v, in increasing priority.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// defaults are all well-typed, so decoding cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects configurations that would misbehave at runtime
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.KeyHeader) == "" {
		errs = append(errs, errors.New("key_header must not be empty"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat_interval must be positive"))
	}
	if c.InstanceTTL < 2*c.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("instance_ttl (%s) must be at least twice heartbeat_interval (%s)", c.InstanceTTL, c.HeartbeatInterval))
	}
	if c.SweepInterval <= 0 || c.SnapshotRefreshInterval <= 0 || c.PolicyRefreshInterval <= 0 {
		errs = append(errs, errors.New("sweep, snapshot and policy refresh intervals must be positive"))
	}
	if c.LogCapacity <= 0 {
		errs = append(errs, errors.New("log_capacity must be positive"))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, errors.New("command_timeout must be positive"))
	}
	if c.CommandRate < 0 {
		errs = append(errs, errors.New("command_rate must not be negative"))
	}
	return errors.Join(errs...)
}

// BaseURL is the address clients use to reach a bridge on port
func (c *Config) BaseURL(port int) string {
	host := c.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}
