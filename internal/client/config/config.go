package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Transport names.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Config holds runtime settings for the bizsync CLI.
type Config struct {
	// ServerEndpointAddr is host:port of the gRPC endpoint.
	ServerEndpointAddr string `mapstructure:"server"`
	Transport          string `mapstructure:"transport"`
	// HTTPBaseURL is used when Transport is "http".
	HTTPBaseURL string `mapstructure:"http_url"`

	DataDir      string `mapstructure:"data_dir"`
	DatabaseFile string `mapstructure:"database_file"`
	// FallbackFile is the JSON snapshot used when SQLite fails.
	FallbackFile string `mapstructure:"fallback_file"`

	OnlineCheckInterval   time.Duration `mapstructure:"online_check_interval"`
	StableConnectionDelay time.Duration `mapstructure:"stable_connection_delay"`
	SyncInterval          time.Duration `mapstructure:"sync_interval"`
	RemoteTimeout         time.Duration `mapstructure:"remote_timeout"`
	MaxAttempts           int           `mapstructure:"max_attempts"`
	BackoffBase           time.Duration `mapstructure:"backoff_base"`
	BackoffMax            time.Duration `mapstructure:"backoff_max"`

	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
	Verbose  bool   `mapstructure:"verbose"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Transport = TransportGRPC
	c.HTTPBaseURL = "http://127.0.0.1:8080"
	c.DataDir = defaultDataDir()
	c.DatabaseFile = "bizsync.db"
	c.FallbackFile = "offline.json"
	c.OnlineCheckInterval = 3 * time.Second
	c.StableConnectionDelay = 2 * time.Second
	c.SyncInterval = 30 * time.Second
	c.RemoteTimeout = 20 * time.Second
	c.MaxAttempts = 5
	c.BackoffBase = 2 * time.Second
	c.BackoffMax = 5 * time.Minute
	c.LogFile = "bizsync.log"
	c.LogLevel = "info"
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bizsync"
	}
	return filepath.Join(home, ".bizsync")
}

// Validate checks values that would make the client unusable.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportGRPC:
		if c.ServerEndpointAddr == "" {
			return errors.New("server address is required")
		}
	case TransportHTTP:
		if c.HTTPBaseURL == "" {
			return errors.New("http url is required")
		}
	default:
		return fmt.Errorf("unknown transport %q (valid: grpc, http)", c.Transport)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.OnlineCheckInterval <= 0 || c.SyncInterval <= 0 {
		return errors.New("intervals must be positive")
	}
	return nil
}

// Path resolves name inside DataDir unless it is already absolute.
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// LoadConfig builds a Config from defaults, the optional file, the
// environment and fs, in that order. fs may be nil.
func LoadConfig(file string, fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix("BIZSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("server", c.ServerEndpointAddr)
	v.SetDefault("transport", c.Transport)
	v.SetDefault("http_url", c.HTTPBaseURL)
	v.SetDefault("data_dir", c.DataDir)
	v.SetDefault("database_file", c.DatabaseFile)
	v.SetDefault("fallback_file", c.FallbackFile)
	v.SetDefault("online_check_interval", c.OnlineCheckInterval)
	v.SetDefault("stable_connection_delay", c.StableConnectionDelay)
	v.SetDefault("sync_interval", c.SyncInterval)
	v.SetDefault("remote_timeout", c.RemoteTimeout)
	v.SetDefault("max_attempts", c.MaxAttempts)
	v.SetDefault("backoff_base", c.BackoffBase)
	v.SetDefault("backoff_max", c.BackoffMax)
	v.SetDefault("log_file", c.LogFile)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("verbose", c.Verbose)
}
