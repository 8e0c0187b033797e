// Package config loads avscand's configuration from a YAML file, .env file,
// and environment variable overrides, in that order of increasing priority.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Admin   AdminConfig   `yaml:"admin"`
	Dirs    DirConfig     `yaml:"dirs"`
	Scanner ScannerConfig `yaml:"scanner"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig controls the client-facing TCP endpoint.
type ServerConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	MaxClients    int    `yaml:"max_clients"`
	ReadBufferLen int    `yaml:"read_buffer_len"`
}

// AdminConfig controls the admin Unix-domain endpoint.
type AdminConfig struct {
	SocketPath     string `yaml:"socket_path"`
	IdleTimeoutSec int    `yaml:"idle_timeout_sec"`
	AuthToken      string `yaml:"auth_token"`
}

// DirConfig controls the on-disk layout.
type DirConfig struct {
	Logs       string `yaml:"logs"`
	Processing string `yaml:"processing"`
	Outgoing   string `yaml:"outgoing"`
}

// ScannerConfig controls the external scanner adapter.
type ScannerConfig struct {
	BinaryPath string   `yaml:"binary_path"`
	Args       []string `yaml:"args"`
	TimeoutSec int      `yaml:"timeout_sec"`
}

// LoggingConfig controls the logger sink.
type LoggingConfig struct {
	Level        string `yaml:"level"`
	RingCapacity int    `yaml:"ring_capacity"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // port 0 disables it; empty means the 127.0.0.1:9090 default
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide config, loading it on first use.
func Get() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		cfg, err := LoadConfig(getEnv("AVSCAN_CONFIG", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
			cfg = &Config{}
		}
		cfg.applyDefaults()
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig reads and parses a YAML config file. A missing file is not an
// error; callers fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MaxClients == 0 {
		c.Server.MaxClients = 100
	}
	if c.Server.ReadBufferLen == 0 {
		c.Server.ReadBufferLen = 4096
	}
	if c.Admin.SocketPath == "" {
		c.Admin.SocketPath = "/tmp/antivirus_admin.sock"
	}
	if c.Admin.IdleTimeoutSec == 0 {
		c.Admin.IdleTimeoutSec = 300
	}
	if c.Dirs.Logs == "" {
		c.Dirs.Logs = "logs"
	}
	if c.Dirs.Processing == "" {
		c.Dirs.Processing = "processing"
	}
	if c.Dirs.Outgoing == "" {
		c.Dirs.Outgoing = "outgoing"
	}
	if c.Scanner.BinaryPath == "" {
		c.Scanner.BinaryPath = "clamscan"
	}
	if c.Scanner.TimeoutSec == 0 {
		c.Scanner.TimeoutSec = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.RingCapacity == 0 {
		c.Logging.RingCapacity = 500
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "127.0.0.1:9090"
	}
}

func (c *Config) applyEnvOverrides() {
	c.Server.ListenAddr = getEnv("AVSCAN_LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.MaxClients = getEnvInt("AVSCAN_MAX_CLIENTS", c.Server.MaxClients)
	c.Admin.SocketPath = getEnv("AVSCAN_ADMIN_SOCKET", c.Admin.SocketPath)
	c.Admin.IdleTimeoutSec = getEnvInt("AVSCAN_ADMIN_IDLE_SEC", c.Admin.IdleTimeoutSec)
	c.Admin.AuthToken = getEnv("AVSCAN_ADMIN_TOKEN", c.Admin.AuthToken)
	c.Dirs.Logs = getEnv("AVSCAN_LOGS_DIR", c.Dirs.Logs)
	c.Dirs.Processing = getEnv("AVSCAN_PROCESSING_DIR", c.Dirs.Processing)
	c.Dirs.Outgoing = getEnv("AVSCAN_OUTGOING_DIR", c.Dirs.Outgoing)
	c.Scanner.BinaryPath = getEnv("AVSCAN_SCANNER_BIN", c.Scanner.BinaryPath)
	c.Scanner.TimeoutSec = getEnvInt("AVSCAN_SCANNER_TIMEOUT_SEC", c.Scanner.TimeoutSec)
	c.Logging.Level = getEnv("AVSCAN_LOG_LEVEL", c.Logging.Level)
	c.Metrics.ListenAddr = getEnv("AVSCAN_METRICS_ADDR", c.Metrics.ListenAddr)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
