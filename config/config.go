// Package config loads and validates dhcpd's runtime configuration
// from environment variables, sectioned by subsystem the way the
// teacher sectioned DBConfig/HTTPConfig.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dhcpd/internal/apperr"
	"dhcpd/internal/validate"
)

// Config is the top-level configuration tree, one section per
// subsystem wired by server.Context.
type Config struct {
	Journal JournalConfig
	Network NetworkConfig
	Parser  ParserConfig
	Control ControlConfig
	Metrics MetricsConfig
	Auth    AuthConfig
	Probe   ProbeConfig
	DNS     DNSConfig
	TFTP    TFTPConfig
	Log     LogConfig
}

// JournalConfig locates the append-only lease journal and its
// rewrite-compaction threshold.
type JournalConfig struct {
	Path      string
	Threshold int
	SnapDB    string
}

// NetworkConfig names the interfaces the DHCPv4/v6 listeners bind.
type NetworkConfig struct {
	Interfaces []string
	ServerIP   string
}

// ParserConfig locates the dhcpd.conf-style configuration file.
type ParserConfig struct {
	Path string
}

// ControlConfig locates the AF_UNIX admin control socket.
type ControlConfig struct {
	SocketPath string
}

// MetricsConfig configures the HTTP status/Prometheus surface.
type MetricsConfig struct {
	Port string
}

// AuthConfig locates the shared symmetric key file used for TSIG-style
// HMAC authentication between failover peers.
type AuthConfig struct {
	KeyFile string
}

// ProbeConfig bounds ICMP ping-check probing before offering an
// address.
type ProbeConfig struct {
	Timeout        time.Duration
	MaxOutstanding int
}

// DNSConfig names the resolver and zone used for dynamic DNS updates.
type DNSConfig struct {
	Resolver string
	Zone     string
}

// TFTPConfig locates the directory the boot-file server serves from.
type TFTPConfig struct {
	Dir  string
	Port int
}

// LogConfig controls where process logs go. An empty File keeps
// logging on stdout; a non-empty File is rotated through lumberjack
// instead of growing without bound.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads and validates configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Journal: JournalConfig{
			Path:      getEnv("JOURNAL_PATH", "./dhcpd.leases"),
			Threshold: getEnvInt("JOURNAL_THRESHOLD", 100),
			SnapDB:    getEnv("JOURNAL_SNAPSHOT_DB", "./dhcpd.snapshot.db"),
		},
		Network: NetworkConfig{
			Interfaces: []string{getEnv("NETWORK_INTERFACE", "eth0")},
			ServerIP:   getEnv("SERVER_IP", "0.0.0.0"),
		},
		Parser: ParserConfig{
			Path: getEnv("CONF_PATH", "./dhcpd.conf"),
		},
		Control: ControlConfig{
			SocketPath: getEnv("CONTROL_SOCKET", "./dhcpd.sock"),
		},
		Metrics: MetricsConfig{
			Port: getEnv("METRICS_PORT", "8080"),
		},
		Auth: AuthConfig{
			KeyFile: getEnv("AUTH_KEY_FILE", "./dhcpd.keys"),
		},
		Probe: ProbeConfig{
			Timeout:        getEnvDuration("PROBE_TIMEOUT", time.Second),
			MaxOutstanding: getEnvInt("PROBE_MAX_OUTSTANDING", 16),
		},
		DNS: DNSConfig{
			Resolver: getEnv("DNS_RESOLVER", "127.0.0.1:53"),
			Zone:     getEnv("DNS_ZONE", ""),
		},
		TFTP: TFTPConfig{
			Dir:  getEnv("TFTP_DIR", "./public/tftp"),
			Port: getEnvInt("TFTP_PORT", 69),
		},
		Log: LogConfig{
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   getEnv("LOG_COMPRESS", "") == "true",
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperr.Configuration("load_config", err)
	}

	return cfg, nil
}

// Validate checks required fields, port ranges, and ensures directory
// dependencies exist.
func (c *Config) Validate() error {
	if err := validate.Required("journal_path", c.Journal.Path); err != nil {
		return err
	}
	if err := validate.Required("conf_path", c.Parser.Path); err != nil {
		return err
	}
	if err := validate.Required("control_socket", c.Control.SocketPath); err != nil {
		return err
	}
	if err := validate.Port(c.Metrics.Port); err != nil {
		return err
	}
	if err := validate.IP(c.Network.ServerIP); err != nil {
		return err
	}
	if len(c.Network.Interfaces) == 0 {
		return validate.Required("network_interfaces", "")
	}

	if err := c.ensureDirectories(); err != nil {
		return err
	}

	return nil
}

// ensureDirectories creates the directories this configuration depends
// on if they don't already exist (the TFTP boot-file root and the
// parent directories of the journal and control socket).
func (c *Config) ensureDirectories() error {
	dirs := []struct {
		path string
		name string
	}{
		{c.TFTP.Dir, "TFTP directory"},
		{filepath.Dir(c.Journal.Path), "journal directory"},
		{filepath.Dir(c.Control.SocketPath), "control socket directory"},
	}

	for _, dir := range dirs {
		if dir.path == "" || dir.path == "." {
			continue
		}
		if _, err := os.Stat(dir.path); os.IsNotExist(err) {
			if err := os.MkdirAll(dir.path, 0755); err != nil {
				return fmt.Errorf("failed to create %s (%s): %w", dir.name, dir.path, err)
			}
		}
	}

	return nil
}

// MetricsPortInt returns the metrics HTTP port as an integer.
func (c *Config) MetricsPortInt() (int, error) {
	port, err := strconv.Atoi(c.Metrics.Port)
	if err != nil {
		return 0, fmt.Errorf("invalid port number: %w", err)
	}
	return port, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
