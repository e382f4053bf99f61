// Package config provides configuration parsing and validation for echoping.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/echoping/internal/icmp"
)

// MaxPayloadSize is the largest echo payload that fits in one IPv4 datagram.
const MaxPayloadSize = 65535 - 20 - icmp.HeaderLen

// Config represents the complete echoping configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Ping    PingConfig    `yaml:"ping"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// PingConfig contains echo session settings.
type PingConfig struct {
	Count         int           `yaml:"count"`
	Timeout       time.Duration `yaml:"timeout"`
	PayloadSize   string        `yaml:"payload_size"`   // e.g. "32", "56B", "1KiB"
	Interval      time.Duration `yaml:"interval"`       // 0 = back-to-back
	LenientDecode bool          `yaml:"lenient_decode"` // report bad replies as zero messages
	AllowedCIDRs  []string      `yaml:"allowed_cidrs"`
}

// MetricsConfig controls how session metrics are exposed.
type MetricsConfig struct {
	Address string `yaml:"address"` // HTTP listen address, empty = disabled
	File    string `yaml:"file"`    // text exposition dump after the session
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Ping: PingConfig{
			Count:       icmp.DefaultCount,
			Timeout:     icmp.DefaultTimeout,
			PayloadSize: fmt.Sprintf("%d", icmp.DefaultPayloadSize),
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default when VAR is unset; unknown plain
// references are left as written.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Ping.Count < 1 {
		errs = append(errs, "ping.count must be positive")
	}
	if c.Ping.Count > icmp.MaxCount {
		errs = append(errs, fmt.Sprintf("ping.count must not exceed %d", icmp.MaxCount))
	}
	if c.Ping.Timeout <= 0 {
		errs = append(errs, "ping.timeout must be positive")
	}
	if c.Ping.Interval < 0 {
		errs = append(errs, "ping.interval must not be negative")
	}
	if _, err := c.PayloadBytes(); err != nil {
		errs = append(errs, err.Error())
	}
	for i, cidr := range c.Ping.AllowedCIDRs {
		if !isValidCIDR(cidr) {
			errs = append(errs, fmt.Sprintf("ping.allowed_cidrs[%d]: invalid CIDR: %s", i, cidr))
		}
	}

	if c.Metrics.Address != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			errs = append(errs, fmt.Sprintf("invalid metrics.address: %s", c.Metrics.Address))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// PayloadBytes returns ping.payload_size in bytes.
func (c *Config) PayloadBytes() (int, error) {
	n, err := humanize.ParseBytes(c.Ping.PayloadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid ping.payload_size: %s", c.Ping.PayloadSize)
	}
	if n > MaxPayloadSize {
		return 0, fmt.Errorf("ping.payload_size %s exceeds %d bytes", c.Ping.PayloadSize, MaxPayloadSize)
	}
	return int(n), nil
}

// ICMP converts the ping section into an icmp.Config.
func (c *Config) ICMP() (icmp.Config, error) {
	size, err := c.PayloadBytes()
	if err != nil {
		return icmp.Config{}, err
	}
	cidrs, err := icmp.ParseCIDRs(c.Ping.AllowedCIDRs)
	if err != nil {
		return icmp.Config{}, err
	}
	return icmp.Config{
		Count:         c.Ping.Count,
		Timeout:       c.Ping.Timeout,
		PayloadSize:   size,
		Interval:      c.Ping.Interval,
		LenientDecode: c.Ping.LenientDecode,
		AllowedCIDRs:  cidrs,
	}, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

func isValidCIDR(cidr string) bool {
	_, _, err := net.ParseCIDR(cidr)
	return err == nil
}

// String returns a YAML representation of the config (for debugging).
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
