package config

import (
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/palomarmail/palomar/helpers"
	"github.com/palomarmail/palomar/mail"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// HTTPAPIConfig holds admin HTTP API server configuration
type HTTPAPIConfig struct {
	Start        bool     `toml:"start"`
	Addr         string   `toml:"addr"`
	APIKey       string   `toml:"api_key"`
	AllowedHosts []string `toml:"allowed_hosts"` // If empty, all hosts are allowed
}

// GetAddr returns the listen address, defaulting to :8980.
func (c *HTTPAPIConfig) GetAddr() string {
	if c.Addr == "" {
		return ":8980"
	}
	return c.Addr
}

// MetricsConfig holds Prometheus metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Path    string `toml:"path"`
}

// GetAddr returns the metrics listen address, defaulting to :9090.
func (c *MetricsConfig) GetAddr() string {
	if c.Addr == "" {
		return ":9090"
	}
	return c.Addr
}

// GetPath returns the metrics handler path, defaulting to /metrics.
func (c *MetricsConfig) GetPath() string {
	if c.Path == "" {
		return "/metrics"
	}
	return c.Path
}

// QueueConfig holds the urgent-dispatch queue configuration.
type QueueConfig struct {
	// DispatchTier is the least-urgent tier that still enters the dispatch
	// queue. "medium" (the default) queues high and medium messages; "low"
	// queues everything; "high" queues only high.
	DispatchTier string `toml:"dispatch_tier"`
	Interval     string `toml:"interval"`
	BatchSize    int    `toml:"batch_size"`
}

// GetDispatchTier parses the dispatch threshold tier.
func (c *QueueConfig) GetDispatchTier() mail.Tier {
	if c.DispatchTier == "" {
		return mail.TierMedium
	}
	return mail.ParseTier(c.DispatchTier)
}

// GetInterval parses the worker wake interval duration.
func (c *QueueConfig) GetInterval() (time.Duration, error) {
	if c.Interval == "" {
		c.Interval = "30s"
	}
	return helpers.ParseDuration(c.Interval)
}

// GetBatchSize returns the per-cycle dispatch batch size.
func (c *QueueConfig) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return 10
	}
	return c.BatchSize
}

// ServerConfig declares one node of the server network.
type ServerConfig struct {
	ID string `toml:"id"`
}

// LinkConfig declares one undirected link between two declared servers.
type LinkConfig struct {
	A string `toml:"a"`
	B string `toml:"b"`
}

// AccountConfig declares one account and the server it registers on.
// An optional Sieve script runs against every message delivered to it.
type AccountConfig struct {
	Address string `toml:"address"`
	Server  string `toml:"server"`
	Script  string `toml:"script"`
}

// FilterConfig declares one platform filter rule. Rules are registered in
// file order. Action is "set_tier" (with Tier) or "redirect" (with Folder).
type FilterConfig struct {
	Name     string `toml:"name"`
	Field    string `toml:"field"`    // "subject", "body", "from" or "to"
	Contains string `toml:"contains"` // case-insensitive substring
	Action   string `toml:"action"`
	Tier     string `toml:"tier"`
	Folder   string `toml:"folder"`
}

// Config holds all configuration for the platform.
type Config struct {
	Logging  LoggingConfig   `toml:"logging"`
	HTTPAPI  HTTPAPIConfig   `toml:"http_api"`
	Metrics  MetricsConfig   `toml:"metrics"`
	Queue    QueueConfig     `toml:"queue"`
	Servers  []ServerConfig  `toml:"servers"`
	Links    []LinkConfig    `toml:"links"`
	Accounts []AccountConfig `toml:"accounts"`
	Filters  []FilterConfig  `toml:"filters"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",  // Default to stderr
			Format: "console", // Default to console format
			Level:  "info",    // Default to info level
		},
		HTTPAPI: HTTPAPIConfig{
			Start: true,
			Addr:  ":8980",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Queue: QueueConfig{
			DispatchTier: "medium",
			Interval:     "30s",
			BatchSize:    10,
		},
	}
}

// LoadConfigFromFile loads configuration from a TOML file and trims
// whitespace from all string fields. Unknown keys are logged and ignored so
// a typo never silently configures nothing.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	metadata, err := toml.DecodeFile(configPath, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", configPath, err)
	}

	if len(metadata.Undecoded()) > 0 {
		log.Printf("WARNING: Configuration file '%s' contains unknown keys that will be ignored:", configPath)
		for _, key := range metadata.Undecoded() {
			log.Printf("WARNING:   - %s", key)
		}
	}

	trimStringFields(reflect.ValueOf(cfg).Elem())
	return nil
}

// Validate checks cross-references between sections: links and accounts must
// name declared servers, filter rules must carry a well-formed action, and
// declared identifiers must be unique.
func (c *Config) Validate() error {
	servers := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if s.ID == "" {
			return fmt.Errorf("servers: empty id")
		}
		if servers[s.ID] {
			return fmt.Errorf("servers: duplicate id %q", s.ID)
		}
		servers[s.ID] = true
	}

	for _, l := range c.Links {
		if !servers[l.A] || !servers[l.B] {
			return fmt.Errorf("links: %q-%q references an undeclared server", l.A, l.B)
		}
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if !helpers.ValidAddress(a.Address) {
			return fmt.Errorf("accounts: invalid address %q", a.Address)
		}
		key := helpers.NormalizeAddress(a.Address)
		if seen[key] {
			return fmt.Errorf("accounts: duplicate address %q", a.Address)
		}
		seen[key] = true
		if !servers[a.Server] {
			return fmt.Errorf("accounts: %q references undeclared server %q", a.Address, a.Server)
		}
	}

	names := make(map[string]bool, len(c.Filters))
	for _, f := range c.Filters {
		if f.Name == "" {
			return fmt.Errorf("filters: rule without a name")
		}
		if names[f.Name] {
			return fmt.Errorf("filters: duplicate rule name %q", f.Name)
		}
		names[f.Name] = true

		switch f.Field {
		case "subject", "body", "from", "to":
		default:
			return fmt.Errorf("filters: rule %q has unknown field %q", f.Name, f.Field)
		}
		if f.Contains == "" {
			return fmt.Errorf("filters: rule %q has an empty match string", f.Name)
		}

		switch f.Action {
		case "set_tier":
			if f.Tier == "" {
				return fmt.Errorf("filters: rule %q action set_tier requires a tier", f.Name)
			}
		case "redirect":
			if f.Folder == "" {
				return fmt.Errorf("filters: rule %q action redirect requires a folder", f.Name)
			}
		default:
			return fmt.Errorf("filters: rule %q has unknown action %q", f.Name, f.Action)
		}
	}

	if _, err := c.Queue.GetInterval(); err != nil {
		return fmt.Errorf("queue: invalid interval: %w", err)
	}

	return nil
}

// trimStringFields recursively trims whitespace from every string field of a
// struct value.
func trimStringFields(v reflect.Value) {
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(strings.TrimSpace(v.String()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			trimStringFields(v.Field(i))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			trimStringFields(v.Index(i))
		}
	case reflect.Ptr:
		if !v.IsNil() {
			trimStringFields(v.Elem())
		}
	}
}
