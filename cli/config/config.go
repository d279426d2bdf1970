package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pithecene-io/deliorder/guard"
	"github.com/pithecene-io/deliorder/types"
)

// Registry backends.
const (
	RegistryRemote = "remote"
	RegistryRedis  = "redis"
	RegistrySQLite = "sqlite"
	RegistryMemory = "memory"
)

// Ledger backends.
const (
	LedgerFS = "fs"
	LedgerS3 = "s3"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// MaxSerialLength bounds serial_length.
const MaxSerialLength = 12

// Config represents a deliorder.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	// Author is the default package author for compose.
	Author       string         `yaml:"author"`
	SerialLength int            `yaml:"serial_length"`
	PackageTTL   Duration       `yaml:"package_ttl"`
	Registry     RegistryConfig `yaml:"registry"`
	Storage      StorageConfig  `yaml:"storage"`
	Ledger       LedgerConfig   `yaml:"ledger"`
	Guard        GuardConfig    `yaml:"guard"`
	Adapter      AdapterConfig  `yaml:"adapter"`
}

// RegistryConfig selects where packages are stored.
type RegistryConfig struct {
	Backend string `yaml:"backend"`
	// URL is the remote API base URL or the redis URL.
	URL string `yaml:"url"`
	// Path is the sqlite database file.
	Path   string `yaml:"path"`
	Prefix string `yaml:"prefix,omitempty"`
	// HistoryRetention keeps expired packages listable in history.
	HistoryRetention Duration `yaml:"history_retention,omitempty"`
	Timeout          Duration `yaml:"timeout,omitempty"`
}

// StorageConfig holds the S3 location that carries create payloads.
type StorageConfig struct {
	// Path is "bucket" or "bucket/prefix".
	Path        string   `yaml:"path"`
	Region      string   `yaml:"region"`
	Endpoint    string   `yaml:"endpoint"`
	S3PathStyle bool     `yaml:"s3_path_style"`
	PresignTTL  Duration `yaml:"presign_ttl,omitempty"`
}

// Enabled reports whether payloads are off-loaded to S3.
func (s StorageConfig) Enabled() bool { return s.Path != "" }

// LedgerConfig holds where execution outcomes are recorded.
type LedgerConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Enabled reports whether outcomes are recorded.
func (l LedgerConfig) Enabled() bool { return l.Backend != "" }

// GuardConfig adjusts the critical-path denylist.
type GuardConfig struct {
	// Platform overrides the embedded denylist selection.
	Platform string `yaml:"platform"`
	// Extra entries are appended to the embedded list.
	Extra []guard.Entry `yaml:"extra"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	// Backlog keeps the last BacklogSize events in a redis list.
	Backlog     bool     `yaml:"backlog,omitempty"`
	BacklogSize int      `yaml:"backlog_size,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
	Retries     *int     `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.SerialLength < 0 || c.SerialLength > MaxSerialLength {
		errs = append(errs, fmt.Errorf("serial_length must be at most %d (0 for the default)", MaxSerialLength))
	}
	if ttl := c.PackageTTL.Duration; ttl != 0 && ttl != types.PackageTTL {
		errs = append(errs, fmt.Errorf("package_ttl is fixed at %s", types.PackageTTL))
	}

	switch c.Registry.Backend {
	case "", RegistryMemory, RegistrySQLite:
	case RegistryRemote, RegistryRedis:
		if c.Registry.URL == "" {
			errs = append(errs, fmt.Errorf("registry.url is required for the %s backend", c.Registry.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown registry.backend %q", c.Registry.Backend))
	}

	switch c.Ledger.Backend {
	case "":
	case LedgerFS, LedgerS3:
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("ledger.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend))
	}

	if c.Guard.Platform != "" && !slices.Contains(guard.SupportedPlatforms(), c.Guard.Platform) {
		errs = append(errs, fmt.Errorf("no denylist for guard.platform %q", c.Guard.Platform))
	}
	for i, e := range c.Guard.Extra {
		if e.Path == "" {
			errs = append(errs, fmt.Errorf("guard.extra[%d]: path is required", i))
		}
		if e.Scope != guard.ScopeUser && e.Scope != guard.ScopeSystem {
			errs = append(errs, fmt.Errorf("guard.extra[%d]: scope must be user or system", i))
		}
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, errors.New("adapter.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter.type %q", c.Adapter.Type))
	}

	return errors.Join(errs...)
}
