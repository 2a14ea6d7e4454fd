// Package config loads dotpost configuration from YAML with environment overrides.
package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/bryan-buckman/dotpost/internal/database"
	"github.com/bryan-buckman/dotpost/internal/logging"
	"github.com/bryan-buckman/dotpost/internal/paging"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// Environment overrides.
const (
	EnvAddr     = "DOTPOST_ADDR"
	EnvDSN      = "DOTPOST_DATABASE_DSN"
	EnvBaseURL  = "DOTPOST_BASE_URL"
	EnvUsername = "DOTPOST_USERNAME"
	EnvLogLevel = "DOTPOST_LOG_LEVEL"
)

// ServerConfig is the listen address of the REST API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the storage driver and its connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// PagingConfig bounds list requests.
type PagingConfig struct {
	DefaultSize int    `yaml:"default_size"`
	MaxSize     int    `yaml:"max_size"`
	Overflow    string `yaml:"overflow"`
}

// SearchConfig chooses the fields a search matches.
type SearchConfig struct {
	Fields        []string `yaml:"fields"`
	CaseSensitive bool     `yaml:"case_sensitive"`
}

// Feed is an external RSS/Atom source imported as posts.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SyndicationConfig controls feed import.
type SyndicationConfig struct {
	Enabled bool   `yaml:"enabled"`
	Author  string `yaml:"author"`
	Feeds   []Feed `yaml:"feeds"`
}

// ClientConfig points the CLI at a running server.
type ClientConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Timeout  string `yaml:"timeout"`
}

// Config is the full dotpost configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Paging      PagingConfig      `yaml:"paging"`
	Search      SearchConfig      `yaml:"search"`
	Syndication SyndicationConfig `yaml:"syndication"`
	Client      ClientConfig      `yaml:"client"`
	Logging     logging.Config    `yaml:"logging"`
}

// DatabaseDSN returns the configured DSN, defaulting to the XDG data path for sqlite.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return DatabasePath()
}

// OverflowPolicy returns the parsed paging overflow policy.
func (c *Config) OverflowPolicy() paging.OverflowPolicy {
	p, err := paging.ParseOverflowPolicy(c.Paging.Overflow)
	if err != nil {
		return paging.OverflowClamp
	}
	return p
}

// DefaultPageParams returns the first page at the configured default size.
func (c *Config) DefaultPageParams() paging.Params {
	p := paging.NewParams()
	if c.Paging.DefaultSize > 0 {
		p.PageSize = c.Paging.DefaultSize
	}
	return p
}

// ClientTimeout returns the client request timeout, defaulting to 30s.
func (c *Config) ClientTimeout() time.Duration {
	d, err := time.ParseDuration(c.Client.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "dotpost", "config.yaml")
}

func DatabasePath() string {
	return filepath.Join(xdg.DataHome, "dotpost", "dotpost.db")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the config at path (or the default path) over the embedded
// defaults, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Non-fatal: just use embedded defaults
		_ = writeDefaults(path)
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Addr, EnvAddr)
	set(&cfg.Database.DSN, EnvDSN)
	set(&cfg.Client.BaseURL, EnvBaseURL)
	set(&cfg.Client.Username, EnvUsername)
	set(&cfg.Logging.Level, EnvLogLevel)
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver: unknown driver %q (valid: sqlite, postgres)", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn: required for postgres")
	}
	if cfg.Paging.DefaultSize < 1 {
		return fmt.Errorf("paging.default_size: must be >= 1, got %d", cfg.Paging.DefaultSize)
	}
	if cfg.Paging.MaxSize < cfg.Paging.DefaultSize {
		return fmt.Errorf("paging.max_size: must be >= default_size (%d), got %d", cfg.Paging.DefaultSize, cfg.Paging.MaxSize)
	}
	if _, err := paging.ParseOverflowPolicy(cfg.Paging.Overflow); err != nil {
		return fmt.Errorf("paging.overflow: %w", err)
	}
	if len(cfg.Search.Fields) == 0 {
		return fmt.Errorf("search.fields: at least one field is required")
	}
	for _, f := range cfg.Search.Fields {
		if f != database.FieldTitle && f != database.FieldContent {
			return fmt.Errorf("search.fields: unknown field %q (valid: title, content)", f)
		}
	}
	if cfg.Syndication.Enabled && cfg.Syndication.Author == "" {
		return fmt.Errorf("syndication.author: required when syndication is enabled")
	}
	for i, f := range cfg.Syndication.Feeds {
		if err := validateURL(f.URL); err != nil {
			return fmt.Errorf("syndication.feeds[%d] %q: %w", i, f.Name, err)
		}
	}
	if err := validateURL(cfg.Client.BaseURL); err != nil {
		return fmt.Errorf("client.base_url: %w", err)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
