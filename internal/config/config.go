package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/joaquin95/loldownloader/internal/codec"
	dlhttp "github.com/joaquin95/loldownloader/internal/http"
	"github.com/joaquin95/loldownloader/internal/progress"
	"github.com/joaquin95/loldownloader/pkg/release"
)

const (
	DefaultBaseURL      = "l3cdn.riotgames.com"
	DefaultDownloadPath = "/releases/live"
	DefaultDestRoot     = "lol"
)

// Config defines configuration for the loldownloader CLI.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	DownloadPath   string        `yaml:"download_path"`
	Version        string        `yaml:"version"`
	DestRoot       string        `yaml:"dest"`
	Individual     bool          `yaml:"individual"`
	Force          bool          `yaml:"force"`
	KeepArchives   bool          `yaml:"keep_archives"`
	Codec          string        `yaml:"codec"`
	MaxArchives    int           `yaml:"max_archives"`
	BandwidthLimit int64         `yaml:"bandwidth_limit"`
	Progress       bool          `yaml:"progress"`
	JournalPath    string        `yaml:"journal"`
	Export         ExportConfig  `yaml:"export"`
	Timeout        time.Duration `yaml:"timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// ExportConfig defines where downloaded archives are mirrored.
type ExportConfig struct {
	Bucket string `yaml:"bucket"` // empty disables export
	Prefix string `yaml:"prefix"` // defaults to the game version
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		DownloadPath: DefaultDownloadPath,
		DestRoot:     DefaultDestRoot,
		Codec:        codec.Deflate,
		MaxArchives:  release.DefaultMaxArchives,
		Progress:     true,
		Timeout:      30 * time.Second,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
// Booleans are pointers so a file can turn a default off.
type yamlConfig struct {
	BaseURL        string          `yaml:"base_url"`
	DownloadPath   string          `yaml:"download_path"`
	Version        string          `yaml:"version"`
	DestRoot       string          `yaml:"dest"`
	Individual     *bool           `yaml:"individual"`
	Force          *bool           `yaml:"force"`
	KeepArchives   *bool           `yaml:"keep_archives"`
	Codec          string          `yaml:"codec"`
	MaxArchives    int             `yaml:"max_archives"`
	BandwidthLimit string          `yaml:"bandwidth_limit"`
	Progress       *bool           `yaml:"progress"`
	JournalPath    string          `yaml:"journal"`
	Export         ExportConfig    `yaml:"export"`
	Timeout        string          `yaml:"timeout"`
	Retry          yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerr.Wrap(err, "read config file", goerr.V("path", path))
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, goerr.Wrap(err, "parse config file", goerr.V("path", path))
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.DownloadPath != "" {
		cfg.DownloadPath = yc.DownloadPath
	}
	if yc.Version != "" {
		cfg.Version = yc.Version
	}
	if yc.DestRoot != "" {
		cfg.DestRoot = yc.DestRoot
	}
	setBool(&cfg.Individual, yc.Individual)
	setBool(&cfg.Force, yc.Force)
	setBool(&cfg.KeepArchives, yc.KeepArchives)
	setBool(&cfg.Progress, yc.Progress)
	if yc.Codec != "" {
		cfg.Codec = yc.Codec
	}
	if yc.MaxArchives != 0 {
		cfg.MaxArchives = yc.MaxArchives
	}
	if yc.BandwidthLimit != "" {
		limit, err := progress.ParseBytes(yc.BandwidthLimit)
		if err != nil {
			return Config{}, goerr.Wrap(err, "parse bandwidth_limit")
		}
		cfg.BandwidthLimit = limit
	}
	if yc.JournalPath != "" {
		cfg.JournalPath = yc.JournalPath
	}
	if yc.Export.Bucket != "" {
		cfg.Export.Bucket = yc.Export.Bucket
	}
	if yc.Export.Prefix != "" {
		cfg.Export.Prefix = yc.Export.Prefix
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, goerr.Wrap(err, "parse timeout")
		}
		cfg.Timeout = d
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, goerr.Wrap(err, "parse retry.backoff")
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, goerr.Wrap(err, "parse retry.max_backoff")
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the LOLDL_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("LOLDL_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LOLDL_DOWNLOAD_PATH"); v != "" {
		c.DownloadPath = v
	}
	if v := os.Getenv("LOLDL_VERSION"); v != "" {
		c.Version = v
	}
	if v := os.Getenv("LOLDL_DEST"); v != "" {
		c.DestRoot = v
	}
	for name, dst := range map[string]*bool{
		"LOLDL_INDIVIDUAL":    &c.Individual,
		"LOLDL_FORCE":         &c.Force,
		"LOLDL_KEEP_ARCHIVES": &c.KeepArchives,
		"LOLDL_PROGRESS":      &c.Progress,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return goerr.Wrap(err, "parse "+name, goerr.V("value", v))
		}
		*dst = b
	}
	if v := os.Getenv("LOLDL_CODEC"); v != "" {
		c.Codec = v
	}
	if v := os.Getenv("LOLDL_MAX_ARCHIVES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return goerr.Wrap(err, "parse LOLDL_MAX_ARCHIVES", goerr.V("value", v))
		}
		c.MaxArchives = n
	}
	if v := os.Getenv("LOLDL_BANDWIDTH_LIMIT"); v != "" {
		limit, err := progress.ParseBytes(v)
		if err != nil {
			return goerr.Wrap(err, "parse LOLDL_BANDWIDTH_LIMIT", goerr.V("value", v))
		}
		c.BandwidthLimit = limit
	}
	if v := os.Getenv("LOLDL_JOURNAL"); v != "" {
		c.JournalPath = v
	}
	if v := os.Getenv("LOLDL_EXPORT_BUCKET"); v != "" {
		c.Export.Bucket = v
	}
	if v := os.Getenv("LOLDL_EXPORT_PREFIX"); v != "" {
		c.Export.Prefix = v
	}
	for name, dst := range map[string]*time.Duration{
		"LOLDL_TIMEOUT":           &c.Timeout,
		"LOLDL_RETRY_BACKOFF":     &c.Retry.Backoff,
		"LOLDL_RETRY_MAX_BACKOFF": &c.Retry.MaxBackoff,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return goerr.Wrap(err, "parse "+name, goerr.V("value", v))
		}
		*dst = d
	}
	if v := os.Getenv("LOLDL_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return goerr.Wrap(err, "parse LOLDL_RETRY_ATTEMPTS", goerr.V("value", v))
		}
		c.Retry.Attempts = n
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return goerr.New("config: version is required")
	}
	if c.BaseURL == "" {
		return goerr.New("config: base URL is required")
	}
	if c.DestRoot == "" {
		return goerr.New("config: destination folder is required")
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return goerr.Wrap(err, "config: invalid codec", goerr.V("codec", c.Codec))
	}
	if c.MaxArchives <= 0 {
		return goerr.New("config: max_archives must be positive", goerr.V("max_archives", c.MaxArchives))
	}
	if c.BandwidthLimit < 0 {
		return goerr.New("config: bandwidth_limit must not be negative")
	}
	if c.Retry.Attempts < 0 {
		return goerr.New("config: retry attempts must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.DownloadPath != "" {
		c.DownloadPath = override.DownloadPath
	}
	if override.Version != "" {
		c.Version = override.Version
	}
	if override.DestRoot != "" {
		c.DestRoot = override.DestRoot
	}
	if override.Individual {
		c.Individual = true
	}
	if override.Force {
		c.Force = true
	}
	if override.KeepArchives {
		c.KeepArchives = true
	}
	if override.Codec != "" {
		c.Codec = override.Codec
	}
	if override.MaxArchives != 0 {
		c.MaxArchives = override.MaxArchives
	}
	if override.BandwidthLimit != 0 {
		c.BandwidthLimit = override.BandwidthLimit
	}
	if override.JournalPath != "" {
		c.JournalPath = override.JournalPath
	}
	if override.Export.Bucket != "" {
		c.Export.Bucket = override.Export.Bucket
	}
	if override.Export.Prefix != "" {
		c.Export.Prefix = override.Export.Prefix
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}

// Dest returns the destination folder with backslashes treated as separators.
func (c Config) Dest() string {
	return filepath.Clean(filepath.FromSlash(strings.ReplaceAll(c.DestRoot, `\`, "/")))
}

// Layout returns the release layout described by c.
func (c Config) Layout() release.Layout {
	return release.Layout{
		BaseURL:      c.BaseURL,
		DownloadPath: c.DownloadPath,
		Version:      c.Version,
		DestRoot:     c.Dest(),
		MaxArchives:  c.MaxArchives,
	}
}

// HTTPOptions returns transport options for c.
func (c Config) HTTPOptions() dlhttp.Options {
	opts := dlhttp.DefaultOptions()
	if c.Timeout > 0 {
		opts.Timeout = c.Timeout
	}
	opts.RetryAttempts = c.Retry.Attempts
	if c.Retry.Backoff > 0 {
		opts.RetryBackoff = c.Retry.Backoff
	}
	if c.Retry.MaxBackoff > 0 {
		opts.RetryMaxBackoff = c.Retry.MaxBackoff
	}
	opts.BandwidthLimit = c.BandwidthLimit
	return opts
}

// Journal returns the journal database path, defaulting to a file under the
// destination folder.
func (c Config) Journal() string {
	if c.JournalPath != "" {
		return c.JournalPath
	}
	return filepath.Join(c.Dest(), ".loldownloader", "journal.db")
}

// ExportPrefix returns the object prefix for exported archives.
func (c Config) ExportPrefix() string {
	if c.Export.Prefix != "" {
		return c.Export.Prefix
	}
	return c.Version
}
