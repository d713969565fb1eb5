package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RESALE_HOST_GAP.
const EnvPrefix = "RESALE"

// Config holds service and pipeline configuration.
type Config struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`

	UserAgent        string        `mapstructure:"user_agent"`
	RandomUserAgent  bool          `mapstructure:"random_user_agent"`
	AcceptLanguage   string        `mapstructure:"accept_language"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RetryPause       time.Duration `mapstructure:"retry_pause"`
	RelayBaseURL     string        `mapstructure:"relay_base_url"`
	ReaderBaseURL    string        `mapstructure:"reader_base_url"`
	SearchURL        string        `mapstructure:"search_url"`
	// CatalogURL is the UPC database lookup endpoint; empty disables it.
	CatalogURL       string        `mapstructure:"catalog_url"`
	ReaderFirstHosts []string      `mapstructure:"reader_first_hosts"`
	HostGap          time.Duration `mapstructure:"host_gap"`

	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	PriceMin  float64       `mapstructure:"price_min"`
	PriceMax  float64       `mapstructure:"price_max"`

	Parallelism   int    `mapstructure:"parallelism"`
	BatchSize     int    `mapstructure:"batch_size"`
	DedupeMaxSize int    `mapstructure:"dedupe_max_size"`
	OutputFile    string `mapstructure:"output_file"`
	OutputFormat  string `mapstructure:"output_format"` // csv, json, or dual

	Verbose   bool   `mapstructure:"verbose"`
	LogFormat string `mapstructure:"log_format"` // auto, text, or json
}

// DefaultConfig returns defaults suitable for the public relay and reader
// endpoints.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		RequestTimeout: 60 * time.Second,
		CORSOrigins:    []string{"*"},
		MetricsEnabled: true,

		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 13_0_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0 Safari/537.36",
		RandomUserAgent: false,
		AcceptLanguage:  "en-US,en;q=0.9",
		Timeout:         15 * time.Second,
		MaxAttempts:     2,
		RetryPause:      400 * time.Millisecond,
		RelayBaseURL:    "https://api.allorigins.win/raw",
		ReaderBaseURL:   "https://r.jina.ai",
		SearchURL:       "https://www.google.com/search",
		CatalogURL:      "https://api.upcitemdb.com/prod/trial/lookup",
		ReaderFirstHosts: []string{
			"walmart.com",
			"walmart.ca",
			"indigo.ca",
			"newegg.com",
			"ebay.",
		},
		HostGap: 600 * time.Millisecond,

		CacheSize: 200,
		CacheTTL:  5 * time.Minute,
		PriceMin:  0.5,
		PriceMax:  50000,

		Parallelism:   4,
		BatchSize:     16,
		DedupeMaxSize: 10000,
		OutputFile:    "output/reports.csv",
		OutputFormat:  "csv",

		Verbose:   false,
		LogFormat: "auto",
	}
}

// Load reads configuration from defaults, an optional file and RESALE_*
// environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("metrics_enabled", d.MetricsEnabled)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("random_user_agent", d.RandomUserAgent)
	v.SetDefault("accept_language", d.AcceptLanguage)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_attempts", d.MaxAttempts)
	v.SetDefault("retry_pause", d.RetryPause)
	v.SetDefault("relay_base_url", d.RelayBaseURL)
	v.SetDefault("reader_base_url", d.ReaderBaseURL)
	v.SetDefault("search_url", d.SearchURL)
	v.SetDefault("catalog_url", d.CatalogURL)
	v.SetDefault("reader_first_hosts", d.ReaderFirstHosts)
	v.SetDefault("host_gap", d.HostGap)
	v.SetDefault("cache_size", d.CacheSize)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("price_min", d.PriceMin)
	v.SetDefault("price_max", d.PriceMax)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("dedupe_max_size", d.DedupeMaxSize)
	v.SetDefault("output_file", d.OutputFile)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_format", d.LogFormat)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.UserAgent == "" && !c.RandomUserAgent {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryPause < 0 {
		return fmt.Errorf("retry pause cannot be negative")
	}
	for name, raw := range map[string]string{
		"relay base URL":  c.RelayBaseURL,
		"reader base URL": c.ReaderBaseURL,
		"search URL":      c.SearchURL,
	} {
		if err := validateEndpoint(name, raw); err != nil {
			return err
		}
	}
	if c.CatalogURL != "" {
		if err := validateEndpoint("catalog URL", c.CatalogURL); err != nil {
			return err
		}
	}
	if c.HostGap < 0 {
		return fmt.Errorf("host gap cannot be negative")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}
	if c.PriceMin < 0 || c.PriceMax <= c.PriceMin {
		return fmt.Errorf("price bounds must satisfy 0 <= min < max (got %v..%v)", c.PriceMin, c.PriceMax)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.LogFormat != "auto" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be auto, text, or json")
	}
	return nil
}

func validateEndpoint(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
