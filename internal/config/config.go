package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/trackwire/internal/delivery"
	"github.com/loykin/trackwire/internal/event"
	"github.com/loykin/trackwire/internal/logger"
	"github.com/loykin/trackwire/internal/transport"
)

// Config is the full agent configuration. Zero fields mean "use the
// default"; Merge applies overrides field by field with new-overrides-old
// precedence, and Normalize fills in the remaining defaults.
type Config struct {
	// Environment selects the endpoint base: "development" picks
	// DevBaseURL, anything else picks ProdBaseURL. When Host is set it
	// takes precedence over Environment (localhost-ish hosts resolve to
	// the development base).
	Environment string `toml:"environment" mapstructure:"environment"`
	Host        string `toml:"host" mapstructure:"host"`
	DevBaseURL  string `toml:"dev_base_url" mapstructure:"dev_base_url"`
	ProdBaseURL string `toml:"prod_base_url" mapstructure:"prod_base_url"`

	Endpoints EndpointPaths `toml:"endpoints" mapstructure:"endpoints"`

	FlushInterval  time.Duration `toml:"flush_interval" mapstructure:"flush_interval"`
	MaxBatchSize   int           `toml:"max_batch_size" mapstructure:"max_batch_size"`
	MaxRetries     int           `toml:"max_retries" mapstructure:"max_retries"`
	BackoffBase    time.Duration `toml:"backoff_base" mapstructure:"backoff_base"`
	RequestTimeout time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`

	// StateDSN selects the durable state store ("sqlite://path", bare
	// path, ":memory:" or "memory://").
	StateDSN string `toml:"state_dsn" mapstructure:"state_dsn"`
	// JournalDSN optionally enables the delivery journal sink
	// (sqlite/postgres/clickhouse/opensearch by scheme).
	JournalDSN string `toml:"journal_dsn" mapstructure:"journal_dsn"`

	App AppContext     `toml:"app" mapstructure:"app"`
	Log *logger.Config `toml:"log" mapstructure:"log"`
}

// EndpointPaths overrides the default route path per logical endpoint.
type EndpointPaths struct {
	Events  string `toml:"events" mapstructure:"events"`
	Legacy  string `toml:"legacy" mapstructure:"legacy"`
	Results string `toml:"results" mapstructure:"results"`
}

// AppContext is the static part of the environment snapshot attached to
// every record.
type AppContext struct {
	Page           string            `toml:"page" mapstructure:"page"`
	URL            string            `toml:"url" mapstructure:"url"`
	Referrer       string            `toml:"referrer" mapstructure:"referrer"`
	UserAgent      string            `toml:"user_agent" mapstructure:"user_agent"`
	ScreenWidth    int               `toml:"screen_width" mapstructure:"screen_width"`
	ScreenHeight   int               `toml:"screen_height" mapstructure:"screen_height"`
	PixelRatio     float64           `toml:"pixel_ratio" mapstructure:"pixel_ratio"`
	ViewportWidth  int               `toml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int               `toml:"viewport_height" mapstructure:"viewport_height"`
	UTM            map[string]string `toml:"utm" mapstructure:"utm"`
}

// Context converts the configured app snapshot to the record form.
func (a AppContext) Context() event.Context {
	return event.Context{
		Page:      a.Page,
		URL:       a.URL,
		Referrer:  a.Referrer,
		UserAgent: a.UserAgent,
		Screen: event.Screen{
			Width:      a.ScreenWidth,
			Height:     a.ScreenHeight,
			PixelRatio: a.PixelRatio,
		},
		Viewport: event.Viewport{
			Width:  a.ViewportWidth,
			Height: a.ViewportHeight,
		},
		UTM: a.UTM,
	}
}

// Default returns the baseline configuration.
func Default() Config {
	d := delivery.DefaultConfig()
	return Config{
		Environment:    "production",
		DevBaseURL:     "http://localhost:4000",
		FlushInterval:  d.FlushInterval,
		MaxBatchSize:   d.MaxBatchSize,
		MaxRetries:     d.MaxRetries,
		BackoffBase:    d.BackoffBase,
		RequestTimeout: 10 * time.Second,
		StateDSN:       ":memory:",
	}
}

// Merge returns c with every non-zero field of override applied on top.
// New overrides old, per field; it never removes a setting.
func (c Config) Merge(override Config) Config {
	if override.Environment != "" {
		c.Environment = override.Environment
	}
	if override.Host != "" {
		c.Host = override.Host
	}
	if override.DevBaseURL != "" {
		c.DevBaseURL = override.DevBaseURL
	}
	if override.ProdBaseURL != "" {
		c.ProdBaseURL = override.ProdBaseURL
	}
	if override.Endpoints.Events != "" {
		c.Endpoints.Events = override.Endpoints.Events
	}
	if override.Endpoints.Legacy != "" {
		c.Endpoints.Legacy = override.Endpoints.Legacy
	}
	if override.Endpoints.Results != "" {
		c.Endpoints.Results = override.Endpoints.Results
	}
	if override.FlushInterval > 0 {
		c.FlushInterval = override.FlushInterval
	}
	if override.MaxBatchSize > 0 {
		c.MaxBatchSize = override.MaxBatchSize
	}
	if override.MaxRetries > 0 {
		c.MaxRetries = override.MaxRetries
	}
	if override.BackoffBase > 0 {
		c.BackoffBase = override.BackoffBase
	}
	if override.RequestTimeout > 0 {
		c.RequestTimeout = override.RequestTimeout
	}
	if override.StateDSN != "" {
		c.StateDSN = override.StateDSN
	}
	if override.JournalDSN != "" {
		c.JournalDSN = override.JournalDSN
	}
	c.App = mergeApp(c.App, override.App)
	if override.Log != nil {
		c.Log = override.Log
	}
	return c
}

func mergeApp(base, override AppContext) AppContext {
	if override.Page != "" {
		base.Page = override.Page
	}
	if override.URL != "" {
		base.URL = override.URL
	}
	if override.Referrer != "" {
		base.Referrer = override.Referrer
	}
	if override.UserAgent != "" {
		base.UserAgent = override.UserAgent
	}
	if override.ScreenWidth > 0 {
		base.ScreenWidth = override.ScreenWidth
	}
	if override.ScreenHeight > 0 {
		base.ScreenHeight = override.ScreenHeight
	}
	if override.PixelRatio > 0 {
		base.PixelRatio = override.PixelRatio
	}
	if override.ViewportWidth > 0 {
		base.ViewportWidth = override.ViewportWidth
	}
	if override.ViewportHeight > 0 {
		base.ViewportHeight = override.ViewportHeight
	}
	if override.UTM != nil {
		base.UTM = override.UTM
	}
	return base
}

// BaseURL resolves the collector base for the configured host context.
func (c Config) BaseURL() string {
	if c.Host != "" {
		return transport.SelectBase(c.Host, c.DevBaseURL, c.ProdBaseURL)
	}
	if c.Environment == "development" {
		return c.DevBaseURL
	}
	return c.ProdBaseURL
}

// Delivery extracts the engine tunables.
func (c Config) Delivery() delivery.Config {
	return delivery.Config{
		FlushInterval: c.FlushInterval,
		MaxBatchSize:  c.MaxBatchSize,
		MaxRetries:    c.MaxRetries,
		BackoffBase:   c.BackoffBase,
	}
}

// LoadConfig parses a TOML config file into a Config merged over the
// defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc Config
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	merged := Default().Merge(fc)
	return &merged, nil
}
