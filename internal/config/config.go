// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	DOM() DOMConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserNavigationTimeout(d time.Duration)

	// DOM Setters
	SetDOMScriptPath(string)
	SetDOMExtraction(ExtractionConfig)
	SetDOMIframePasses(int)
	SetDOMIframeConcurrency(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	DOMCfg     DOMConfig     `mapstructure:"dom" yaml:"dom"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) DOM() DOMConfig         { return c.DOMCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserNavigationTimeout(d time.Duration) {
	c.BrowserCfg.NavigationTimeout = d
}

func (c *Config) SetDOMScriptPath(p string)           { c.DOMCfg.ScriptPath = p }
func (c *Config) SetDOMExtraction(e ExtractionConfig) { c.DOMCfg.Extraction = e }
func (c *Config) SetDOMIframePasses(n int)            { c.DOMCfg.Iframes.MaxPasses = n }
func (c *Config) SetDOMIframeConcurrency(n int)       { c.DOMCfg.Iframes.Concurrency = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance driven over CDP.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// DisableSiteIsolation keeps cross-origin iframes in the page's renderer process, so they
	// show up in the page frame tree instead of as separate targets.
	DisableSiteIsolation bool          `mapstructure:"disable_site_isolation" yaml:"disable_site_isolation"`
	NavigationTimeout    time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait         time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// ExtractionConfig is the default parameter record handed to the extraction script.
type ExtractionConfig struct {
	HighlightElements bool `mapstructure:"highlight_elements" yaml:"highlight_elements"`
	FocusElement      int  `mapstructure:"focus_element" yaml:"focus_element"`
	ViewportExpansion int  `mapstructure:"viewport_expansion" yaml:"viewport_expansion"`
}

// IframeConfig controls cross-origin iframe resolution.
type IframeConfig struct {
	MaxPasses   int     `mapstructure:"max_passes" yaml:"max_passes"`
	Concurrency int     `mapstructure:"concurrency" yaml:"concurrency"`
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// DOMConfig configures snapshot extraction.
type DOMConfig struct {
	ScriptPath      string           `mapstructure:"script_path" yaml:"script_path"`
	Extraction      ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	EvaluateTimeout time.Duration    `mapstructure:"evaluate_timeout" yaml:"evaluate_timeout"`
	MaxTreeDepth    int              `mapstructure:"max_tree_depth" yaml:"max_tree_depth"`
	Iframes         IframeConfig     `mapstructure:"iframes" yaml:"iframes"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "domscope")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_site_isolation", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 1100})
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "1s")

	// -- DOM --
	v.SetDefault("dom.script_path", "")
	v.SetDefault("dom.extraction.highlight_elements", true)
	v.SetDefault("dom.extraction.focus_element", -1)
	v.SetDefault("dom.extraction.viewport_expansion", 0)
	v.SetDefault("dom.evaluate_timeout", "30s")
	v.SetDefault("dom.max_tree_depth", 2048)
	v.SetDefault("dom.iframes.max_passes", 1)
	v.SetDefault("dom.iframes.concurrency", 1)
	v.SetDefault("dom.iframes.rate_limit", 0.0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for the most commonly overridden settings.
	_ = v.BindEnv("dom.script_path", "DOMSCOPE_SCRIPT")
	_ = v.BindEnv("browser.exec_path", "DOMSCOPE_CHROME")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user supplied file paths.
func (c *Config) expandPaths() error {
	var err error
	if c.DOMCfg.ScriptPath, err = homedir.Expand(c.DOMCfg.ScriptPath); err != nil {
		return fmt.Errorf("failed to expand dom.script_path: %w", err)
	}
	if c.LoggerCfg.LogFile, err = homedir.Expand(c.LoggerCfg.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	if c.BrowserCfg.ExecPath, err = homedir.Expand(c.BrowserCfg.ExecPath); err != nil {
		return fmt.Errorf("failed to expand browser.exec_path: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.DOMCfg.Validate(); err != nil {
		return fmt.Errorf("dom configuration invalid: %w", err)
	}
	if c.BrowserCfg.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must not be negative")
	}
	return nil
}

// Validate checks the DOM configuration.
func (d *DOMConfig) Validate() error {
	if d.MaxTreeDepth <= 0 {
		return fmt.Errorf("max_tree_depth must be a positive integer")
	}
	if d.EvaluateTimeout < 0 {
		return fmt.Errorf("evaluate_timeout must not be negative")
	}
	if d.Extraction.FocusElement < -1 {
		return fmt.Errorf("extraction.focus_element must be -1 (none) or a highlight index")
	}
	if d.Extraction.ViewportExpansion < 0 {
		return fmt.Errorf("extraction.viewport_expansion must not be negative")
	}
	if d.Iframes.MaxPasses <= 0 {
		return fmt.Errorf("iframes.max_passes must be at least 1")
	}
	if d.Iframes.Concurrency <= 0 {
		return fmt.Errorf("iframes.concurrency must be at least 1")
	}
	if d.Iframes.RateLimit < 0 {
		return fmt.Errorf("iframes.rate_limit must not be negative")
	}
	return nil
}
