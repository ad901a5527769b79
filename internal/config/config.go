// Package config resolves enhancer settings from defaults, an optional YAML file and the
// environment. Command-line flags are applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/product-data-enhancer/internal/completion"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultListenAddr     = ":8080"
)

type Config struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	TraceRequests  bool          `yaml:"trace_requests"`

	ReportDB   string `yaml:"report_db"`
	ListenAddr string `yaml:"listen_addr"`
}

func Default() Config {
	return Config{
		Provider:       completion.ProviderOpenAI,
		RequestTimeout: DefaultRequestTimeout,
		ListenAddr:     DefaultListenAddr,
	}
}

// Load resolves defaults < YAML file < environment. An empty path falls back to
// ENHANCER_CONFIG; no file at all is fine.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("ENHANCER_CONFIG"))
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		if cfg, err = Decode(f, cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg, err := ApplyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays the YAML document in r onto base. Unknown keys are rejected.
func Decode(r io.Reader, base Config) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return base, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	out := base
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return out, nil
}

// ApplyEnv overlays environment variables onto base.
func ApplyEnv(base Config) (Config, error) {
	cfg := base.ForProvider(envString("ENHANCER_PROVIDER", base.Provider))

	var err error
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return Config{}, err
	}
	if cfg.TraceRequests, err = envBool("TRACE_REQUESTS", cfg.TraceRequests); err != nil {
		return Config{}, err
	}
	cfg.ReportDB = envString("REPORT_DB", cfg.ReportDB)
	cfg.ListenAddr = envString("LISTEN_ADDR", cfg.ListenAddr)
	return cfg, nil
}

// ForProvider switches c to provider, re-reading that provider's model, base URL and API key
// variables from the environment.
func (c Config) ForProvider(provider string) Config {
	c.Provider = strings.ToLower(strings.TrimSpace(provider))
	switch c.Provider {
	case completion.ProviderGemini:
		c.Model = envString("GEMINI_MODEL", c.Model)
		c.BaseURL = envString("GEMINI_BASE_URL", c.BaseURL)
		c.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	default:
		c.Model = envString("OPENAI_MODEL", c.Model)
		c.BaseURL = envString("OPENAI_BASE_URL", c.BaseURL)
		c.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	return c
}

// Validate checks values that would otherwise fail late. API keys are checked by the backend.
func (c Config) Validate() error {
	switch c.Provider {
	case completion.ProviderOpenAI, completion.ProviderGemini:
	default:
		return fmt.Errorf("invalid provider %q (expected openai|gemini)", c.Provider)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0, got %s", c.RequestTimeout)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must be >= 0, got %g", c.RateLimitRPS)
	}
	return nil
}

func (c Config) Completion() completion.Config {
	return completion.Config{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
	}
}

func envString(varName, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		return v
	}
	return fallback
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
