// Package config resolves the service configuration from defaults, an
// optional YAML file and RENTREPORT_* environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RENTREPORT_"

// Endpoints holds the base URLs of the external services.
type Endpoints struct {
	Identity  string
	Billing   string
	API       string
	Delivery  string
	Geocode   string
	Tracking  string
	Documents string
}

// Config is the resolved runtime configuration.
type Config struct {
	HTTPAddr string

	LogLevel  string
	LogFormat string

	Endpoints   Endpoints
	HTTPTimeout time.Duration

	CacheTTL    time.Duration
	RedisURL    string
	RedisPrefix string

	SignInAttempts   int
	SignInDelay      time.Duration
	TrackingDebounce time.Duration
	TrackingIdleTTL  time.Duration
	ToastDismiss     time.Duration
	ContractCheck    bool

	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string
}

// configFile mirrors the YAML schema of configs/rentreport.yaml.
type configFile struct {
	HTTP struct {
		Addr    string `yaml:"addr"`
		Timeout string `yaml:"timeout"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Endpoints struct {
		Identity  string `yaml:"identity"`
		Billing   string `yaml:"billing"`
		API       string `yaml:"api"`
		Delivery  string `yaml:"delivery"`
		Geocode   string `yaml:"geocode"`
		Tracking  string `yaml:"tracking"`
		Documents string `yaml:"documents"`
	} `yaml:"endpoints"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Redis struct {
		URL    string `yaml:"url"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`
	SignIn struct {
		Attempts int    `yaml:"attempts"`
		Delay    string `yaml:"delay"`
	} `yaml:"sign_in"`
	Tracking struct {
		Debounce string `yaml:"debounce"`
		IdleTTL  string `yaml:"idle_ttl"`
	} `yaml:"tracking"`
	Toast struct {
		DismissAfter string `yaml:"dismiss_after"`
	} `yaml:"toast"`
	Contract struct {
		Check *bool `yaml:"check"`
	} `yaml:"contract"`
	Billing struct {
		SuccessURL      string `yaml:"success_url"`
		CancelURL       string `yaml:"cancel_url"`
		PortalReturnURL string `yaml:"portal_return_url"`
	} `yaml:"billing"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		LogLevel:         "info",
		LogFormat:        "json",
		HTTPTimeout:      10 * time.Second,
		CacheTTL:         5 * time.Minute,
		RedisPrefix:      "rentreport:",
		SignInAttempts:   3,
		SignInDelay:      2 * time.Second,
		TrackingDebounce: 750 * time.Millisecond,
		TrackingIdleTTL:  30 * time.Minute,
		ToastDismiss:     5 * time.Second,
		ContractCheck:    true,
	}
}

// Load resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := cfg.applyFile(raw); err != nil {
				return Config{}, fmt.Errorf("config: %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	env := envReader{lookup: lookup}
	cfg.HTTPAddr = env.str("HTTP_ADDR", cfg.HTTPAddr)
	cfg.HTTPTimeout = env.duration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.LogLevel = strings.ToLower(env.str("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(env.str("LOG_FORMAT", cfg.LogFormat))
	cfg.Endpoints.Identity = env.str("IDENTITY_URL", cfg.Endpoints.Identity)
	cfg.Endpoints.Billing = env.str("BILLING_URL", cfg.Endpoints.Billing)
	cfg.Endpoints.API = env.str("API_URL", cfg.Endpoints.API)
	cfg.Endpoints.Delivery = env.str("DELIVERY_URL", cfg.Endpoints.Delivery)
	cfg.Endpoints.Geocode = env.str("GEOCODE_URL", cfg.Endpoints.Geocode)
	cfg.Endpoints.Tracking = env.str("TRACKING_URL", cfg.Endpoints.Tracking)
	cfg.Endpoints.Documents = env.str("DOCUMENTS_URL", cfg.Endpoints.Documents)
	cfg.CacheTTL = env.duration("CACHE_TTL", cfg.CacheTTL)
	cfg.RedisURL = env.str("REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = env.str("REDIS_PREFIX", cfg.RedisPrefix)
	cfg.SignInAttempts = env.integer("SIGN_IN_ATTEMPTS", cfg.SignInAttempts)
	cfg.SignInDelay = env.duration("SIGN_IN_DELAY", cfg.SignInDelay)
	cfg.TrackingDebounce = env.duration("TRACKING_DEBOUNCE", cfg.TrackingDebounce)
	cfg.TrackingIdleTTL = env.duration("TRACKING_IDLE_TTL", cfg.TrackingIdleTTL)
	cfg.ToastDismiss = env.duration("TOAST_DISMISS_AFTER", cfg.ToastDismiss)
	cfg.ContractCheck = env.boolean("CONTRACT_CHECK", cfg.ContractCheck)
	cfg.CheckoutSuccessURL = env.str("CHECKOUT_SUCCESS_URL", cfg.CheckoutSuccessURL)
	cfg.CheckoutCancelURL = env.str("CHECKOUT_CANCEL_URL", cfg.CheckoutCancelURL)
	cfg.PortalReturnURL = env.str("PORTAL_RETURN_URL", cfg.PortalReturnURL)

	if err := env.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	setString(&c.HTTPAddr, f.HTTP.Addr)
	setString(&c.LogLevel, f.Log.Level)
	setString(&c.LogFormat, f.Log.Format)
	setString(&c.Endpoints.Identity, f.Endpoints.Identity)
	setString(&c.Endpoints.Billing, f.Endpoints.Billing)
	setString(&c.Endpoints.API, f.Endpoints.API)
	setString(&c.Endpoints.Delivery, f.Endpoints.Delivery)
	setString(&c.Endpoints.Geocode, f.Endpoints.Geocode)
	setString(&c.Endpoints.Tracking, f.Endpoints.Tracking)
	setString(&c.Endpoints.Documents, f.Endpoints.Documents)
	setString(&c.RedisURL, f.Redis.URL)
	setString(&c.RedisPrefix, f.Redis.Prefix)
	setString(&c.CheckoutSuccessURL, f.Billing.SuccessURL)
	setString(&c.CheckoutCancelURL, f.Billing.CancelURL)
	setString(&c.PortalReturnURL, f.Billing.PortalReturnURL)
	if f.SignIn.Attempts > 0 {
		c.SignInAttempts = f.SignIn.Attempts
	}
	if f.Contract.Check != nil {
		c.ContractCheck = *f.Contract.Check
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"http.timeout", f.HTTP.Timeout, &c.HTTPTimeout},
		{"cache.ttl", f.Cache.TTL, &c.CacheTTL},
		{"sign_in.delay", f.SignIn.Delay, &c.SignInDelay},
		{"tracking.debounce", f.Tracking.Debounce, &c.TrackingDebounce},
		{"tracking.idle_ttl", f.Tracking.IdleTTL, &c.TrackingIdleTTL},
		{"toast.dismiss_after", f.Toast.DismissAfter, &c.ToastDismiss},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate checks what the HTTP server needs before it starts.
func (c Config) Validate() error {
	var problems []string
	required := []struct {
		name  string
		value string
	}{
		{"endpoints.identity", c.Endpoints.Identity},
		{"endpoints.api", c.Endpoints.API},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.name+" is required")
		}
	}
	for name, raw := range c.endpointMap() {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("endpoints.%s: invalid url %q", name, raw))
		}
	}
	if c.SignInAttempts <= 0 {
		problems = append(problems, "sign_in.attempts must be positive")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("log.format: unknown format %q", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) endpointMap() map[string]string {
	return map[string]string{
		"identity":  c.Endpoints.Identity,
		"billing":   c.Endpoints.Billing,
		"api":       c.Endpoints.API,
		"delivery":  c.Endpoints.Delivery,
		"geocode":   c.Endpoints.Geocode,
		"tracking":  c.Endpoints.Tracking,
		"documents": c.Endpoints.Documents,
	}
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// envReader reads RENTREPORT_* overrides and collects parse failures.
type envReader struct {
	lookup   func(string) (string, bool)
	problems []string
}

func (e *envReader) raw(name string) (string, bool) {
	value, ok := e.lookup(EnvPrefix + name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (e *envReader) str(name, fallback string) string {
	if value, ok := e.raw(name); ok {
		return value
	}
	return fallback
}

func (e *envReader) integer(name string, fallback int) int {
	value, ok := e.raw(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		return fallback
	}
	return n
}

func (e *envReader) duration(name string, fallback time.Duration) time.Duration {
	value, ok := e.raw(name)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		return fallback
	}
	return d
}

func (e *envReader) boolean(name string, fallback bool) bool {
	value, ok := e.raw(name)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		e.problems = append(e.problems, fmt.Sprintf("%s%s: invalid boolean %q", EnvPrefix, name, value))
		return fallback
	}
}

func (e *envReader) err() error {
	if len(e.problems) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", strings.Join(e.problems, "; "))
}
