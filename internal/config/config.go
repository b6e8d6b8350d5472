// Package config loads the updater settings from the environment, an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	"go.yaml.in/yaml/v3"

	"github.com/Travis-Britz/dnsupdater"
)

// Prefix is prepended to every environment variable name, e.g. DNSU_DOMAIN.
const Prefix = "DNSU"

const (
	ProviderOVH        = "ovh"
	ProviderCloudflare = "cloudflare"
)

type Config struct {
	Provider string `envconfig:"PROVIDER" yaml:"provider"`

	// OVH credentials. Endpoint is an endpoint name such as ovh-eu or a full API URL.
	Endpoint    string `envconfig:"ENDPOINT" yaml:"endpoint"`
	AppKey      string `envconfig:"APP_KEY" yaml:"app_key"`
	AppSecret   string `envconfig:"APP_SECRET" yaml:"app_secret"`
	ConsumerKey string `envconfig:"CONSUMER_KEY" yaml:"consumer_key"`

	CloudflareToken string `envconfig:"CLOUDFLARE_TOKEN" yaml:"cloudflare_token"`

	Domain    string `envconfig:"DOMAIN" yaml:"domain"`
	SubDomain string `envconfig:"SUBDOMAIN" yaml:"subdomain"`

	SubdomainTTL int `envconfig:"SUBDOMAIN_TTL" yaml:"subdomain_ttl"`
	LoopTTL      int `envconfig:"LOOP_TTL" yaml:"loop_ttl"`
	// CheckingInterval is in milliseconds.
	CheckingInterval int           `envconfig:"CHECKING_INTERVAL" yaml:"checking_interval"`
	VerifyDelay      time.Duration `envconfig:"VERIFY_DELAY" yaml:"verify_delay"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" yaml:"http_timeout"`

	IPServices []string `envconfig:"IP_SERVICES" yaml:"ip_services"`
	Interface  []string `envconfig:"INTERFACE" yaml:"interface"`
	Nameserver string   `envconfig:"NAMESERVER" yaml:"nameserver"`

	// Booleans are pointers so an explicit false survives the merges.
	RetryFailedUpdates *bool `envconfig:"RETRY_FAILED_UPDATES" yaml:"retry_failed_updates"`

	LogFiles      []string `envconfig:"LOG_FILES" yaml:"log_files"`
	ErrorLogFiles []string `envconfig:"ERROR_LOG_FILES" yaml:"error_log_files"`
	Verbose       *bool    `envconfig:"VERBOSE" yaml:"verbose"`

	ConfigFile string `envconfig:"CONFIG_FILE" yaml:"-"`
}

// Defaults returns the values used for every setting left empty by the environment and the config file.
func Defaults() Config {
	retry := true
	return Config{
		Provider:           ProviderOVH,
		Endpoint:           "ovh-eu",
		SubdomainTTL:       ddns.DefaultStartupTTL,
		LoopTTL:            ddns.DefaultLoopTTL,
		CheckingInterval:   int(ddns.DefaultInterval / time.Millisecond),
		VerifyDelay:        ddns.DefaultVerifyDelay,
		HTTPTimeout:        ddns.DefaultLookupTimeout,
		IPServices:         append([]string(nil), ddns.DefaultIPServices...),
		RetryFailedUpdates: &retry,
		LogFiles:           []string{"stderr"},
	}
}

// Load reads the environment, then the YAML file named by DNSU_CONFIG_FILE if any, then fills the remaining
// fields from Defaults. A value set in the environment always wins over the file.
// Zero numbers and empty strings count as unset, so a TTL of 0 cannot be configured here.
//
// The caller is expected to have loaded any .env file into the environment already.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	if cfg.ConfigFile != "" {
		file, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&cfg, *file, mergo.WithoutDereference); err != nil {
			return nil, fmt.Errorf("error merging config file: %w", err)
		}
	}
	if err := mergo.Merge(&cfg, Defaults(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("error applying defaults: %w", err)
	}
	return &cfg, nil
}

// LoadFile parses a YAML config file. ${VAR} references in the credential fields are expanded from the environment,
// so secrets can stay out of the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	for _, s := range []*string{&cfg.AppKey, &cfg.AppSecret, &cfg.ConsumerKey, &cfg.CloudflareToken} {
		*s = os.ExpandEnv(*s)
	}
	return &cfg, nil
}

// Interval is the polling delay as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CheckingInterval) * time.Millisecond
}

// Retry reports whether failed loop updates should be retried. Unset means yes.
func (c *Config) Retry() bool {
	return c.RetryFailedUpdates == nil || *c.RetryFailedUpdates
}

// IsVerbose reports whether V(1) messages should be logged.
func (c *Config) IsVerbose() bool {
	return c.Verbose != nil && *c.Verbose
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	if c.Domain == "" {
		errs = append(errs, errors.New(Prefix+"_DOMAIN is required"))
	}
	switch c.Provider {
	case ProviderOVH:
		if c.AppKey == "" || c.AppSecret == "" || c.ConsumerKey == "" {
			errs = append(errs, fmt.Errorf("provider %s needs %[2]s_APP_KEY, %[2]s_APP_SECRET and %[2]s_CONSUMER_KEY", c.Provider, Prefix))
		}
	case ProviderCloudflare:
		if c.CloudflareToken == "" {
			errs = append(errs, fmt.Errorf("provider %s needs %s_CLOUDFLARE_TOKEN", c.Provider, Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q; expected %q or %q", c.Provider, ProviderOVH, ProviderCloudflare))
	}
	if c.CheckingInterval <= 0 {
		errs = append(errs, fmt.Errorf("checking interval must be positive; got %dms", c.CheckingInterval))
	}
	if c.SubdomainTTL < 0 {
		errs = append(errs, fmt.Errorf("subdomain TTL cannot be negative; got %d", c.SubdomainTTL))
	}
	if c.LoopTTL < 0 {
		errs = append(errs, fmt.Errorf("loop TTL cannot be negative; got %d", c.LoopTTL))
	}
	if c.VerifyDelay < 0 {
		errs = append(errs, fmt.Errorf("verify delay cannot be negative; got %s", c.VerifyDelay))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http timeout must be positive; got %s", c.HTTPTimeout))
	}
	for _, s := range c.IPServices {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid IP service URL %q", s))
		}
	}
	return errors.Join(errs...)
}
