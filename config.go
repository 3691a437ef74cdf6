package cfddns

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultConfigFile is read from the working directory when no file is given.
	// It is optional: without it the configuration comes from the process environment.
	DefaultConfigFile = ".env"

	DefaultInterval = 70 * time.Second
)

// Discovery modes accepted by the DISCOVERY key.
const (
	DiscoveryTrace     = "trace"
	DiscoveryDNS       = "dns"
	DiscoveryInterface = "interface"
)

// Config is loaded once at startup and is not modified afterwards.
type Config struct {
	Token     string `envconfig:"TOKEN"`
	Zone      string `envconfig:"ZONE"`
	RawDomain string `envconfig:"DOMAINS"`
	RawRecord string `envconfig:"RECORDS"`
	RawPeriod string `envconfig:"INTERVAL"`

	Timeout        int     `envconfig:"TIMEOUT" default:"15"`
	Retries        int     `envconfig:"RETRIES" default:"0"`
	UpdateOnChange bool    `envconfig:"UPDATE_ON_CHANGE" default:"false"`
	SingleFlight   bool    `envconfig:"SINGLE_FLIGHT" default:"false"`
	VerifyToken    bool    `envconfig:"VERIFY_TOKEN" default:"false"`
	Discovery      string  `envconfig:"DISCOVERY" default:"trace"`
	Interface      string  `envconfig:"INTERFACE"`
	TTL            int     `envconfig:"TTL" default:"1"`
	Proxied        bool    `envconfig:"PROXIED" default:"false"`
	RateLimit      float64 `envconfig:"RATE_LIMIT" default:"4"`
	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	APIURL         string  `envconfig:"API_URL" default:"https://api.cloudflare.com/client/v4"`
	TraceURL       string  `envconfig:"TRACE_URL" default:"https://cloudflare.com/cdn-cgi/trace"`

	// Derived from the raw values above.
	Domains   []string      `ignored:"true"`
	RecordIDs []string      `ignored:"true"`
	Interval  time.Duration `ignored:"true"`
}

// LoadConfig loads the dotenv file at path into the process environment and decodes the environment.
// Variables that are already set take precedence over the file.
//
// An empty path means DefaultConfigFile, which may be absent.
// An explicit path must be readable.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		if err := godotenv.Load(DefaultConfigFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfigFile, DefaultConfigFile, err)
		}
	} else if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigFile, path, err)
	}
	return ConfigFromEnv()
}

// ConfigFromEnv decodes and validates the configuration from the process environment only.
func ConfigFromEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		var pe *envconfig.ParseError
		if errors.As(err, &pe) {
			return nil, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, pe.KeyName, pe.Value, pe.Err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	c.Token = strings.TrimSpace(c.Token)
	c.Zone = strings.TrimSpace(c.Zone)
	if c.Token == "" {
		return fmt.Errorf("%w: TOKEN", ErrMissingKey)
	}
	if c.Zone == "" {
		return fmt.Errorf("%w: ZONE", ErrMissingKey)
	}
	if strings.TrimSpace(c.RawDomain) == "" {
		return fmt.Errorf("%w: DOMAINS", ErrMissingKey)
	}

	var err error
	if c.Domains, err = splitList("DOMAINS", c.RawDomain); err != nil {
		return err
	}
	if strings.TrimSpace(c.RawRecord) != "" {
		if c.RecordIDs, err = splitList("RECORDS", c.RawRecord); err != nil {
			return err
		}
		if len(c.RecordIDs) != len(c.Domains) {
			return &CountMismatchError{Domains: len(c.Domains), Records: len(c.RecordIDs)}
		}
	}

	c.Interval = parseInterval(c.RawPeriod)

	switch c.Discovery {
	case DiscoveryTrace, DiscoveryDNS:
	case DiscoveryInterface:
		if c.Interface == "" {
			return fmt.Errorf("%w: INTERFACE (required when DISCOVERY=interface)", ErrMissingKey)
		}
	default:
		return fmt.Errorf("%w: DISCOVERY=%q (expected %s, %s or %s)", ErrInvalidValue, c.Discovery, DiscoveryTrace, DiscoveryDNS, DiscoveryInterface)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: TIMEOUT must be a positive number of seconds", ErrInvalidValue)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: RETRIES cannot be negative", ErrInvalidValue)
	}
	return nil
}

// RequestTimeout bounds every outbound request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func splitList(key, raw string) ([]string, error) {
	var out []string
	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("%w: %s entry %d is empty", ErrInvalidValue, key, i+1)
		}
		out = append(out, entry)
	}
	return out, nil
}

// parseInterval falls back to DefaultInterval for anything that is not a positive whole number of seconds.
func parseInterval(raw string) time.Duration {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || n == 0 {
		return DefaultInterval
	}
	return time.Duration(n) * time.Second
}

// Fields summarizes the configuration for startup logging. The token is never included.
func (c *Config) Fields() logrus.Fields {
	return logrus.Fields{
		"zone":      c.Zone,
		"domains":   strings.Join(c.Domains, ","),
		"records":   len(c.RecordIDs),
		"interval":  c.Interval.String(),
		"discovery": c.Discovery,
		"on_change": c.UpdateOnChange,
		"single":    c.SingleFlight,
	}
}
