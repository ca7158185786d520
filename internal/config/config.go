package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Mail account
	Provider    string `env:"MAIL_PROVIDER" envDefault:"gmail"`
	MailAddress string `env:"MAIL_ADDRESS,required"`
	MailSecret  string `env:"MAIL_SECRET,required"`
	MailLogin   string `env:"MAIL_LOGIN"` // optional distinct login name

	// Custom provider overrides. Hosts left empty fall back to the
	// built-in entry selected by MAIL_PROVIDER.
	IMAPHost     string `env:"IMAP_HOST"`
	IMAPPort     int    `env:"IMAP_PORT" envDefault:"993"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	UseSSL       bool   `env:"IMAP_SSL" envDefault:"true"`
	UseStartTLS  bool   `env:"SMTP_STARTTLS" envDefault:"true"`
	DraftsFolder string `env:"DRAFTS_FOLDER"`

	// Fetch behaviour
	FetchLookback time.Duration `env:"FETCH_LOOKBACK" envDefault:"8h"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	DialTimeout   time.Duration `env:"DIAL_TIMEOUT" envDefault:"30s"`
	MaxResults    int           `env:"MAX_RESULTS" envDefault:"50"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/triaged.db"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Credentials are the authentication secrets for the mail account.
type Credentials struct {
	Address string
	Secret  string
	Login   string
}

// Validate rejects credentials that would silently degrade the client to
// unauthenticated mode.
func (c Credentials) Validate() error {
	if c.Address == "" {
		return errors.New("mail address must not be empty")
	}
	if c.Secret == "" {
		return errors.New("mail secret must not be empty")
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Credentials().Validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.ProviderConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Credentials returns the account credentials. The login name defaults to
// the mail address when not set separately.
func (c *Config) Credentials() Credentials {
	login := c.MailLogin
	if login == "" {
		login = c.MailAddress
	}
	return Credentials{Address: c.MailAddress, Secret: c.MailSecret, Login: login}
}

// ProviderConfig resolves the effective provider settings: the built-in
// entry for MAIL_PROVIDER with environment overrides applied, or a fully
// custom entry when both hosts are given.
func (c *Config) ProviderConfig() (Provider, error) {
	p, ok := LookupProvider(c.Provider)
	if !ok {
		if c.IMAPHost == "" || c.SMTPHost == "" {
			return Provider{}, fmt.Errorf(
				"unknown provider %q and no IMAP_HOST/SMTP_HOST set (built-in: %v)",
				c.Provider, BuiltinProviders())
		}
		p = Provider{
			Name:         c.Provider,
			DraftsFolder: "Drafts",
		}
	}

	if c.IMAPHost != "" {
		p.IMAPHost = c.IMAPHost
		p.IMAPPort = c.IMAPPort
		p.UseSSL = c.UseSSL
	}
	if c.SMTPHost != "" {
		p.SMTPHost = c.SMTPHost
		p.SMTPPort = c.SMTPPort
		p.UseStartTLS = c.UseStartTLS
	}
	if c.DraftsFolder != "" {
		p.DraftsFolder = c.DraftsFolder
	}
	return p, nil
}
