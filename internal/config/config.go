// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file, so a deployment can
// ship one hunter.yaml and override secrets per host.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Port     int    `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	BaseURL  string `yaml:"base_url"` // public URL of the dashboard, used in links
	LogLevel string `yaml:"log_level"`

	JWTSecret string `yaml:"jwt_secret"`
	// TokenKey seals stored OAuth tokens. Rotating it invalidates every
	// stored token; users have to sign in again.
	TokenKey string `yaml:"token_key"`

	GitHub    GitHubConfig    `yaml:"github"`
	Email     EmailConfig     `yaml:"email"`
	Push      PushConfig      `yaml:"push"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	WebhookSecret string `yaml:"webhook_secret"`
	CronSecret    string `yaml:"cron_secret"`

	// GenerationTimeout bounds how long an issue may stay "generating".
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
}

type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
	// APIURL points the gateway at GitHub Enterprise; empty means github.com.
	APIURL          string        `yaml:"api_url"`
	AgentLogin      string        `yaml:"agent_login"`
	ForkSettleDelay time.Duration `yaml:"fork_settle_delay"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second
	RateBurst       int           `yaml:"rate_burst"`
}

type EmailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	From         string `yaml:"from"`
}

type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subject         string `yaml:"subject"`
}

type SchedulerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	DiscoveryInterval   time.Duration `yaml:"discovery_interval"`
	AgentStatusInterval time.Duration `yaml:"agent_status_interval"`
	ClosureInterval     time.Duration `yaml:"closure_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:     8080,
		DBPath:   "data/hunter.db",
		BaseURL:  "http://localhost:8080",
		LogLevel: "info",
		GitHub: GitHubConfig{
			AgentLogin:      "copilot",
			ForkSettleDelay: 3 * time.Second,
			RateLimit:       10,
			RateBurst:       20,
		},
		Email: EmailConfig{
			From: "notifications@opensourcehunter.dev",
		},
		Push: PushConfig{
			Subject: "mailto:notifications@opensourcehunter.dev",
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			DiscoveryInterval:   15 * time.Minute,
			AgentStatusInterval: 2 * time.Minute,
			ClosureInterval:     time.Hour,
		},
		GenerationTimeout: 2 * time.Hour,
	}
}

// Load reads the YAML file at path (skipped when path is empty) on top of
// Default, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/auth/github/callback"
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"DB_PATH":              &c.DBPath,
		"BASE_URL":             &c.BaseURL,
		"LOG_LEVEL":            &c.LogLevel,
		"JWT_SECRET":           &c.JWTSecret,
		"TOKEN_KEY":            &c.TokenKey,
		"GITHUB_CLIENT_ID":     &c.GitHub.ClientID,
		"GITHUB_CLIENT_SECRET": &c.GitHub.ClientSecret,
		"GITHUB_CALLBACK_URL":  &c.GitHub.CallbackURL,
		"GITHUB_API_URL":       &c.GitHub.APIURL,
		"WEBHOOK_SECRET":       &c.WebhookSecret,
		"CRON_SECRET":          &c.CronSecret,
		"RESEND_API_KEY":       &c.Email.ResendAPIKey,
		"EMAIL_FROM":           &c.Email.From,
		"VAPID_PUBLIC_KEY":     &c.Push.VAPIDPublicKey,
		"VAPID_PRIVATE_KEY":    &c.Push.VAPIDPrivateKey,
		"VAPID_SUBJECT":        &c.Push.Subject,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v) // Atoi = ASCII to Integer
		if err != nil {
			return fmt.Errorf("invalid PORT value %q: %w", v, err)
		}
		c.Port = port
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("missing required field: db_path"))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, errors.New("generation_timeout must be positive"))
	}
	if c.GitHub.RateLimit <= 0 || c.GitHub.RateBurst <= 0 {
		errs = append(errs, errors.New("github.rate_limit and github.rate_burst must be positive"))
	}
	if c.Scheduler.Enabled {
		s := c.Scheduler
		if s.DiscoveryInterval <= 0 || s.AgentStatusInterval <= 0 || s.ClosureInterval <= 0 {
			errs = append(errs, errors.New("scheduler intervals must be positive"))
		}
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel into a slog level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return lvl, nil
}

// AuthEnabled reports whether sign-in can work at all.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != "" && c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

func (c *Config) EmailEnabled() bool { return c.Email.ResendAPIKey != "" }

func (c *Config) PushEnabled() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}

func (c *Config) WebhooksEnabled() bool { return c.WebhookSecret != "" }

func (c *Config) CronEnabled() bool { return c.CronSecret != "" }

// Warnings lists features that are off because a secret is missing.
func (c *Config) Warnings() []string {
	var out []string
	if !c.AuthEnabled() {
		out = append(out, "JWT_SECRET or GitHub OAuth credentials not set: sign-in is disabled")
	}
	if c.TokenKey == "" {
		out = append(out, "TOKEN_KEY not set: GitHub tokens cannot be stored, sweeps will skip every user")
	}
	if !c.EmailEnabled() {
		out = append(out, "RESEND_API_KEY not set: email notifications are disabled")
	}
	if !c.PushEnabled() {
		out = append(out, "VAPID keys not set: push notifications are disabled")
	}
	if !c.WebhooksEnabled() {
		out = append(out, "WEBHOOK_SECRET not set: /webhooks/github is disabled")
	}
	if !c.CronEnabled() {
		out = append(out, "CRON_SECRET not set: /cron endpoints are disabled")
	}
	return out
}
