// Copyright 2024-2026 Aiku AI

package gateway

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// QR presentation modes.
const (
	QRModeTerminal = "terminal"
	QRModeExec     = "exec"
	QRModeNone     = "none"
)

// Config holds the gateway configuration. Values come from an optional YAML
// file with environment variables taking precedence; the decision webhook
// URL is the one required setting.
type Config struct {
	// ListenAddr is the control API listen address.
	ListenAddr string `yaml:"listen_addr"`
	// WebhookURL is the external decision service endpoint. Required.
	WebhookURL string `yaml:"webhook_url"`
	// SessionDir holds the persisted credential files.
	SessionDir string `yaml:"session_dir"`
	// QRMode selects how pairing challenges are presented:
	// terminal, exec or none.
	QRMode string `yaml:"qr_mode"`
	// QRCommand is the external helper invoked in exec mode; the challenge
	// is appended as the final argument.
	QRCommand []string `yaml:"qr_command"`
	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level"`

	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	TypingDelayMin time.Duration `yaml:"typing_delay_min"`
	TypingDelayMax time.Duration `yaml:"typing_delay_max"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":29330",
		SessionDir:     "session",
		QRMode:         QRModeTerminal,
		LogLevel:       "info",
		MaxRetries:     5,
		RetryDelay:     15 * time.Second,
		ConnectTimeout: 30 * time.Second,
		SendTimeout:    30 * time.Second,
		WebhookTimeout: 15 * time.Second,
		TypingDelayMin: 800 * time.Millisecond,
		TypingDelayMax: 2500 * time.Millisecond,
	}
}

// LoadConfig builds the effective configuration: defaults, then the YAML
// file at path (skipped when path is empty or absent), then environment
// overrides, then validation.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr("WHATSAPP_API_ADDR", &c.ListenAddr)
	setStr("WHATSAPP_WEBHOOK_URL", &c.WebhookURL)
	setStr("WHATSAPP_SESSION_DIR", &c.SessionDir)
	setStr("WHATSAPP_QR_MODE", &c.QRMode)
	setStr("WHATSAPP_LOG_LEVEL", &c.LogLevel)

	if v := os.Getenv("WHATSAPP_MAX_RETRIES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n >= 0 {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("WHATSAPP_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.RetryDelay = d
		}
	}
}

// Validate checks the configuration for fatal problems. A missing or
// malformed webhook URL is fatal: the gateway must not run in a mode where
// inbound messages silently have nowhere to go.
func (c *Config) Validate() error {
	if c.WebhookURL == "" {
		return errors.New("decision webhook URL is required (webhook_url / WHATSAPP_WEBHOOK_URL)")
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("decision webhook URL %q is not a valid http(s) URL", c.WebhookURL)
	}
	switch c.QRMode {
	case QRModeTerminal, QRModeNone:
	case QRModeExec:
		if len(c.QRCommand) == 0 {
			return errors.New("qr_mode exec requires qr_command")
		}
	default:
		return fmt.Errorf("unknown qr_mode %q", c.QRMode)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.TypingDelayMax < c.TypingDelayMin {
		return errors.New("typing_delay_max must not be below typing_delay_min")
	}
	return nil
}

// NewPresenter builds the pairing-challenge presenter selected by QRMode.
func (c *Config) NewPresenter(out io.Writer, log zerolog.Logger) Presenter {
	switch c.QRMode {
	case QRModeExec:
		return &ExecPresenter{Command: c.QRCommand, Log: log}
	case QRModeNone:
		return NopPresenter{}
	default:
		return &TerminalPresenter{Out: out, Log: log}
	}
}
