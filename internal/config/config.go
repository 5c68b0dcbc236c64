package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"rfp-mail-ingest/internal/models"

	"gopkg.in/yaml.v2"
)

// Load reads the configuration from the specified YAML file, applies environment
// overrides and defaults, and returns a Config struct
func Load(filepath string) (*models.Config, error) {
	configFile, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := yaml.Unmarshal(configFile, &config); err != nil {
		return nil, err
	}

	applyEnv(&config, os.Getenv)
	ApplyDefaults(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults fills unset fields with their default values
func ApplyDefaults(cfg *models.Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = "/webhooks/gmail"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Gmail.TokenURL == "" {
		cfg.Gmail.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if len(cfg.Gmail.WatchLabels) == 0 {
		cfg.Gmail.WatchLabels = []string{models.LabelInbox}
	}
	if cfg.Gmail.WatchRenew <= 0 {
		cfg.Gmail.WatchRenew = 24 * time.Hour
	}
	if cfg.Gmail.Retry.MaxAttempts <= 0 {
		cfg.Gmail.Retry.MaxAttempts = 3
	}
	if cfg.Gmail.Retry.InitialDelay <= 0 {
		cfg.Gmail.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Gmail.Retry.MaxDelay <= 0 {
		cfg.Gmail.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.Email.RefreshTime <= 0 {
		cfg.Email.RefreshTime = time.Minute
	}
	if cfg.Email.MailBox == "" {
		cfg.Email.MailBox = models.LabelInbox
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "rfp.db"
	}
	if cfg.Watermark.Backend == "" {
		cfg.Watermark.Backend = "file"
	}
	if cfg.Watermark.Path == "" {
		cfg.Watermark.Path = "history.json"
	}
	if cfg.Attachments.TempDir == "" {
		cfg.Attachments.TempDir = os.TempDir()
	}
	if cfg.Attachments.MaxBytes <= 0 {
		cfg.Attachments.MaxBytes = 25 << 20
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.5-flash"
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.Timeout <= 0 {
		cfg.Ingest.Timeout = 2 * time.Minute
	}
	if cfg.Ingest.DedupMax <= 0 {
		cfg.Ingest.DedupMax = 2000
	}
	if cfg.Ingest.DedupKeep <= 0 || cfg.Ingest.DedupKeep > cfg.Ingest.DedupMax {
		cfg.Ingest.DedupKeep = cfg.Ingest.DedupMax / 2
	}
	if cfg.Ingest.DedupInterval <= 0 {
		cfg.Ingest.DedupInterval = time.Hour
	}
}

// MaxAckDeadline is the longest ack deadline a Pub/Sub subscription accepts.
// Push deliveries are processed inside the request, so ingest.timeout must fit in it.
const MaxAckDeadline = 600 * time.Second

// Validate checks that the settings needed by the enabled components are present
func Validate(cfg *models.Config) error {
	var errs []error

	if !cfg.Gmail.Enabled && !cfg.Email.Enabled {
		errs = append(errs, errors.New("no mail provider enabled (gmail.enabled or email.enabled)"))
	}
	if cfg.Gmail.Enabled {
		if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" || cfg.Gmail.RefreshToken == "" {
			errs = append(errs, errors.New("gmail: clientId, clientSecret and refreshToken are required"))
		}
	}
	if cfg.Email.Enabled {
		if cfg.Email.Imap == "" || cfg.Email.Login == "" {
			errs = append(errs, errors.New("email: imap and login are required"))
		}
	}
	if cfg.PubSub.Subscription != "" && cfg.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub: projectId is required with a subscription"))
	}

	if cfg.Ingest.Timeout > MaxAckDeadline {
		errs = append(errs, fmt.Errorf("ingest: timeout %v exceeds the %v Pub/Sub ack deadline ceiling", cfg.Ingest.Timeout, MaxAckDeadline))
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", cfg.Database.Driver))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database: dsn is required"))
	}

	switch cfg.Watermark.Backend {
	case "file", "sql":
	default:
		errs = append(errs, fmt.Errorf("watermark: unsupported backend %q", cfg.Watermark.Backend))
	}

	return errors.Join(errs...)
}

func applyEnv(cfg *models.Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Gmail.ClientID, "GOOGLE_CLIENT_ID")
	set(&cfg.Gmail.ClientSecret, "GOOGLE_CLIENT_SECRET")
	set(&cfg.Gmail.RefreshToken, "GOOGLE_REFRESH_TOKEN")
	set(&cfg.LLM.APIKey, "LLM_API_KEY")
	set(&cfg.Database.DSN, "DATABASE_DSN")
	set(&cfg.Email.Password, "IMAP_PASSWORD")
}
