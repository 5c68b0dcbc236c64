package models

import "time"

// Config represents the application configuration
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Gmail       GmailConfig       `yaml:"gmail"`
	PubSub      PubSubConfig      `yaml:"pubsub"`
	Email       EmailConfig       `yaml:"email"`
	Database    DatabaseConfig    `yaml:"database"`
	Watermark   WatermarkConfig   `yaml:"watermark"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	LLM         LLMConfig         `yaml:"llm"`
	Ingest      IngestConfig      `yaml:"ingest"`
}

// LogConfig controls the logger
type LogConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig configures the push webhook HTTP server
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	WebhookPath  string `yaml:"webhookPath"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes"`
}

// GmailConfig configures the Gmail API provider
type GmailConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	RefreshToken string        `yaml:"refreshToken"`
	TokenURL     string        `yaml:"tokenUrl"`
	EmailAddress string        `yaml:"emailAddress"`
	WatchTopic   string        `yaml:"watchTopic"`
	WatchLabels  []string      `yaml:"watchLabels"`
	WatchRenew   time.Duration `yaml:"watchRenew"`
	Retry        RetryConfig   `yaml:"retry"`
}

// RetryConfig controls transport-level retries of provider calls
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// PubSubConfig enables the pull-subscription alternative to the push webhook
type PubSubConfig struct {
	ProjectID       string `yaml:"projectId"`
	Subscription    string `yaml:"subscription"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// EmailConfig represents IMAP email configuration
type EmailConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Imap        string        `yaml:"imap"`
	Login       string        `yaml:"login"`
	Password    string        `yaml:"password"`
	RefreshTime time.Duration `yaml:"refreshTime"`
	MailBox     string        `yaml:"mailbox"`
}

// DatabaseConfig selects the persistence backend
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// WatermarkConfig selects where history cursors are kept
type WatermarkConfig struct {
	Backend string `yaml:"backend"` // file or sql
	Path    string `yaml:"path"`
}

// AttachmentsConfig controls attachment download and rendering
type AttachmentsConfig struct {
	TempDir  string `yaml:"tempDir"`
	MaxBytes int64  `yaml:"maxBytes"`
}

// LLMConfig configures the OpenAI-compatible extraction model
type LLMConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// IngestConfig tunes the ingestion pipeline
type IngestConfig struct {
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
	DedupMax      int           `yaml:"dedupMax"`
	DedupKeep     int           `yaml:"dedupKeep"`
	DedupInterval time.Duration `yaml:"dedupInterval"`
}
