package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"rfp-mail-ingest/internal/models"
)

func TestLoad(t *testing.T) {
	yamlContent := `gmail:
  enabled: true
  clientId: "client"
  clientSecret: "secret"
  refreshToken: "refresh"
  emailAddress: "buyer@x.com"
  watchTopic: "projects/p/topics/t"
email:
  enabled: true
  imap: "imap.test.com:993"
  login: "test@example.com"
  password: "testpass"
  refreshTime: 30s
  mailbox: "INBOX"
database:
  driver: sqlite
  dsn: "/tmp/test.db"
ingest:
  workers: 8
  dedupInterval: 10m
`

	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer func(name string) {
		_ = os.Remove(name)
	}(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(yamlContent)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	_ = tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Email.Imap != "imap.test.com:993" {
		t.Errorf("Expected imap 'imap.test.com:993', got '%s'", cfg.Email.Imap)
	}

	if cfg.Email.RefreshTime != 30*time.Second {
		t.Errorf("Expected refreshTime 30s, got %v", cfg.Email.RefreshTime)
	}

	if cfg.Gmail.EmailAddress != "buyer@x.com" {
		t.Errorf("Expected gmail emailAddress 'buyer@x.com', got '%s'", cfg.Gmail.EmailAddress)
	}

	if cfg.Ingest.Workers != 8 {
		t.Errorf("Expected 8 workers, got %d", cfg.Ingest.Workers)
	}

	if cfg.Ingest.DedupInterval != 10*time.Minute {
		t.Errorf("Expected dedupInterval 10m, got %v", cfg.Ingest.DedupInterval)
	}

	// defaults
	if cfg.Server.WebhookPath != "/webhooks/gmail" {
		t.Errorf("Expected default webhook path, got '%s'", cfg.Server.WebhookPath)
	}
	if cfg.Ingest.DedupMax != 2000 || cfg.Ingest.DedupKeep != 1000 {
		t.Errorf("Expected dedup bounds 2000/1000, got %d/%d", cfg.Ingest.DedupMax, cfg.Ingest.DedupKeep)
	}
	if cfg.Watermark.Backend != "file" {
		t.Errorf("Expected default watermark backend 'file', got '%s'", cfg.Watermark.Backend)
	}
	if len(cfg.Gmail.WatchLabels) != 1 || cfg.Gmail.WatchLabels[0] != "INBOX" {
		t.Errorf("Expected default watch labels [INBOX], got %v", cfg.Gmail.WatchLabels)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Config)
		wantErr string
	}{
		{
			name:    "No provider",
			mutate:  func(c *models.Config) {},
			wantErr: "no mail provider enabled",
		},
		{
			name: "Gmail without credentials",
			mutate: func(c *models.Config) {
				c.Gmail.Enabled = true
			},
			wantErr: "gmail: clientId",
		},
		{
			name: "Unsupported driver",
			mutate: func(c *models.Config) {
				c.Email = models.EmailConfig{Enabled: true, Imap: "imap:993", Login: "a@b.c"}
				c.Database.Driver = "mysql"
			},
			wantErr: "unsupported driver",
		},
		{
			name: "Valid IMAP setup",
			mutate: func(c *models.Config) {
				c.Email = models.EmailConfig{Enabled: true, Imap: "imap:993", Login: "a@b.c"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &models.Config{}
			tt.mutate(cfg)
			ApplyDefaults(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GOOGLE_REFRESH_TOKEN": "from-env",
		"LLM_API_KEY":          " key ",
	}
	cfg := &models.Config{}
	cfg.Gmail.RefreshToken = "from-file"

	applyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Gmail.RefreshToken != "from-env" {
		t.Errorf("Expected refresh token from env, got '%s'", cfg.Gmail.RefreshToken)
	}
	if cfg.LLM.APIKey != "key" {
		t.Errorf("Expected trimmed api key, got '%s'", cfg.LLM.APIKey)
	}
	if cfg.Gmail.ClientID != "" {
		t.Errorf("Expected untouched client id, got '%s'", cfg.Gmail.ClientID)
	}
}

func TestApplyDefaults_TimeoutsFitAckDeadline(t *testing.T) {
	cfg := &models.Config{}
	ApplyDefaults(cfg)

	if cfg.Ingest.Timeout != 2*time.Minute {
		t.Errorf("Expected ingest timeout 2m, got %v", cfg.Ingest.Timeout)
	}
	if cfg.LLM.Timeout >= cfg.Ingest.Timeout {
		t.Errorf("LLM timeout %v should be shorter than ingest timeout %v", cfg.LLM.Timeout, cfg.Ingest.Timeout)
	}
	if cfg.Ingest.Timeout > MaxAckDeadline {
		t.Errorf("Default ingest timeout %v exceeds %v", cfg.Ingest.Timeout, MaxAckDeadline)
	}
}

func TestValidate_IngestTimeoutAboveAckDeadline(t *testing.T) {
	cfg := &models.Config{
		Email:    models.EmailConfig{Enabled: true, Imap: "imap.test.com:993", Login: "a@b.c"},
		Database: models.DatabaseConfig{Driver: "sqlite", DSN: "x.db"},
		Ingest:   models.IngestConfig{Timeout: 11 * time.Minute},
	}
	ApplyDefaults(cfg)

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "ack deadline") {
		t.Errorf("Expected ack deadline error, got %v", err)
	}
}
