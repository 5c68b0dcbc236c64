// Package gmail implements the mailbox provider over the Gmail API.
package gmail

import (
	"context"
	"errors"

	"rfp-mail-ingest/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// CredentialProvider turns the configured OAuth client and refresh token into
// access tokens. It is built once at startup and shared by every request.
type CredentialProvider struct {
	config *oauth2.Config
	token  *oauth2.Token
}

// NewCredentialProvider validates the OAuth settings
func NewCredentialProvider(cfg models.GmailConfig) (*CredentialProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("gmail client id and secret are required")
	}
	if cfg.RefreshToken == "" {
		return nil, errors.New("gmail refresh token is required")
	}

	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &CredentialProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{gmailapi.GmailModifyScope},
		},
		token: &oauth2.Token{RefreshToken: cfg.RefreshToken},
	}, nil
}

// TokenSource returns a caching source that refreshes the access token when it expires
func (c *CredentialProvider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, c.config.TokenSource(ctx, c.token))
}
