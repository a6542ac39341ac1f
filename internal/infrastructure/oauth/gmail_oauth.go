package oauth

import (
	"context"
	"errors"
	"fmt"

	"sustainflow-service/pkg/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// ErrNoRefreshToken is returned when Google did not hand out a refresh token
// or none was configured
var ErrNoRefreshToken = errors.New("gmail refresh token missing")

// Credentials identify the Google OAuth client that sends notification mail
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// RedirectURL is only needed for the one-off consent flow
	RedirectURL string
}

// GmailOAuth issues Gmail API tokens limited to the send scope
type GmailOAuth struct {
	config       *oauth2.Config
	refreshToken string
	logger       logger.Logger
}

// NewGmailOAuth creates the OAuth handler used by the email channel
func NewGmailOAuth(creds Credentials, logger logger.Logger) (*GmailOAuth, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("gmail client id and secret are required")
	}

	return &GmailOAuth{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		},
		refreshToken: creds.RefreshToken,
		logger:       logger,
	}, nil
}

// TokenSource returns a cached source that refreshes the access token on demand
func (o *GmailOAuth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if o.refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	// No access token yet, so the first call goes straight to the refresh grant
	seed := &oauth2.Token{RefreshToken: o.refreshToken}
	return oauth2.ReuseTokenSource(nil, o.config.TokenSource(ctx, seed)), nil
}

// Verify fetches one access token so a revoked refresh token fails at startup
// rather than on the first notification
func (o *GmailOAuth) Verify(ctx context.Context, ts oauth2.TokenSource) error {
	token, err := ts.Token()
	if err != nil {
		return fmt.Errorf("gmail token refresh failed: %w", err)
	}
	o.logger.Info("Gmail credentials verified", "expiry", token.Expiry)
	return nil
}

// AuthURL builds the consent URL. Offline access with forced approval makes
// Google return a refresh token every time.
func (o *GmailOAuth) AuthURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for the refresh token to configure
func (o *GmailOAuth) ExchangeCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("authorization code is empty")
	}

	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}
	if token.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	o.logger.Info("Refresh token obtained", "scope", gmail.GmailSendScope)
	return token.RefreshToken, nil
}
