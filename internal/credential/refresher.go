package credential

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// OAuthRefresher refreshes tokens against Google's OAuth endpoint
type OAuthRefresher struct {
	config *oauth2.Config
}

// NewOAuthRefresher creates a refresher for the given client credentials
func NewOAuthRefresher(clientID, clientSecret string) *OAuthRefresher {
	return &OAuthRefresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		},
	}
}

// Refresh performs a single refresh_token grant
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token grant: %w", err)
	}
	return token, nil
}
