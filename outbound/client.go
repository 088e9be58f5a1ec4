// Package outbound talks to an external OAuth 2.0 identity provider: it exchanges a
// one-time authorization code for a provider access token and reads the signed-in
// user's profile from the userinfo endpoint.
//
// Neither call is retried. An authorization code is single-use, so retry policy
// belongs to the caller that obtained it.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const (
	// DefaultTokenURL is Google's token endpoint.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	// DefaultUserInfoURL is Google's OpenID userinfo endpoint.
	DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	// DefaultTimeout bounds each provider call when Config.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	maxUserInfoBytes = 1 << 20
)

var (
	// ErrExchangeFailed is returned when the code cannot be exchanged for a token.
	ErrExchangeFailed = errors.New("outbound token exchange failed")
	// ErrIdentityFetchFailed is returned when the userinfo call fails or returns no
	// email.
	ErrIdentityFetchFailed = errors.New("outbound identity fetch failed")
)

// Config holds the static provider registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenURL     string
	UserInfoURL  string
	Timeout      time.Duration
	// HTTPClient is used for both calls; nil means a client with Timeout.
	HTTPClient *http.Client
}

// Identity is the provider's view of the signed-in user.
type Identity struct {
	Email       string
	DisplayName string
	GivenName   string
	FamilyName  string
	PictureURL  string
}

// Client is safe for concurrent use.
type Client struct {
	oauth       *oauth2.Config
	userInfoURL string
	timeout     time.Duration
	httpClient  *http.Client
}

// NewClient validates cfg and fills defaults.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("outbound client id is required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		timeout:     cfg.Timeout,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// Exchange posts the authorization code, client credentials, redirect URI and
// grant type as a form to the token endpoint and returns the provider access
// token.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: empty authorization code", ErrExchangeFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return tok.AccessToken, nil
}

// FetchIdentity reads the userinfo document with the provider access token.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrIdentityFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrIdentityFetchFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrIdentityFetchFailed, resp.StatusCode)
	}

	return parseIdentity(body)
}

func parseIdentity(body []byte) (*Identity, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrIdentityFetchFailed)
	}

	fields := gjson.GetManyBytes(body, "email", "name", "given_name", "family_name", "picture")
	id := &Identity{
		Email:       strings.TrimSpace(fields[0].String()),
		DisplayName: strings.TrimSpace(fields[1].String()),
		GivenName:   fields[2].String(),
		FamilyName:  fields[3].String(),
		PictureURL:  fields[4].String(),
	}
	if id.Email == "" {
		return nil, fmt.Errorf("%w: userinfo has no email", ErrIdentityFetchFailed)
	}
	if id.DisplayName == "" {
		id.DisplayName = strings.TrimSpace(id.GivenName + " " + id.FamilyName)
	}
	return id, nil
}
