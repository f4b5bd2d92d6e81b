// Package anthropic authenticates against the Anthropic API with
// either a Claude OAuth login or a plain API key.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/esprit-sec/esprit/internal/provider"
	"github.com/esprit-sec/esprit/internal/provider/oauthflow"
)

const (
	clientID     = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	authorizeURL = "https://claude.ai/oauth/authorize"
	tokenURL     = "https://console.anthropic.com/v1/oauth/token"
	redirectURI  = "https://console.anthropic.com/oauth/code/callback"
	scopes       = "org:create_api_key user:profile user:inference"

	betaTag          = "oauth-2025-04-20"
	anthropicVersion = "2023-06-01"
)

// Adapter is the Anthropic provider.
type Adapter struct{}

func (Adapter) ID() string              { return "anthropic" }
func (Adapter) Name() string            { return "Anthropic" }
func (Adapter) Family() provider.Family { return provider.FamilyChat }
func (Adapter) MultiAccount() bool      { return false }
func (Adapter) Models() []string        { return nil }
func (Adapter) BaseURL() string         { return "https://api.anthropic.com/v1" }

type authSession struct {
	pkce  oauthflow.PKCE
	state string
}

// Authorize builds the Claude consent URL. The callback page displays
// a code#state pair for the user to paste back.
func (Adapter) Authorize(ctx context.Context) (*provider.AuthSession, error) {
	pkce := oauthflow.NewPKCE()
	state := oauthflow.NewState()

	params := url.Values{
		"code":                  {"true"},
		"client_id":             {clientID},
		"response_type":         {"code"},
		"redirect_uri":          {redirectURI},
		"scope":                 {scopes},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {"S256"},
		"state":                 {state},
	}

	return &provider.AuthSession{
		URL:          authorizeURL + "?" + params.Encode(),
		Instructions: "Log in with your Claude account, then paste the code shown on the callback page.",
		NeedsInput:   true,
		Prompt:       "Paste authorization code",
		Session:      &authSession{pkce: pkce, state: state},
	}, nil
}

// Wait is not used; the flow completes through Exchange.
func (Adapter) Wait(ctx context.Context, session *provider.AuthSession) (*provider.Credentials, error) {
	return nil, fmt.Errorf("anthropic: login requires the pasted code")
}

// Exchange trades the pasted code#state pair for tokens.
func (Adapter) Exchange(ctx context.Context, session *provider.AuthSession, input string) (*provider.Credentials, error) {
	s, ok := session.Session.(*authSession)
	if !ok {
		return nil, fmt.Errorf("anthropic: invalid auth session")
	}

	code, state, _ := strings.Cut(strings.TrimSpace(input), "#")
	if code == "" {
		return nil, fmt.Errorf("anthropic: empty authorization code")
	}
	if state != "" && state != s.state {
		return nil, fmt.Errorf("anthropic: state mismatch")
	}

	tok, err := oauthflow.PostToken(ctx, tokenURL, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"state":         state,
		"client_id":     clientID,
		"redirect_uri":  redirectURI,
		"code_verifier": s.pkce.Verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return &provider.Credentials{
		Type:         provider.TypeOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAtMillis(),
	}, nil
}

// Refresh exchanges the refresh token for a new access token.
func (Adapter) Refresh(ctx context.Context, creds *provider.Credentials) (*provider.Credentials, error) {
	if creds == nil || creds.Type != provider.TypeOAuth || creds.RefreshToken == "" {
		return nil, provider.ErrNotRefreshable
	}
	tok, err := oauthflow.PostToken(ctx, tokenURL, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
		"client_id":     clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	return &provider.Credentials{
		Type:         provider.TypeOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tok.ExpiresAtMillis(),
		Extra:        creds.Extra,
	}, nil
}

// ModifyRequest sets Anthropic auth headers: an API key when that is
// what is stored, otherwise the OAuth bearer with its beta tag.
func (Adapter) ModifyRequest(req *http.Request, creds *provider.Credentials) error {
	req.Header.Set("anthropic-version", anthropicVersion)
	if creds.Type == provider.TypeAPI {
		req.Header.Set("x-api-key", creds.AccessToken)
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("anthropic-beta", betaTag)
	return nil
}

func init() {
	provider.Register(Adapter{})
}
