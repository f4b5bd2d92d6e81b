// Package openai authenticates against the OpenAI Codex backend with
// a ChatGPT OAuth login or a plain API key.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/esprit-sec/esprit/internal/provider"
	"github.com/esprit-sec/esprit/internal/provider/oauthflow"
)

const (
	// OAuth client ID registered for the Codex CLI. The redirect URI
	// is fixed to localhost:1455, so the callback server must bind
	// that exact port.
	clientID     = "app_EMoamEEZ73f0CkXaXp7hrann"
	authorizeURL = "https://auth.openai.com/oauth/authorize"
	tokenURL     = "https://auth.openai.com/oauth/token"
	scopes       = "openid profile email offline_access"

	callbackAddr = "localhost:1455"
	callbackPath = "/auth/callback"

	authWaitTimeout = 5 * time.Minute
)

var codexModels = []string{
	"gpt-5.3-codex",
	"gpt-5.2-codex",
	"gpt-5.2",
	"gpt-5.1-codex",
	"gpt-5.1-codex-max",
	"gpt-5.1-codex-mini",
	"codex-mini-latest",
}

// Adapter is the OpenAI provider.
type Adapter struct{}

func (Adapter) ID() string              { return "openai" }
func (Adapter) Name() string            { return "OpenAI" }
func (Adapter) Family() provider.Family { return provider.FamilyChat }
func (Adapter) MultiAccount() bool      { return true }
func (Adapter) Models() []string        { return append([]string(nil), codexModels...) }
func (Adapter) BaseURL() string         { return "https://api.openai.com/v1" }

type authSession struct {
	pkce     oauthflow.PKCE
	state    string
	loopback *oauthflow.Loopback
}

// Authorize starts the local callback server and builds the consent URL.
func (Adapter) Authorize(ctx context.Context) (*provider.AuthSession, error) {
	pkce := oauthflow.NewPKCE()
	state := oauthflow.NewState()

	lb, err := oauthflow.StartLoopbackAt(callbackAddr, callbackPath, state)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	params := url.Values{
		"response_type":              {"code"},
		"client_id":                  {clientID},
		"redirect_uri":               {lb.RedirectURI()},
		"scope":                      {scopes},
		"code_challenge":             {pkce.Challenge},
		"code_challenge_method":      {"S256"},
		"state":                      {state},
		"id_token_add_organizations": {"true"},
		"codex_cli_simplified_flow":  {"true"},
	}

	return &provider.AuthSession{
		URL:          authorizeURL + "?" + params.Encode(),
		Instructions: "Log in with your ChatGPT account in the opened browser tab.",
		Session:      &authSession{pkce: pkce, state: state, loopback: lb},
	}, nil
}

// Wait blocks until the browser redirects back, then exchanges the code.
func (Adapter) Wait(ctx context.Context, session *provider.AuthSession) (*provider.Credentials, error) {
	s, ok := session.Session.(*authSession)
	if !ok {
		return nil, fmt.Errorf("openai: invalid auth session")
	}
	defer s.loopback.Close()

	ctx, cancel := context.WithTimeout(ctx, authWaitTimeout)
	defer cancel()

	code, err := s.loopback.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	tok, err := oauthflow.PostToken(ctx, tokenURL, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"client_id":     clientID,
		"redirect_uri":  s.loopback.RedirectURI(),
		"code_verifier": s.pkce.Verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	creds := &provider.Credentials{
		Type:         provider.TypeOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAtMillis(),
	}
	applyIDTokenClaims(creds, tok.IDToken)
	return creds, nil
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
		"scope":         scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	out := &provider.Credentials{
		Type:         provider.TypeOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tok.ExpiresAtMillis(),
		AccountID:    creds.AccountID,
		Extra:        creds.Extra,
	}
	applyIDTokenClaims(out, tok.IDToken)
	return out, nil
}

// ModifyRequest sets the bearer token, and for OAuth logins the
// ChatGPT account the token belongs to.
func (Adapter) ModifyRequest(req *http.Request, creds *provider.Credentials) error {
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	if creds.Type == provider.TypeOAuth && creds.AccountID != "" {
		req.Header.Set("ChatGPT-Account-Id", creds.AccountID)
	}
	return nil
}

// idTokenClaims is the subset of the ChatGPT id_token payload we need.
type idTokenClaims struct {
	Email string `json:"email"`
	Auth  struct {
		ChatGPTAccountID string `json:"chatgpt_account_id"`
	} `json:"https://api.openai.com/auth"`
}

// applyIDTokenClaims extracts the account ID and email from a JWT
// id_token. Signature verification is skipped; the token came straight
// from the token endpoint over TLS.
func applyIDTokenClaims(creds *provider.Credentials, idToken string) {
	claims, err := parseIDToken(idToken)
	if err != nil {
		return
	}
	if claims.Auth.ChatGPTAccountID != "" {
		creds.AccountID = claims.Auth.ChatGPTAccountID
	}
	if claims.Email != "" {
		if creds.Extra == nil {
			creds.Extra = map[string]string{}
		}
		creds.Extra["email"] = claims.Email
	}
}

func parseIDToken(idToken string) (*idTokenClaims, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed id_token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding id_token payload: %w", err)
	}
	var claims idTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("parsing id_token claims: %w", err)
	}
	return &claims, nil
}

func init() {
	provider.Register(Adapter{})
}
