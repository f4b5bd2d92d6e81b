// Package copilot authenticates against GitHub Copilot. Login runs the
// GitHub device flow; the resulting GitHub token is then exchanged for
// a short-lived Copilot bearer, which is what API requests carry.
package copilot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/esprit-sec/esprit/internal/httpclient"
	"github.com/esprit-sec/esprit/internal/provider"
	"github.com/esprit-sec/esprit/internal/provider/oauthflow"
)

const (
	// VS Code Copilot OAuth app client ID.
	clientID      = "Iv1.b507a08c87ecfe98"
	deviceCodeURL = "https://github.com/login/device/code"
	tokenURL      = "https://github.com/login/oauth/access_token"

	// Exchanges a GitHub token for a Copilot API bearer.
	copilotTokenURL = "https://api.github.com/copilot_internal/v2/token"

	editorVersion = "vscode/1.99.3"
	integrationID = "vscode-chat"
)

var copilotModels = []string{
	"gpt-5",
	"gpt-5-mini",
	"claude-sonnet-4-5",
	"o3",
	"o4-mini",
}

// Adapter is the GitHub Copilot provider.
type Adapter struct{}

func (Adapter) ID() string              { return "copilot" }
func (Adapter) Name() string            { return "GitHub Copilot" }
func (Adapter) Family() provider.Family { return provider.FamilyChat }
func (Adapter) MultiAccount() bool      { return false }
func (Adapter) Models() []string        { return append([]string(nil), copilotModels...) }
func (Adapter) BaseURL() string         { return "https://api.githubcopilot.com" }

func deviceConfig() oauthflow.DeviceConfig {
	return oauthflow.DeviceConfig{
		DeviceCodeURL:    deviceCodeURL,
		DeviceCodeParams: map[string]string{"client_id": clientID, "scope": "read:user"},
		TokenURL:         tokenURL,
		TokenParams:      map[string]string{"client_id": clientID},
		HTTPOptions:      []httpclient.RequestOption{httpclient.WithHeader("Accept", "application/json")},
		FormatCode:       formatUserCode,
	}
}

// formatUserCode splits an 8-character code as XXXX-YYYY for display.
func formatUserCode(code string) string {
	if len(code) == 8 {
		return code[:4] + "-" + code[4:]
	}
	return code
}

// Authorize requests a device code from GitHub.
func (Adapter) Authorize(ctx context.Context) (*provider.AuthSession, error) {
	dc, err := oauthflow.RequestDeviceCode(ctx, deviceConfig())
	if err != nil {
		return nil, fmt.Errorf("copilot: %w", err)
	}
	return &provider.AuthSession{
		URL:          dc.VerificationURI,
		Instructions: fmt.Sprintf("Open %s and enter code %s", dc.VerificationURI, dc.UserCode),
		Session:      dc,
	}, nil
}

// Wait polls GitHub until the user approves, then exchanges the GitHub
// token for a Copilot bearer. The GitHub token is kept as the refresh
// token so the bearer can be re-minted when it expires.
func (Adapter) Wait(ctx context.Context, session *provider.AuthSession) (*provider.Credentials, error) {
	dc, ok := session.Session.(*oauthflow.DeviceCode)
	if !ok {
		return nil, fmt.Errorf("copilot: invalid auth session")
	}

	tok, err := oauthflow.PollForToken(ctx, deviceConfig(), dc)
	if err != nil {
		return nil, fmt.Errorf("copilot: %w", err)
	}

	return exchangeGitHubToken(ctx, tok.AccessToken)
}

// Refresh re-exchanges the stored GitHub token for a fresh Copilot bearer.
func (Adapter) Refresh(ctx context.Context, creds *provider.Credentials) (*provider.Credentials, error) {
	if creds == nil || creds.Type != provider.TypeOAuth || creds.RefreshToken == "" {
		return nil, provider.ErrNotRefreshable
	}
	return exchangeGitHubToken(ctx, creds.RefreshToken)
}

// ModifyRequest sets the Copilot bearer and the editor identity headers
// the Copilot API requires.
func (Adapter) ModifyRequest(req *http.Request, creds *provider.Credentials) error {
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Editor-Version", editorVersion)
	req.Header.Set("Copilot-Integration-Id", integrationID)
	return nil
}

type copilotTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

var copilotTokenEndpoint = copilotTokenURL

func exchangeGitHubToken(ctx context.Context, githubToken string) (*provider.Credentials, error) {
	client := httpclient.New()
	var tok copilotTokenResponse
	resp, err := client.GetJSONCtx(ctx, copilotTokenEndpoint, &tok,
		httpclient.WithHeader("Authorization", "token "+githubToken),
		httpclient.WithHeader("Accept", "application/json"),
	)
	if err != nil {
		return nil, fmt.Errorf("copilot: token exchange: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("copilot: token exchange failed: %d", resp.StatusCode)
	}
	if resp.JSONErr != nil {
		return nil, fmt.Errorf("copilot: token exchange: %w", resp.JSONErr)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("copilot: token exchange returned no token")
	}

	return &provider.Credentials{
		Type:         provider.TypeOAuth,
		AccessToken:  tok.Token,
		RefreshToken: githubToken,
		ExpiresAt:    tok.ExpiresAt * 1000,
	}, nil
}

func init() {
	provider.Register(Adapter{})
}
