// Package antigravity integrates Google's Cloud Code API, which serves
// Claude and Gemini models behind a Google OAuth login. The adapter
// handles the loopback OAuth flow, project discovery, token refresh,
// and the Cloud Code request wire format.
package antigravity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/esprit-sec/esprit/internal/httpclient"
	"github.com/esprit-sec/esprit/internal/provider"
	"github.com/esprit-sec/esprit/internal/provider/oauthflow"
)

// Google OAuth configuration. This is the Antigravity (Cloud Code IDE)
// installed-application client, where the secret ships in the binary.
const (
	clientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	clientSecret = "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"
	authURL      = "https://accounts.google.com/o/oauth2/v2/auth"
	tokenURL     = "https://oauth2.googleapis.com/token"
	userInfoURL  = "https://www.googleapis.com/oauth2/v1/userinfo"
)

var oauthScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/cclog",
	"https://www.googleapis.com/auth/experimentsandconfigs",
}

// Endpoints for streaming, in fallback order: sandbox daily, sandbox
// autopush, then production. Production does not serve Claude models.
var Endpoints = []string{
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
	"https://autopush-cloudcode-pa.sandbox.googleapis.com",
	"https://cloudcode-pa.googleapis.com",
}

// loadEndpoints for project discovery, production first.
var loadEndpoints = []string{
	"https://cloudcode-pa.googleapis.com",
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
	"https://autopush-cloudcode-pa.sandbox.googleapis.com",
}

// callbackTimeout bounds how long the login waits for the browser.
const callbackTimeout = 5 * time.Minute

// Adapter is the antigravity provider.
type Adapter struct{}

func (Adapter) ID() string              { return "antigravity" }
func (Adapter) Name() string            { return "Antigravity (Free Claude/Gemini)" }
func (Adapter) Family() provider.Family { return provider.FamilyCloudCode }
func (Adapter) MultiAccount() bool      { return true }
func (Adapter) Models() []string        { return ModelNames() }
func (Adapter) BaseURL() string         { return "" }

type authSession struct {
	pkce     oauthflow.PKCE
	state    string
	loopback *oauthflow.Loopback
}

// Authorize starts the loopback server and returns the Google consent
// URL for the user's browser.
func (Adapter) Authorize(ctx context.Context) (*provider.AuthSession, error) {
	pkce := oauthflow.NewPKCE()
	state := oauthflow.NewState()

	lb, err := oauthflow.StartLoopback(state)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {lb.RedirectURI()},
		"scope":                 {strings.Join(oauthScopes, " ")},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {"S256"},
		"state":                 {state},
		"access_type":           {"offline"},
		"prompt":                {"consent"},
	}

	return &provider.AuthSession{
		URL:          authURL + "?" + params.Encode(),
		Instructions: "Complete Google login in browser.",
		Session:      &authSession{pkce: pkce, state: state, loopback: lb},
	}, nil
}

// Wait blocks for the browser callback, exchanges the code, looks up
// the account email, and discovers the Cloud Code project.
func (a Adapter) Wait(ctx context.Context, session *provider.AuthSession) (*provider.Credentials, error) {
	s, ok := session.Session.(*authSession)
	if !ok {
		return nil, fmt.Errorf("antigravity: invalid auth session")
	}
	defer s.loopback.Close()

	ctx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	code, err := s.loopback.Wait(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := oauthflow.PostToken(ctx, tokenURL, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  s.loopback.RedirectURI(),
		"client_id":     clientID,
		"client_secret": clientSecret,
		"code_verifier": s.pkce.Verifier,
	})
	if err != nil {
		return nil, err
	}

	extra := map[string]string{
		"email": fetchEmail(ctx, tok.AccessToken),
	}
	if projectID, managed, err := DiscoverProject(ctx, tok.AccessToken); err == nil {
		extra["project_id"] = projectID
		if managed != "" {
			extra["managed_project_id"] = managed
		}
	}

	return &provider.Credentials{
		Type:         provider.TypeOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAtMillis(),
		Extra:        extra,
	}, nil
}

func fetchEmail(ctx context.Context, accessToken string) string {
	client := httpclient.New()
	var info struct {
		Email string `json:"email"`
	}
	resp, err := client.GetJSONCtx(ctx, userInfoURL, &info, httpclient.WithBearer(accessToken))
	if err != nil || resp.StatusCode != 200 || resp.JSONErr != nil || info.Email == "" {
		return "unknown"
	}
	return info.Email
}

// Refresh exchanges the refresh token for a fresh access token,
// preserving the account metadata.
func (Adapter) Refresh(ctx context.Context, creds *provider.Credentials) (*provider.Credentials, error) {
	if creds == nil || creds.RefreshToken == "" {
		return nil, provider.ErrNotRefreshable
	}
	tok, err := oauthflow.PostToken(ctx, tokenURL, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("antigravity: %w", err)
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

// ModifyRequest applies Cloud Code authentication and client headers.
func (Adapter) ModifyRequest(req *http.Request, creds *provider.Credentials) error {
	for k, v := range BaseHeaders(creds.AccessToken) {
		req.Header.Set(k, v)
	}
	return nil
}

func clientMetadata() string {
	data, _ := json.Marshal(map[string]string{
		"ideType":    "IDE_UNSPECIFIED",
		"platform":   "PLATFORM_UNSPECIFIED",
		"pluginType": "GEMINI",
	})
	return string(data)
}

// BaseHeaders returns the headers common to every Cloud Code call.
func BaseHeaders(accessToken string) map[string]string {
	return map[string]string{
		"Authorization":     "Bearer " + accessToken,
		"Content-Type":      "application/json",
		"User-Agent":        fmt.Sprintf("antigravity/1.15.8 %s/%s", runtime.GOOS, runtime.GOARCH),
		"X-Goog-Api-Client": "google-cloud-sdk vscode_cloudshelleditor/0.1",
		"Client-Metadata":   clientMetadata(),
	}
}

// StreamHeaders returns the headers for a streaming generate call.
// Claude thinking models need the interleaved-thinking beta flag.
func StreamHeaders(accessToken, model string) map[string]string {
	headers := BaseHeaders(accessToken)
	headers["Accept"] = "text/event-stream"
	if strings.Contains(model, "claude") && strings.Contains(model, "thinking") {
		headers["anthropic-beta"] = "interleaved-thinking-2025-05-14"
	}
	return headers
}

// DiscoverProject resolves the Cloud Code project via loadCodeAssist,
// trying each endpoint until one answers. Returns the project id and
// the managed project id, when present.
func DiscoverProject(ctx context.Context, accessToken string) (projectID, managedID string, err error) {
	client := httpclient.NewWithTimeout(15 * time.Second)
	headers := BaseHeaders(accessToken)
	headers["User-Agent"] = "google-api-nodejs-client/9.15.1"

	body := map[string]any{
		"metadata": map[string]string{
			"ideType":    "IDE_UNSPECIFIED",
			"platform":   "PLATFORM_UNSPECIFIED",
			"pluginType": "GEMINI",
		},
	}

	for _, endpoint := range loadEndpoints {
		var out struct {
			// cloudaicompanionProject is a string or an object with id
			CloudAICompanionProject json.RawMessage `json:"cloudaicompanionProject"`
			ProjectID               string          `json:"projectId"`
			ManagedProjectID        string          `json:"managedProjectId"`
		}
		resp, reqErr := client.PostJSONCtx(ctx, endpoint+"/v1internal:loadCodeAssist", body, &out,
			httpclient.WithHeaders(headers))
		if reqErr != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 || resp.JSONErr != nil {
			continue
		}

		project := out.ProjectID
		if len(out.CloudAICompanionProject) > 0 {
			var s string
			if json.Unmarshal(out.CloudAICompanionProject, &s) == nil && s != "" {
				project = s
			} else {
				var obj struct {
					ID string `json:"id"`
				}
				if json.Unmarshal(out.CloudAICompanionProject, &obj) == nil && obj.ID != "" {
					project = obj.ID
				}
			}
		}
		if project != "" {
			return project, out.ManagedProjectID, nil
		}
	}
	return "", "", fmt.Errorf("antigravity: no Cloud Code project found")
}

// StreamURL builds the SSE generate URL for an endpoint.
func StreamURL(endpoint string) string {
	return endpoint + "/v1internal:streamGenerateContent?alt=sse"
}

func init() {
	provider.Register(Adapter{})
}
