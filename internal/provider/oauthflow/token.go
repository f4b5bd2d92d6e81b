package oauthflow

import (
	"context"
	"fmt"
	"time"

	"github.com/esprit-sec/esprit/internal/httpclient"
)

// TokenResponse is the common shape returned by OAuth token endpoints.
type TokenResponse struct {
	AccessToken  string  `json:"access_token,omitempty"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	IDToken      string  `json:"id_token,omitempty"`
	ExpiresIn    float64 `json:"expires_in,omitempty"`
	TokenType    string  `json:"token_type,omitempty"`
	Scope        string  `json:"scope,omitempty"`
	Error        string  `json:"error,omitempty"`
	ErrorDesc    string  `json:"error_description,omitempty"`
}

// ExpiresAtMillis converts expires_in to an absolute unix-milli expiry,
// defaulting to one hour when the server omits it.
func (t *TokenResponse) ExpiresAtMillis() int64 {
	expiresIn := t.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return time.Now().UnixMilli() + int64(expiresIn*1000)
}

// PostToken sends a form-encoded request to an OAuth token endpoint and
// decodes the response. Non-200 statuses and error payloads come back
// as errors.
func PostToken(ctx context.Context, tokenURL string, form map[string]string, opts ...httpclient.RequestOption) (*TokenResponse, error) {
	client := httpclient.New()
	var tok TokenResponse
	resp, err := client.PostFormCtx(ctx, tokenURL, form, &tok, opts...)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("token request failed: HTTP %d: %s", resp.StatusCode, httpclient.SummarizeBody(resp.Body))
	}
	if resp.JSONErr != nil {
		return nil, fmt.Errorf("invalid token response: %w", resp.JSONErr)
	}
	if tok.Error != "" {
		desc := tok.ErrorDesc
		if desc == "" {
			desc = tok.Error
		}
		return nil, fmt.Errorf("token request rejected: %s", desc)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}
	return &tok, nil
}
