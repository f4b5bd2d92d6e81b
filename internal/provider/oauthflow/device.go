package oauthflow

import (
	"context"
	"fmt"
	"time"

	"github.com/esprit-sec/esprit/internal/httpclient"
)

// DeviceConfig describes a standard OAuth device code flow. The flow
// requests a code, hands the user a verification URL, then polls the
// token endpoint until approval.
type DeviceConfig struct {
	DeviceCodeURL    string
	DeviceCodeParams map[string]string
	TokenURL         string
	// TokenParams are the poll form fields; device_code is added
	// automatically.
	TokenParams map[string]string
	HTTPOptions []httpclient.RequestOption
	// FormatCode optionally reformats the user code for display
	// (e.g. "36F71B5E" to "36F7-1B5E").
	FormatCode func(code string) string
}

// DeviceCode is the user-facing half of a device flow.
type DeviceCode struct {
	VerificationURI string
	UserCode        string

	deviceCode string
	interval   int
}

type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	Interval                int    `json:"interval,omitempty"`
	ExpiresIn               int    `json:"expires_in,omitempty"`
}

// RequestDeviceCode starts a device flow and returns the code to show
// the user.
func RequestDeviceCode(ctx context.Context, cfg DeviceConfig) (*DeviceCode, error) {
	client := httpclient.New()
	var dc deviceCodeResponse
	resp, err := client.PostFormCtx(ctx, cfg.DeviceCodeURL, cfg.DeviceCodeParams, &dc, cfg.HTTPOptions...)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}
	if resp.JSONErr != nil {
		return nil, fmt.Errorf("invalid device code response: %w", resp.JSONErr)
	}
	if dc.DeviceCode == "" {
		return nil, fmt.Errorf("device code endpoint returned no code")
	}

	uri := dc.VerificationURI
	if uri == "" {
		uri = dc.VerificationURIComplete
	}
	code := dc.UserCode
	if cfg.FormatCode != nil {
		code = cfg.FormatCode(code)
	}
	interval := dc.Interval
	if interval == 0 {
		interval = 5
	}
	return &DeviceCode{
		VerificationURI: uri,
		UserCode:        code,
		deviceCode:      dc.DeviceCode,
		interval:        interval,
	}, nil
}

// PollForToken polls the token endpoint until the user approves,
// denies, or the context ends. slow_down responses stretch the
// interval as the server asks.
func PollForToken(ctx context.Context, cfg DeviceConfig, dc *DeviceCode) (*TokenResponse, error) {
	client := httpclient.New()

	params := make(map[string]string, len(cfg.TokenParams)+1)
	for k, v := range cfg.TokenParams {
		params[k] = v
	}
	params["device_code"] = dc.deviceCode

	interval := dc.interval
	for {
		var tok TokenResponse
		resp, err := client.PostFormCtx(ctx, cfg.TokenURL, params, &tok, cfg.HTTPOptions...)
		if err == nil && resp.JSONErr == nil && tok.AccessToken != "" {
			return &tok, nil
		}
		if err == nil && resp.JSONErr == nil {
			switch tok.Error {
			case "", "authorization_pending":
			case "slow_down":
				interval += 5
			case "expired_token":
				return nil, fmt.Errorf("device code expired")
			case "access_denied":
				return nil, fmt.Errorf("authorization denied")
			default:
				desc := tok.ErrorDesc
				if desc == "" {
					desc = tok.Error
				}
				return nil, fmt.Errorf("authentication error: %s", desc)
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for device authorization: %w", ctx.Err())
		case <-time.After(time.Duration(interval) * time.Second):
		}
	}
}
