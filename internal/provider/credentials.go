package provider

import "time"

// CredentialType distinguishes OAuth token sets from plain API keys.
type CredentialType string

const (
	TypeOAuth CredentialType = "oauth"
	TypeAPI   CredentialType = "api"
)

// Credentials is a stored credential for one provider. OAuth credentials
// carry a refresh token and an expiry; API-key credentials carry only the
// key in AccessToken and never expire.
type Credentials struct {
	Type         CredentialType    `json:"type"`
	AccessToken  string            `json:"access,omitempty"`
	RefreshToken string            `json:"refresh,omitempty"`
	ExpiresAt    int64             `json:"expires,omitempty"`
	AccountID    string            `json:"accountId,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// IsExpired reports whether an OAuth access token has passed its expiry.
// ExpiresAt is unix milliseconds; zero means no known expiry.
func (c *Credentials) IsExpired() bool {
	if c == nil || c.Type != TypeOAuth || c.ExpiresAt == 0 {
		return false
	}
	return time.Now().UnixMilli() >= c.ExpiresAt
}

// Email returns the account email recorded at login, if any.
func (c *Credentials) Email() string {
	if c == nil {
		return ""
	}
	return c.Extra["email"]
}

// ProjectID returns the cloud project id discovered at login, if any.
func (c *Credentials) ProjectID() string {
	if c == nil {
		return ""
	}
	return c.Extra["project_id"]
}
