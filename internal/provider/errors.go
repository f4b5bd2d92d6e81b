package provider

import "errors"

var (
	// ErrNotRefreshable means the credential type has no refresh flow.
	ErrNotRefreshable = errors.New("credentials cannot be refreshed")
	// ErrNoCredentials means no credential is stored for the provider.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrAuthDeclined means the user cancelled or the provider rejected
	// the interactive login.
	ErrAuthDeclined = errors.New("authorization declined")
)
