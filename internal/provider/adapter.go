package provider

import (
	"context"
	"net/http"
)

// Family selects how the dispatcher talks to a provider.
type Family string

const (
	// FamilyChat providers speak the OpenAI-compatible /chat/completions
	// SSE protocol.
	FamilyChat Family = "chat"
	// FamilyCloudCode providers speak the Cloud Code internal streaming
	// protocol with endpoint failover.
	FamilyCloudCode Family = "cloudcode"
)

// AuthSession is the in-progress state of an interactive login. URL is
// opened (or shown to) the user; Session holds adapter-private
// continuation state consumed by Wait or Exchange.
type AuthSession struct {
	URL          string
	Instructions string
	// NeedsInput means the provider redirects to a page that shows a
	// code the user must paste back; complete via CodeExchanger.
	NeedsInput bool
	Prompt     string
	Session    any
}

// CodeExchanger is implemented by adapters whose login flow ends with
// the user pasting a code instead of a loopback redirect.
type CodeExchanger interface {
	Exchange(ctx context.Context, session *AuthSession, input string) (*Credentials, error)
}

// Adapter is one provider integration. Implementations register
// themselves via Register from an init func.
type Adapter interface {
	// ID is the stable provider identifier ("anthropic", "openai", ...).
	ID() string
	// Name is the human-readable provider name.
	Name() string
	// Family selects the request protocol the dispatcher uses.
	Family() Family
	// MultiAccount reports whether the provider participates in the
	// account pool instead of the single-credential store.
	MultiAccount() bool
	// Models lists the bare model names this provider serves, used for
	// provider detection. May be empty for API-key providers that accept
	// arbitrary models.
	Models() []string

	// Authorize begins an interactive login and returns the session to
	// pass to Wait.
	Authorize(ctx context.Context) (*AuthSession, error)
	// Wait completes the login started by Authorize, blocking until the
	// user finishes (or ctx is done), and returns the new credentials.
	Wait(ctx context.Context, session *AuthSession) (*Credentials, error)
	// Refresh exchanges a refresh token for a fresh access token. Returns
	// ErrNotRefreshable for credential types that cannot be refreshed.
	Refresh(ctx context.Context, creds *Credentials) (*Credentials, error)

	// BaseURL is the default API base for FamilyChat providers; empty for
	// FamilyCloudCode.
	BaseURL() string
	// ModifyRequest applies authentication and any provider-specific URL
	// or header rewrites to an outgoing chat request.
	ModifyRequest(req *http.Request, creds *Credentials) error
}
