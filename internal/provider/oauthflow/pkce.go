// Package oauthflow holds the OAuth plumbing shared by provider
// adapters: PKCE generation, the loopback callback server, device code
// polling, and token endpoint calls.
package oauthflow

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// PKCE is an S256 verifier/challenge pair.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh PKCE pair.
func NewPKCE() PKCE {
	verifier := randomToken(32)
	digest := sha256.Sum256([]byte(verifier))
	return PKCE{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(digest[:]),
	}
}

// NewState generates an opaque state parameter for CSRF protection.
func NewState() string {
	return randomToken(32)
}

func randomToken(n int) string {
	buf := make([]byte, n)
	// rand.Read never fails on supported platforms
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
