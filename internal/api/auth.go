package api

import "context"

// Authenticator validates a bearer token and resolves it to a caller id used
// for rate limiting.
type Authenticator interface {
	Verify(ctx context.Context, token string) (callerID string, ok bool)
}

// StaticAuthenticator validates against a fixed token-to-caller table, the
// deployment mode behind an API gateway that owns real identity.
type StaticAuthenticator struct {
	tokens map[string]string
}

func NewStaticAuthenticator(tokens map[string]string) *StaticAuthenticator {
	return &StaticAuthenticator{tokens: tokens}
}

func (a *StaticAuthenticator) Verify(ctx context.Context, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	callerID, ok := a.tokens[token]
	return callerID, ok
}
