package identity

import "errors"

// Identity is the verified caller, extracted from a successfully validated
// token. It lives for one request and is never persisted.
type Identity struct {
	Subject string
	Claims  map[string]any
}

var (
	// ErrMissingToken means no bearer token was presented at all.
	ErrMissingToken = errors.New("missing identity token")

	// ErrInvalidToken covers every verification failure: bad signature,
	// unknown key, wrong issuer or audience, expiry, or an empty subject.
	ErrInvalidToken = errors.New("invalid identity token")
)
