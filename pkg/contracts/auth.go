package contracts

import "time"

// Identity represents an authenticated API key.
// Produced by internal/auth, stored in the request context by the API key
// middleware and consumed by the rate limiter.
type Identity struct {
	// Subject is "apikey:" followed by the key fingerprint.
	Subject string `json:"subject"`

	// Fingerprint is the first 16 hex characters of the key's sha256.
	// The plaintext key is never retained.
	Fingerprint string `json:"fingerprint"`

	// AuthenticatedAt is when the key was verified.
	AuthenticatedAt time.Time `json:"authenticated_at"`
}
