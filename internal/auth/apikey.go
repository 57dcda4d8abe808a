// Package auth verifies API keys against configured hashes.
//
// Keys are never stored in plaintext. Each configured hash is either a
// sha256 hex digest (compared in constant time) or a bcrypt hash ("$2a$",
// "$2b$", "$2y$"). A verifier with no hashes rejects every key.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/loglens/loglens/pkg/contracts"
)

var (
	// ErrMissingKey is returned when a request carries no API key.
	ErrMissingKey = errors.New("api key required")
	// ErrInvalidKey is returned when a key matches no configured hash.
	ErrInvalidKey = errors.New("invalid api key")
)

// HashKey returns the sha256 hex digest of key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// BcryptKey returns a bcrypt hash of key at the default cost.
func BcryptKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt: %w", err)
	}
	return string(b), nil
}

// Fingerprint returns the first 16 hex characters of the key's sha256.
func Fingerprint(key string) string {
	return HashKey(key)[:16]
}

// Verifier checks presented keys against a fixed set of hashes.
type Verifier struct {
	sha    [][]byte
	bcrypt [][]byte

	// bcrypt matches are cached by sha256 so a valid key pays the bcrypt
	// cost once per process.
	mu       sync.RWMutex
	verified map[string]bool
}

// NewVerifier builds a verifier. Every hash must be a 64 character sha256
// hex digest or a bcrypt hash.
func NewVerifier(hashes []string) (*Verifier, error) {
	v := &Verifier{verified: make(map[string]bool)}
	for _, h := range hashes {
		h = strings.TrimSpace(h)
		switch {
		case h == "":
			continue
		case strings.HasPrefix(h, "$2"):
			if _, err := bcrypt.Cost([]byte(h)); err != nil {
				return nil, fmt.Errorf("auth: invalid bcrypt hash: %w", err)
			}
			v.bcrypt = append(v.bcrypt, []byte(h))
		case isSHA256Hex(h):
			v.sha = append(v.sha, []byte(strings.ToLower(h)))
		default:
			return nil, fmt.Errorf("auth: hash %.8q... is neither sha256 hex nor bcrypt", h)
		}
	}
	return v, nil
}

// Enabled reports whether any hash is configured.
func (v *Verifier) Enabled() bool {
	return len(v.sha)+len(v.bcrypt) > 0
}

// Verify checks key and returns the identity it authenticates.
func (v *Verifier) Verify(key string) (*contracts.Identity, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	digest := HashKey(key)
	if !v.match(key, digest) {
		return nil, ErrInvalidKey
	}
	return &contracts.Identity{
		Subject:         "apikey:" + digest[:16],
		Fingerprint:     digest[:16],
		AuthenticatedAt: time.Now().UTC(),
	}, nil
}

// Authenticate extracts the key from r and verifies it.
func (v *Verifier) Authenticate(r *http.Request, header string) (*contracts.Identity, error) {
	return v.Verify(ExtractKey(r, header))
}

func (v *Verifier) match(key, digest string) bool {
	ok := false
	for _, h := range v.sha {
		if subtle.ConstantTimeCompare([]byte(digest), h) == 1 {
			ok = true
		}
	}
	if ok || len(v.bcrypt) == 0 {
		return ok
	}

	v.mu.RLock()
	cached := v.verified[digest]
	v.mu.RUnlock()
	if cached {
		return true
	}

	for _, h := range v.bcrypt {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			v.mu.Lock()
			v.verified[digest] = true
			v.mu.Unlock()
			return true
		}
	}
	return false
}

// ExtractKey reads the API key from the configured header, X-API-Key,
// an Authorization bearer token or the api_key query parameter, in that
// order. The query parameter exists for websocket clients.
func ExtractKey(r *http.Request, header string) string {
	if header != "" && !strings.EqualFold(header, "Authorization") {
		if key := r.Header.Get(header); key != "" {
			return key
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.URL.Query().Get("api_key"); key != "" {
		return key
	}
	return ""
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
