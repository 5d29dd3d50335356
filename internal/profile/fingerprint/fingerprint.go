// Package fingerprint derives idempotency keys for profile creation requests.
package fingerprint

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// Delimiter joins the identity fields before hashing.
const Delimiter = ":"

// ErrHashUnavailable means the hash primitive is not linked into the binary.
// It is a startup-class failure; Generate never returns it once Check passed.
var ErrHashUnavailable = errors.New("fingerprint: sha-256 hash is unavailable")

// Check verifies that the hash primitive is available. Call it once at startup.
func Check() error {
	if !crypto.SHA256.Available() {
		return ErrHashUnavailable
	}
	return nil
}

// Generate returns the base64-encoded SHA-256 digest of the identity triple
// email:taxID:legalName. It is deterministic and has no side effects.
func Generate(email, taxID, legalName string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{email, taxID, legalName}, Delimiter)))
	return base64.StdEncoding.EncodeToString(sum[:])
}
