// Package signature derives stable per-client signatures from a request
// fingerprint and tracks how often each signature has been seen recently.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ocx/sentinel/internal/blackboard"
)

// Derive computes a stable 128-bit (32 hex character) signature for a
// request fingerprint. The signing key is derived from rootSecret via HKDF
// with rotationSalt as salt, so rotating the salt invalidates every
// previously issued signature without requiring a new root secret.
func Derive(fp blackboard.Fingerprint, rootSecret, rotationSalt string) (string, error) {
	key, err := deriveKey(rootSecret, rotationSalt)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s|%s|%s", canonicalUA(fp.UserAgent), fp.IP, fp.Path)
	sum := mac.Sum(nil)

	return hex.EncodeToString(sum[:16]), nil
}

func deriveKey(rootSecret, rotationSalt string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(rootSecret), []byte(rotationSalt), []byte("sentinel-signature"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("signature: derive key: %w", err)
	}
	return key, nil
}

// canonicalUA strips the parts of a user-agent string that vary across
// identical client installs (nothing currently, but isolates the call site
// so future normalization doesn't ripple through Derive).
func canonicalUA(ua string) string {
	return ua
}
