package signature

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCEPair binds an authorization code to a locally generated secret.
// The verifier stays server-side in the authorization attempt; only the
// challenge travels through the browser redirect.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

const verifierBytes = 32

// GeneratePKCEPair returns a fresh high-entropy verifier and its S256
// challenge. 32 random bytes base64url-encode to 43 characters, the RFC 7636
// minimum, drawn entirely from the unreserved alphabet.
func GeneratePKCEPair() (PKCEPair, error) {
	raw := make([]byte, verifierBytes)
	if _, err := rand.Read(raw); err != nil {
		return PKCEPair{}, fmt.Errorf("generate code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return PKCEPair{
		Verifier:  verifier,
		Challenge: ChallengeFromVerifier(verifier),
	}, nil
}

// ChallengeFromVerifier derives the S256 code challenge: base64url of the
// SHA-256 digest, padding stripped. Deterministic for a given verifier.
func ChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
