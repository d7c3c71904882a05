package signature

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const stateBytes = 32

// GenerateState returns an opaque CSRF state token. The token itself carries
// no user information; the attempt store binds it to the initiating user.
func GenerateState() (string, error) {
	raw := make([]byte, stateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
