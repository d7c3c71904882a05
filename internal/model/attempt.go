package model

import "time"

// AuthorizationAttempt is the ephemeral record of one in-flight connect flow,
// keyed by its CSRF state token in the attempt store. It is consumed exactly
// once when the matching callback arrives; a replayed state finds nothing.
type AuthorizationAttempt struct {
	UserID       string    `json:"userId"`
	Provider     string    `json:"provider"`
	PKCEVerifier string    `json:"pkceVerifier,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
