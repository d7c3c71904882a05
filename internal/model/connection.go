package model

import (
	"time"

	"github.com/lib/pq"
)

const (
	ProviderTwitter   = "twitter"
	ProviderLinkedIn  = "linkedin"
	ProviderInstagram = "instagram"
)

type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionExpired      ConnectionStatus = "expired"
	ConnectionRevoked      ConnectionStatus = "revoked"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Connection is one user's link to an external provider account.
// Token columns are stored encrypted when an encryption key is configured;
// the repository transparently decrypts on read.
type Connection struct {
	ID           string           `db:"id" json:"-"`
	UserID       string           `db:"user_id" json:"-"`
	Provider     string           `db:"provider" json:"provider"`
	AccessToken  string           `db:"access_token" json:"-"`
	RefreshToken *string          `db:"refresh_token" json:"-"`
	ExpiresAt    *time.Time       `db:"expires_at" json:"-"`
	Scopes       pq.StringArray   `db:"scopes" json:"scopes"`
	ProfileID    string           `db:"profile_id" json:"profileId"`
	Username     string           `db:"username" json:"username"`
	PictureURL   *string          `db:"picture_url" json:"pictureUrl,omitempty"`
	Status       ConnectionStatus `db:"status" json:"status"`
	ConnectedAt  time.Time        `db:"connected_at" json:"connectedAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"-"`
}

// HasScope reports exact membership; an absent scopes array is the empty set.
func (c *Connection) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type UpsertConnectionParams struct {
	UserID       string
	Provider     string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
	Scopes       []string
	ProfileID    string
	Username     string
	PictureURL   *string
}
