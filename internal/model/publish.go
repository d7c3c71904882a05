package model

import "time"

// Media carries an uploaded file through a publish request. Never persisted.
type Media struct {
	Bytes    []byte
	MimeType string
	FileName string
}

func (m *Media) IsVideo() bool {
	return len(m.MimeType) >= 6 && m.MimeType[:6] == "video/"
}

// PublishResult is what a provider adapter returns on success.
type PublishResult struct {
	ExternalID  string    `json:"externalId"`
	PublishedAt time.Time `json:"publishedAt"`
	Status      string    `json:"status"`
}

const PublishStatusPosted = "posted"

// PublishRecord is the append-only history row for a successful publish.
type PublishRecord struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"-"`
	Provider    string    `db:"provider" json:"provider"`
	ExternalID  string    `db:"external_id" json:"externalId"`
	Status      string    `db:"status" json:"status"`
	PublishedAt time.Time `db:"published_at" json:"publishedAt"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
}

type CreatePublishRecordParams struct {
	UserID      string
	Provider    string
	ExternalID  string
	Status      string
	PublishedAt time.Time
}
