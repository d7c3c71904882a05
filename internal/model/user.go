package model

import "time"

// User is a dashboard account. Authentication happens upstream; this server
// only needs the API token hash to resolve a caller to a user id.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	TokenHash string    `db:"token_hash" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateUserParams struct {
	Email     string
	TokenHash string
}
