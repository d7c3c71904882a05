package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/util"
)

type ConnectionRepository interface {
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.Connection, error)
	ListByUser(ctx context.Context, userID string) ([]model.Connection, error)
	Upsert(ctx context.Context, params model.UpsertConnectionParams) (*model.Connection, error)
	UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) error
	UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error
	Delete(ctx context.Context, userID, provider string) (bool, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

type connectionRepo struct {
	db *sqlx.DB
	// hex-encoded AES-256 key; empty disables at-rest token encryption
	encryptionKey string
}

func NewConnectionRepository(db *sqlx.DB, encryptionKey string) ConnectionRepository {
	return &connectionRepo{db: db, encryptionKey: encryptionKey}
}

func (r *connectionRepo) FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		SELECT * FROM connections WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	result, err := HandleNotFound(&conn, err)
	if result == nil || err != nil {
		return result, err
	}
	return r.decryptTokens(result)
}

func (r *connectionRepo) ListByUser(ctx context.Context, userID string) ([]model.Connection, error) {
	var conns []model.Connection
	err := r.db.SelectContext(ctx, &conns, `
		SELECT * FROM connections
		WHERE user_id = $1
		ORDER BY connected_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	for i := range conns {
		decrypted, err := r.decryptTokens(&conns[i])
		if err != nil {
			return nil, err
		}
		conns[i] = *decrypted
	}
	return conns, nil
}

// Upsert replaces any existing connection for the (user, provider) pair.
// Reconnecting always wins: tokens, scopes and profile are overwritten and
// the status returns to connected.
func (r *connectionRepo) Upsert(ctx context.Context, params model.UpsertConnectionParams) (*model.Connection, error) {
	accessToken, err := r.encrypt(params.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := r.encryptPtr(params.RefreshToken)
	if err != nil {
		return nil, err
	}

	var conn model.Connection
	err = r.db.GetContext(ctx, &conn, `
		INSERT INTO connections
			(user_id, provider, access_token, refresh_token, expires_at,
			 scopes, profile_id, username, picture_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'connected')
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			profile_id = EXCLUDED.profile_id,
			username = EXCLUDED.username,
			picture_url = EXCLUDED.picture_url,
			status = 'connected',
			connected_at = NOW(),
			updated_at = NOW()
		RETURNING *
	`, params.UserID, params.Provider, accessToken, refreshToken, params.ExpiresAt,
		pq.StringArray(params.Scopes), params.ProfileID, params.Username, params.PictureURL)
	if err != nil {
		return nil, err
	}
	return r.decryptTokens(&conn)
}

// UpdateTokens is last-writer-wins: concurrent refreshes both succeed and the
// later write sticks, which is safe because either token set is valid.
func (r *connectionRepo) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	encAccess, err := r.encrypt(accessToken)
	if err != nil {
		return err
	}
	encRefresh, err := r.encryptPtr(refreshToken)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE connections SET
			access_token = $2,
			refresh_token = $3,
			expires_at = $4,
			status = 'connected',
			updated_at = NOW()
		WHERE id = $1
	`, id, encAccess, encRefresh, expiresAt)
	return err
}

func (r *connectionRepo) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE connections SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	return err
}

func (r *connectionRepo) Delete(ctx context.Context, userID, provider string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM connections WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

// MarkExpired flips connected rows whose token has lapsed with no refresh
// token to recover it. Rows with a refresh token are left alone; the next
// publish refreshes them in place.
func (r *connectionRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE connections SET
			status = 'expired',
			updated_at = NOW()
		WHERE status = 'connected'
		  AND expires_at IS NOT NULL AND expires_at < $1
		  AND refresh_token IS NULL
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *connectionRepo) encrypt(value string) (string, error) {
	if r.encryptionKey == "" || value == "" {
		return value, nil
	}
	return util.Encrypt(r.encryptionKey, value)
}

func (r *connectionRepo) encryptPtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	encrypted, err := r.encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &encrypted, nil
}

func (r *connectionRepo) decryptTokens(conn *model.Connection) (*model.Connection, error) {
	if r.encryptionKey == "" {
		return conn, nil
	}
	if conn.AccessToken != "" {
		plain, err := util.Decrypt(r.encryptionKey, conn.AccessToken)
		if err != nil {
			return nil, err
		}
		conn.AccessToken = plain
	}
	if conn.RefreshToken != nil && *conn.RefreshToken != "" {
		plain, err := util.Decrypt(r.encryptionKey, *conn.RefreshToken)
		if err != nil {
			return nil, err
		}
		conn.RefreshToken = &plain
	}
	return conn, nil
}
