package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/socialdeck/dashboard-server-go/internal/model"
)

type PublishRepository interface {
	Create(ctx context.Context, params model.CreatePublishRecordParams) (*model.PublishRecord, error)
	ListByUserAndProvider(ctx context.Context, userID, provider string, limit, offset int) ([]model.PublishRecord, error)
	CountByUserAndProvider(ctx context.Context, userID, provider string) (int, error)
}

type publishRepo struct {
	db *sqlx.DB
}

func NewPublishRepository(db *sqlx.DB) PublishRepository {
	return &publishRepo{db: db}
}

func (r *publishRepo) Create(ctx context.Context, params model.CreatePublishRecordParams) (*model.PublishRecord, error) {
	var record model.PublishRecord
	err := r.db.GetContext(ctx, &record, `
		INSERT INTO publish_records
			(id, user_id, provider, external_id, status, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, uuid.NewString(), params.UserID, params.Provider, params.ExternalID,
		params.Status, params.PublishedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *publishRepo) ListByUserAndProvider(ctx context.Context, userID, provider string, limit, offset int) ([]model.PublishRecord, error) {
	var records []model.PublishRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM publish_records
		WHERE user_id = $1 AND provider = $2
		ORDER BY published_at DESC
		LIMIT $3 OFFSET $4
	`, userID, provider, limit, offset)
	return records, err
}

func (r *publishRepo) CountByUserAndProvider(ctx context.Context, userID, provider string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM publish_records WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	return count, err
}
