package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/audit"
	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/metrics"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
	"github.com/socialdeck/dashboard-server-go/internal/repository"
)

// PublishService dispatches content to a connected provider and records the
// outcome. The order is fixed: validate, load connection, check scope, ensure
// a fresh token, dispatch, record.
type PublishService struct {
	registry    *provider.Registry
	publishers  map[string]provider.Publisher
	tokens      *TokenService
	authflow    *AuthFlowService
	connections repository.ConnectionRepository
	records     repository.PublishRepository
}

func NewPublishService(
	registry *provider.Registry,
	publishers map[string]provider.Publisher,
	tokens *TokenService,
	authflow *AuthFlowService,
	connections repository.ConnectionRepository,
	records repository.PublishRepository,
) *PublishService {
	return &PublishService{
		registry:    registry,
		publishers:  publishers,
		tokens:      tokens,
		authflow:    authflow,
		connections: connections,
		records:     records,
	}
}

func (s *PublishService) Publish(ctx context.Context, userID, providerName string, content provider.Content) (*model.PublishRecord, error) {
	d, ok := s.registry.Get(providerName)
	if !ok {
		return nil, apperrors.InvalidInput("provider", "unknown provider "+providerName)
	}
	if strings.TrimSpace(content.Text) == "" && content.Media == nil {
		return nil, apperrors.ValidationError("post content is empty")
	}

	publisher, ok := s.publishers[providerName]
	if !ok {
		return nil, apperrors.InvalidInput("provider", providerName+" does not support publishing")
	}

	conn, err := s.connections.FindByUserAndProvider(ctx, userID, providerName)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if conn == nil {
		return nil, apperrors.NotFound(providerName + " connection").
			WithDetails(map[string]string{"reconnectUrl": s.authflow.ReconnectURL(providerName)})
	}

	// Scope check comes before any provider call; a missing scope can only
	// be fixed by reconnecting, so there is nothing to refresh.
	if err := EnsureScope(conn, d, s.authflow.ReconnectURL(providerName)); err != nil {
		return nil, err
	}

	conn, err = s.tokens.EnsureValidToken(ctx, conn)
	if err != nil {
		return nil, err
	}

	result, err := publisher.Publish(ctx, conn, content)
	if err != nil {
		metrics.Publish(providerName, metrics.ResultFailure)
		audit.Log(ctx, audit.Event{
			Type:     audit.EventPublishFailure,
			UserID:   userID,
			Provider: providerName,
			Details:  map[string]interface{}{"code": string(apperrors.GetCode(err))},
		})
		return nil, err
	}

	record, err := s.records.Create(ctx, model.CreatePublishRecordParams{
		UserID:      userID,
		Provider:    providerName,
		ExternalID:  result.ExternalID,
		Status:      result.Status,
		PublishedAt: result.PublishedAt,
	})
	if err != nil {
		// The post is live; failing the request now would invite a retry
		// and a duplicate. Log and answer with an unpersisted record.
		log.Error().Err(err).
			Str("provider", providerName).
			Str("externalId", result.ExternalID).
			Msg("publish succeeded but history record failed")
		record = &model.PublishRecord{
			UserID:      userID,
			Provider:    providerName,
			ExternalID:  result.ExternalID,
			Status:      result.Status,
			PublishedAt: result.PublishedAt,
		}
	}

	metrics.Publish(providerName, metrics.ResultSuccess)
	audit.Log(ctx, audit.Event{
		Type:     audit.EventPublishSuccess,
		UserID:   userID,
		Provider: providerName,
		Details:  map[string]interface{}{"external_id": result.ExternalID},
	})

	return record, nil
}

// History lists the user's publish records for a provider, newest first.
func (s *PublishService) History(ctx context.Context, userID, providerName string, limit, offset int) ([]model.PublishRecord, int, error) {
	if _, ok := s.registry.Get(providerName); !ok {
		return nil, 0, apperrors.InvalidInput("provider", "unknown provider "+providerName)
	}
	records, err := s.records.ListByUserAndProvider(ctx, userID, providerName, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	total, err := s.records.CountByUserAndProvider(ctx, userID, providerName)
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	return records, total, nil
}
