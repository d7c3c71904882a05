package provider

import (
	"context"

	"github.com/socialdeck/dashboard-server-go/internal/model"
)

// Content is a normalized publish request handed to a provider adapter.
type Content struct {
	Text  string
	Media *model.Media
}

// Publisher drives one provider's publish sequence. Implementations map
// provider failures onto the shared error taxonomy; media upload (including
// any asynchronous processing) completes strictly before the post call.
type Publisher interface {
	Publish(ctx context.Context, conn *model.Connection, content Content) (*model.PublishResult, error)
}
