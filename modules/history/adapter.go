package history

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// HistoryPort is the view other modules have of room history.
type HistoryPort interface {
	ListMessages(ctx context.Context, code string) ([]domain.Message, error)
}

// HistoryAdapter implements HistoryPort using the service container.
type HistoryAdapter struct {
	container mono.ServiceContainer
}

// NewHistoryAdapter creates a new HistoryAdapter.
func NewHistoryAdapter(container mono.ServiceContainer) HistoryPort {
	if container == nil {
		panic("history: ServiceContainer is nil")
	}
	return &HistoryAdapter{container: container}
}

// ListMessages returns the history of room code in append order.
func (a *HistoryAdapter) ListMessages(ctx context.Context, code string) ([]domain.Message, error) {
	req := ListMessagesRequest{Code: code}
	var resp ListMessagesResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListMessages,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if resp.ErrorCode != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrPersistence, resp.Message)
	}
	return resp.Messages, nil
}
