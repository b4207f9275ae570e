package session

import (
	"context"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/pkg/types"
)

// GetTodos reads a session's todo list; missing reads as empty.
func GetTodos(ctx context.Context, store *storage.Storage, sessionID string) ([]types.TodoInfo, error) {
	var todos []types.TodoInfo
	err := store.Get(ctx, []string{"todo", sessionID}, &todos)
	if err == storage.ErrNotFound {
		return []types.TodoInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	return todos, nil
}

// UpdateTodos replaces a session's todo list and announces the change.
func UpdateTodos(ctx context.Context, store *storage.Storage, sessionID string, todos []types.TodoInfo) error {
	if err := store.Put(ctx, []string{"todo", sessionID}, todos); err != nil {
		return err
	}
	event.Publish(event.Event{
		Type: event.TodoUpdated,
		Data: map[string]any{
			"sessionID": sessionID,
			"todos":     todos,
		},
	})
	return nil
}
