package headless

import (
	"context"

	"github.com/agentcore/orchestrator/internal/event"
	"github.com/agentcore/orchestrator/internal/permission"
)

// AutoApproveChecker answers every permission question with yes. It
// backs --auto-approve: a headless run has nobody to ask.
type AutoApproveChecker struct {
	inner   *permission.Checker // kept for parity; never consulted
	verbose bool
}

// NewAutoApproveChecker creates an always-yes checker; verbose also
// publishes the request/reply event pair so logs show what was waved
// through.
func NewAutoApproveChecker(verbose bool) *AutoApproveChecker {
	return &AutoApproveChecker{
		inner:   permission.NewChecker(),
		verbose: verbose,
	}
}

// Check approves unconditionally; in verbose mode the question and its
// automatic answer still land on the event bus.
func (c *AutoApproveChecker) Check(ctx context.Context, req permission.Request, action permission.PermissionAction) error {
	if c.verbose {
		event.Publish(event.Event{
			Type: event.PermissionUpdated,
			Data: event.PermissionUpdatedData{
				ID:             req.ID,
				SessionID:      req.SessionID,
				PermissionType: string(req.Type),
				Pattern:        req.Pattern,
				Title:          req.Title,
			},
		})
		event.Publish(event.Event{
			Type: event.PermissionReplied,
			Data: event.PermissionRepliedData{
				PermissionID: req.ID,
				SessionID:    req.SessionID,
				Response:     "always",
			},
		})
	}
	return nil
}

// Ask approves without blocking.
func (c *AutoApproveChecker) Ask(ctx context.Context, req permission.Request) error {
	return c.Check(ctx, req, permission.ActionAsk)
}

// Respond is a no-op; nothing ever waits for an answer.
func (c *AutoApproveChecker) Respond(requestID string, action string) {}

// IsApproved is always true.
func (c *AutoApproveChecker) IsApproved(sessionID string, permType permission.PermissionType) bool {
	return true
}

// IsPatternApproved is always true.
func (c *AutoApproveChecker) IsPatternApproved(sessionID string, pattern string) bool {
	return true
}

// ClearSession is a no-op.
func (c *AutoApproveChecker) ClearSession(sessionID string) {}

// ApprovePattern is a no-op; everything is already approved.
func (c *AutoApproveChecker) ApprovePattern(sessionID string, pattern string) {}

// PermissionCheckerInterface abstracts over the interactive checker and
// this one, so the runner can swap them by flag.
type PermissionCheckerInterface interface {
	Check(ctx context.Context, req permission.Request, action permission.PermissionAction) error
	Ask(ctx context.Context, req permission.Request) error
	Respond(requestID string, action string)
	IsApproved(sessionID string, permType permission.PermissionType) bool
	IsPatternApproved(sessionID string, pattern string) bool
	ClearSession(sessionID string)
	ApprovePattern(sessionID string, pattern string)
}

var _ PermissionCheckerInterface = (*AutoApproveChecker)(nil)
