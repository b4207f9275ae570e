package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentcore/orchestrator/internal/contextmgr"
	"github.com/agentcore/orchestrator/internal/hook"
	"github.com/agentcore/orchestrator/internal/metrics"
	"github.com/agentcore/orchestrator/internal/permission"
	"github.com/agentcore/orchestrator/internal/provider"
	"github.com/agentcore/orchestrator/internal/rule"
	"github.com/agentcore/orchestrator/internal/selector"
	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/internal/tool"
	"github.com/agentcore/orchestrator/pkg/types"
)

// TierModel maps a Smart Selector model tier to a concrete provider/model pair.
type TierModel struct {
	ProviderID string
	ModelID    string
}

// Processor handles message processing and the agentic loop.
type Processor struct {
	mu sync.Mutex

	providerRegistry  *provider.Registry
	toolRegistry      *tool.Registry
	storage           *storage.Storage
	permissionChecker *permission.Checker
	hooks             *hook.Manager
	rules             *rule.Engine
	contextMgr        *contextmgr.Manager
	smartSelector     *selector.Selector
	tierModels        map[selector.ModelTier]TierModel
	schemaValidator   *tool.SchemaValidator
	metrics           *metrics.Metrics

	// Default provider and model to use when not specified
	defaultProviderID string
	defaultModelID    string

	// Active sessions being processed
	sessions map[string]*sessionState
}

// WithHooks attaches a hook manager that pre/post/error hooks fire through
// during tool dispatch. Returns the processor for chaining.
func (p *Processor) WithHooks(m *hook.Manager) *Processor {
	p.hooks = m
	return p
}

// WithRules attaches a rule engine that gates tool calls in the Tool
// Executor. Returns the processor for chaining.
func (p *Processor) WithRules(e *rule.Engine) *Processor {
	p.rules = e
	return p
}

// WithContextManager attaches the image-count-based context trimming policy
// run at the top of each loop iteration. Returns the processor for chaining.
func (p *Processor) WithContextManager(m *contextmgr.Manager) *Processor {
	p.contextMgr = m
	return p
}

// WithSchemaValidator attaches JSON Schema validation of tool input,
// run by the Tool Executor immediately before dispatch. Returns the
// processor for chaining.
func (p *Processor) WithSchemaValidator(v *tool.SchemaValidator) *Processor {
	p.schemaValidator = v
	return p
}

// WithMetrics attaches the Prometheus instruments the Tool Executor and
// Sampling Loop record against. Returns the processor for chaining.
func (p *Processor) WithMetrics(m *metrics.Metrics) *Processor {
	p.metrics = m
	return p
}

// WithSelector attaches the Smart Selector and its tier→provider/model
// mapping. Each loop iteration re-classifies the current task and, when the
// chosen tier has a mapped provider/model, uses it for that iteration's LLM
// call instead of the session's default. Returns the processor for chaining.
func (p *Processor) WithSelector(sel *selector.Selector, tierModels map[selector.ModelTier]TierModel) *Processor {
	p.smartSelector = sel
	p.tierModels = tierModels
	return p
}

// sessionState tracks the state of an active session being processed.
type sessionState struct {
	ctx     context.Context
	cancel  context.CancelFunc
	message *types.Message
	parts   []types.Part
	waiters []chan error
	step    int
	retries int

	// lastErrorTool/lastErrorClass/consecutiveErrors track repeated identical
	// tool-error classes across calls, for the repeated_tool_error event.
	lastErrorTool     string
	lastErrorClass    string
	consecutiveErrors int
}

// RepeatedToolErrorThreshold is how many consecutive identical (tool,
// errorClass) failures trigger a tool.repeated_error event.
const RepeatedToolErrorThreshold = 3

// ProcessCallback is called with message updates during processing.
type ProcessCallback func(msg *types.Message, parts []types.Part)

// NewProcessor creates a new session processor.
func NewProcessor(
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	store *storage.Storage,
	permChecker *permission.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Processor {
	// Use reasonable defaults if not specified
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
	}
	if defaultModelID == "" {
		defaultModelID = "claude-sonnet-4-20250514"
	}
	return &Processor{
		providerRegistry:  providerReg,
		toolRegistry:      toolReg,
		storage:           store,
		permissionChecker: permChecker,
		defaultProviderID: defaultProviderID,
		defaultModelID:    defaultModelID,
		sessions:          make(map[string]*sessionState),
	}
}

// Process handles a new user message and generates an assistant response.
// This is the main entry point for the agentic loop.
func (p *Processor) Process(ctx context.Context, sessionID string, agent *Agent, callback ProcessCallback) error {
	p.mu.Lock()

	// Check if session is already processing
	if state, ok := p.sessions[sessionID]; ok {
		// Queue this request
		waiter := make(chan error, 1)
		state.waiters = append(state.waiters, waiter)
		p.mu.Unlock()

		// Wait for current processing to complete
		select {
		case err := <-waiter:
			if err != nil {
				return err
			}
			// Retry processing
			return p.Process(ctx, sessionID, agent, callback)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Create new session state. The hard loop deadline bounds
	// wall-clock run time independently of the cooperative Abort cancel
	// below; both feed the same context so runLoop sees a single ctx.Done().
	deadlineCtx, deadlineCancel := context.WithTimeout(ctx, HardLoopDeadline)
	loopCtx, cancel := context.WithCancel(deadlineCtx)
	state := &sessionState{
		ctx:    loopCtx,
		cancel: cancel,
	}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ActiveSessions.Inc()
	}

	defer deadlineCancel()
	defer func() {
		p.mu.Lock()
		delete(p.sessions, sessionID)

		// Notify waiters
		for _, waiter := range state.waiters {
			waiter <- nil
		}
		p.mu.Unlock()

		if p.metrics != nil {
			p.metrics.ActiveSessions.Dec()
		}
	}()

	return p.runLoop(loopCtx, sessionID, state, agent, callback)
}

// Abort cancels processing for a session.
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not processing: %s", sessionID)
	}

	state.cancel()
	return nil
}

// IsProcessing returns whether a session is currently processing.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// GetActiveState returns the current state for a processing session.
func (p *Processor) GetActiveState(sessionID string) (*types.Message, []types.Part, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}

	return state.message, state.parts, true
}
