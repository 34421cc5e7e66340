package runtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowcore/internal/infrastructure/logger"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
	"github.com/smilemakc/workflowcore/pkg/actions"
)

// WorkflowContext is the execution-scoped handle a workflow body receives:
// actions.<name>(params), data.get/set, events.waitFor/emit, logger, and
// the current-state accessor pair.
//
// Each call to advance builds a fresh WorkflowContext over the execution's
// full event history and runs Execute from the top. history/cursor let
// SetState, data.set, events.emit and events.waitFor tell an already-
// recorded effect apart from a genuinely new one: a call whose matching
// event already exists at or after cursor consumes it and advances cursor
// instead of appending a duplicate; only once cursor reaches the end of
// history does a call actually append.
type WorkflowContext struct {
	context.Context

	runtime     *Runtime
	tenant      string
	executionID uuid.UUID

	mu           sync.Mutex
	currentState string
	history      []*models.WorkflowEventModel
	cursor       int
	actionSeq    int

	log *logger.Logger
}

func (r *Runtime) newContext(ctx context.Context, tenant string, executionID uuid.UUID, history []*models.WorkflowEventModel) *WorkflowContext {
	return &WorkflowContext{
		Context:      ctx,
		runtime:      r,
		tenant:       tenant,
		executionID:  executionID,
		currentState: "initial",
		history:      history,
		log:          r.log,
	}
}

// nextHistoryEvent scans history from cursor onward for the first event
// named name, consumes it (moving cursor just past it) and returns it, or
// returns nil without moving cursor if none remains. Call holds c.mu.
func (c *WorkflowContext) nextHistoryEvent(name string) *models.WorkflowEventModel {
	for i := c.cursor; i < len(c.history); i++ {
		if c.history[i].EventName == name {
			c.cursor = i + 1
			return c.history[i]
		}
	}
	return nil
}

// Logger returns the structured logger scoped to this execution.
func (c *WorkflowContext) Logger() *logger.Logger {
	if c.log == nil {
		return logger.Default()
	}
	return c.log.With("execution_id", c.executionID, "tenant", c.tenant)
}

// GetCurrentState returns the last state this context observed. It is
// refreshed by SetState and events.waitFor/emit, each of which folds a new
// event and learns the resulting state from the runtime; Data().Set does
// not refresh it.
func (c *WorkflowContext) GetCurrentState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentState
}

// SetState transitions the execution by emitting a workflow.transitioned
// system event carrying the requested to_state. On replay, a prior pass's
// transition to this same call site is recognized from history and not
// re-appended.
func (c *WorkflowContext) SetState(newState string) error {
	c.mu.Lock()
	if ev := c.nextHistoryEvent("workflow.transitioned"); ev != nil {
		if ev.ToState != nil {
			c.currentState = *ev.ToState
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	result, err := c.runtime.SubmitEventSync(c, SubmitEventOptions{
		Tenant:      c.tenant,
		ExecutionID: c.executionID,
		EventName:   "workflow.transitioned",
		EventType:   "system",
		Payload:     map[string]interface{}{"to_state": newState},
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.currentState = result.CurrentState
	c.mu.Unlock()
	return nil
}

// Actions returns the Action Registry proxy scoped to this context's
// execution, so a workflow body can call actions.<name>(params).
func (c *WorkflowContext) Actions() *ActionsProxy {
	return &ActionsProxy{wc: c}
}

// ActionsProxy is the actions.<name>(params) surface.
type ActionsProxy struct {
	wc *WorkflowContext
}

// Call invokes a registered action by name, deriving the idempotency key
// from the execution id, the action name and this context's call-sequence
// counter. The counter starts at zero on every pass and advances the same
// way every time because Execute runs the same deterministic code in the
// same order, so a replay recomputes the same key a prior pass used and
// Execute returns the stored Action Result instead of invoking the action
// a second time.
func (p *ActionsProxy) Call(name string, params map[string]interface{}) (map[string]interface{}, error) {
	actx := actions.Context{
		Context:     p.wc.Context,
		Tenant:      p.wc.tenant,
		ExecutionID: p.wc.executionID,
	}
	p.wc.mu.Lock()
	p.wc.actionSeq++
	seq := p.wc.actionSeq
	p.wc.mu.Unlock()

	key := actions.DeriveIdempotencyKey(p.wc.executionID, name, seq)
	return p.wc.runtime.actions.Execute(actx, name, params, key)
}

// Data returns the data.get/set proxy scoped to this context's execution.
func (c *WorkflowContext) Data() *DataProxy {
	return &DataProxy{wc: c}
}

// DataProxy is the data.get/set surface. Set folds a {data: {key, value}}
// assignment event, matching the engine's applyEvent rule.
type DataProxy struct {
	wc *WorkflowContext
}

// Get reads the current execution's derived state for key.
func (p *DataProxy) Get(key string) (interface{}, bool) {
	state, err := p.wc.runtime.GetExecutionState(p.wc.Context, p.wc.tenant, p.wc.executionID)
	if err != nil {
		return nil, false
	}
	value, ok := state.Data[key]
	return value, ok
}

// Set persists a key/value assignment by appending a data-assignment event.
// On replay, a prior pass's assignment from this same call site is
// recognized from history and not re-appended.
func (p *DataProxy) Set(key string, value interface{}) error {
	c := p.wc
	c.mu.Lock()
	if c.nextHistoryEvent("workflow.data_set") != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_, err := c.runtime.SubmitEventSync(c.Context, SubmitEventOptions{
		Tenant:      c.tenant,
		ExecutionID: c.executionID,
		EventName:   "workflow.data_set",
		EventType:   "system",
		Payload:     map[string]interface{}{"data": map[string]interface{}{"key": key, "value": value}},
	})
	return err
}

// Events returns the events.waitFor/emit proxy scoped to this context's
// execution.
func (c *WorkflowContext) Events() *EventsProxy {
	return &EventsProxy{wc: c}
}

// EventsProxy is the events.waitFor/emit surface.
type EventsProxy struct {
	wc *WorkflowContext
}

// WaitFor resolves to the first event in this execution's history, at or
// after the current replay position, whose name is one of names. If no such
// event has arrived yet it returns ErrSuspended: this is the cooperative
// task's suspension point, but it never blocks a goroutine. Whoever
// processes the next event for this execution re-runs Execute from the top,
// and this same call resolves once a matching event is in history.
func (p *EventsProxy) WaitFor(names ...string) (*models.WorkflowEventModel, error) {
	c := p.wc
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := c.cursor; i < len(c.history); i++ {
		event := c.history[i]
		if !wanted[event.EventName] {
			continue
		}
		c.cursor = i + 1
		if event.ToState != nil {
			c.currentState = *event.ToState
		}
		return event, nil
	}
	return nil, ErrSuspended
}

// Emit appends a workflow event to this execution's log and folds it into
// state synchronously. On replay, a prior pass's emission from this same
// call site is recognized from history and not re-appended.
func (p *EventsProxy) Emit(name string, payload map[string]interface{}) error {
	c := p.wc
	c.mu.Lock()
	if ev := c.nextHistoryEvent(name); ev != nil {
		if ev.ToState != nil {
			c.currentState = *ev.ToState
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	result, err := c.runtime.SubmitEventSync(c.Context, SubmitEventOptions{
		Tenant:      c.tenant,
		ExecutionID: c.executionID,
		EventName:   name,
		EventType:   "workflow",
		Payload:     payload,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.currentState = result.CurrentState
	c.mu.Unlock()
	return nil
}
