package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

// Recognized system event names that mutate CurrentState during replay.
const (
	EventWorkflowStarted     = "workflow.started"
	EventWorkflowTransitioned = "workflow.transitioned"
	EventWorkflowCompleted   = "workflow.completed"
)

// Options configures one Replay call.
type Options struct {
	// UpTo bounds replay to events at or before this timestamp, for
	// time-travel debugging.
	UpTo *time.Time
	// Debug bypasses the cache on both read and write.
	Debug bool
}

// Engine is the event sourcing engine.
type Engine struct {
	events repository.EventRepository
	cache  *Cache
}

// NewEngine builds an Engine over the given Event Store and cache.
func NewEngine(events repository.EventRepository, cache *Cache) *Engine {
	return &Engine{events: events, cache: cache}
}

// Replay derives state by folding the execution's events in order. Pure
// function of its inputs aside from the cache, which is bypassed when
// Debug or UpTo is set.
func (e *Engine) Replay(ctx context.Context, tenant string, executionID uuid.UUID, opts Options) (*ExecutionState, error) {
	bypassCache := opts.Debug || opts.UpTo != nil

	if !bypassCache {
		if cached, ok := e.cache.Get(executionID); ok {
			return cached, nil
		}
	}

	events, err := e.events.ListForExecution(ctx, tenant, executionID, opts.UpTo)
	if err != nil {
		return nil, err
	}

	state := &ExecutionState{
		ExecutionID:  executionID,
		Tenant:       tenant,
		CurrentState: "initial",
		Data:         make(map[string]interface{}),
	}

	for _, event := range events {
		applyEvent(state.Data, event)
		state.EventsApplied++
		applySystemTransition(state, event)
	}

	if !bypassCache {
		e.cache.Put(executionID, state)
	}

	return state, nil
}

// applySystemTransition mutates CurrentState/IsComplete for recognized
// system events.
func applySystemTransition(state *ExecutionState, event *models.WorkflowEventModel) {
	switch event.EventName {
	case EventWorkflowStarted:
		state.CurrentState = "initial"
	case EventWorkflowTransitioned:
		if toState, ok := event.Payload["to_state"].(string); ok {
			state.CurrentState = toState
		} else if event.ToState != nil {
			state.CurrentState = *event.ToState
		}
	case EventWorkflowCompleted:
		state.IsComplete = true
	}
}

// applyEvent folds one event's payload into data. Payloads may carry a
// {data: {key, value}} assignment which overwrites that key, whatever the
// event's name; events without such an assignment leave data unchanged.
func applyEvent(data map[string]interface{}, event *models.WorkflowEventModel) {
	raw, ok := event.Payload["data"]
	if !ok {
		return
	}

	assignment, ok := raw.(map[string]interface{})
	if !ok {
		return
	}

	key, hasKey := assignment["key"].(string)
	if !hasKey {
		return
	}
	data[key] = assignment["value"]
}

// Invalidate drops any cached state for an execution, used after a write so
// the next Replay recomputes from the ground truth log.
func (e *Engine) Invalidate(executionID uuid.UUID) {
	e.cache.Invalidate(executionID)
}
