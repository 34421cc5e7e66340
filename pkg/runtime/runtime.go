// Package runtime implements the workflow runtime: registering
// workflow definitions, starting and advancing executions, and mediating
// between the Event Store, the Event Sourcing Engine, the Action Registry,
// the Distributed Lock and the Stream Client. It depends on each of those
// collaborators through a narrow interface so it never imports a concrete
// storage or broker package directly, breaking the cyclic graph between the
// runtime, the worker and the registration store.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/domainerr"
	"github.com/smilemakc/workflowcore/internal/infrastructure/lock"
	"github.com/smilemakc/workflowcore/internal/infrastructure/logger"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
	"github.com/smilemakc/workflowcore/internal/infrastructure/stream"
	"github.com/smilemakc/workflowcore/pkg/actions"
	"github.com/smilemakc/workflowcore/pkg/eventsourcing"
	"github.com/smilemakc/workflowcore/pkg/streamevent"
)

// TxRunner runs fn once a distributed (advisory-lock-backed) transaction
// keyed by key has been acquired. Satisfied by storage.DBTxRunner.
type TxRunner interface {
	RunDistributedTransaction(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// StreamPublisher publishes a Stream Event onto a named stream. Satisfied by
// *stream.Client.
type StreamPublisher interface {
	Publish(ctx context.Context, streamName string, event streamevent.Event) (string, error)
}

// Locker acquires and releases the named exclusion used to serialize
// per-event processing. Satisfied by *lock.Service.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, opts lock.Options) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// Config carries the runtime's tuning knobs, a subset of the Worker Service
// config it shares via the process's config.Config.
type Config struct {
	LockTTL      time.Duration
	LockWaitTime time.Duration
	MaxRetries   int
}

// ErrSuspended is returned by a workflow body's Execute function (via
// EventsProxy.WaitFor) when the awaited event has not yet arrived. advance
// treats it as "stop cleanly for now", not as a failure: the next queued
// event for this execution, picked up by any worker process, re-invokes
// Execute from the top and the deterministic replay carries it past this
// point once the awaited event is in the log.
var ErrSuspended = errors.New("workflow suspended: awaiting further events")

// Runtime is the workflow runtime.
type Runtime struct {
	mu          sync.RWMutex
	definitions map[string]map[string]Definition

	executions    repository.ExecutionRepository
	events        repository.EventRepository
	processing    repository.ProcessingRepository
	registrations repository.RegistrationRepository
	actions       *actions.Registry
	engine        *eventsourcing.Engine

	tx     TxRunner
	stream StreamPublisher
	locks  Locker

	cfg Config
	log *logger.Logger
}

// Deps bundles the Runtime's collaborators for New.
type Deps struct {
	Executions    repository.ExecutionRepository
	Events        repository.EventRepository
	Processing    repository.ProcessingRepository
	Registrations repository.RegistrationRepository
	Actions       *actions.Registry
	Engine        *eventsourcing.Engine
	Tx            TxRunner
	Stream        StreamPublisher
	Locks         Locker
	Config        Config
	Logger        *logger.Logger
}

// New builds a Runtime over its collaborators.
func New(d Deps) *Runtime {
	return &Runtime{
		definitions:   make(map[string]map[string]Definition),
		executions:    d.Executions,
		events:        d.Events,
		processing:    d.Processing,
		registrations: d.Registrations,
		actions:       d.Actions,
		engine:        d.Engine,
		tx:            d.Tx,
		stream:        d.Stream,
		locks:         d.Locks,
		cfg:           d.Config,
		log:           d.Logger,
	}
}

// RegisterWorkflow adds (or replaces) a compiled workflow body.
func (r *Runtime) RegisterWorkflow(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.definitions[def.Name] == nil {
		r.definitions[def.Name] = make(map[string]Definition)
	}
	r.definitions[def.Name][def.Version] = def
}

// GetDefinition resolves a workflow body by name and an optional version. An
// empty version resolves to the registration store's current version
// pointer; if no registration store is wired (or the workflow has exactly
// one in-process version), that single version is used instead.
func (r *Runtime) GetDefinition(ctx context.Context, tenant, name, version string) (*Definition, error) {
	r.mu.RLock()
	versions := r.definitions[name]
	r.mu.RUnlock()

	if len(versions) == 0 {
		return nil, domainerr.NotFound("get_definition", fmt.Errorf("no workflow registered under name %q", name))
	}

	if version != "" {
		if def, ok := versions[version]; ok {
			return &def, nil
		}
		return nil, domainerr.NotFound("get_definition", fmt.Errorf("workflow %q has no registered version %q", name, version))
	}

	if r.registrations != nil {
		if _, v, err := r.registrations.FindCurrentVersion(ctx, tenant, name); err == nil && v != nil {
			if def, ok := versions[v.Version]; ok {
				return &def, nil
			}
		}
	}

	if len(versions) == 1 {
		for _, def := range versions {
			return &def, nil
		}
	}

	return nil, domainerr.NotFound("get_definition", fmt.Errorf("workflow %q has multiple versions and no current version could be resolved", name))
}

// StartOptions configures StartExecution.
type StartOptions struct {
	Tenant       string
	WorkflowName string
	Version      string
	UserID       string
	InitialData  map[string]interface{}
}

// StartResult is the immediate, pre-completion result of StartExecution.
type StartResult struct {
	ExecutionID  uuid.UUID
	CurrentState string
	IsComplete   bool
}

// StartExecution creates a new execution row, appends its workflow.started
// event, and drives the definition's Execute body forward in-line: the
// first pass runs until the body completes, fails, or suspends on a
// WaitFor whose event hasn't arrived yet. There is no background goroutine
// tied to this call's process — whichever worker later processes a
// follow-up event for this execution resumes it the same way, by replaying
// the same registered Execute from the top.
func (r *Runtime) StartExecution(ctx context.Context, opts StartOptions) (*StartResult, error) {
	def, err := r.GetDefinition(ctx, opts.Tenant, opts.WorkflowName, opts.Version)
	if err != nil {
		return nil, err
	}

	execution := &models.WorkflowExecutionModel{
		Tenant:          opts.Tenant,
		WorkflowName:    opts.WorkflowName,
		WorkflowVersion: def.Version,
		CurrentState:    "initial",
		Status:          "active",
		ContextData:     models.JSONBMap(opts.InitialData),
		UserID:          opts.UserID,
	}
	if execution.ContextData == nil {
		execution.ContextData = make(models.JSONBMap)
	}
	if err := r.executions.Create(ctx, execution); err != nil {
		return nil, domainerr.TransientInfra("start_execution", err)
	}

	startedState := "initial"
	startEvent := &models.WorkflowEventModel{
		Tenant:      opts.Tenant,
		ExecutionID: execution.ID,
		EventName:   eventsourcing.EventWorkflowStarted,
		EventType:   "system",
		Payload:     models.JSONBMap{"initial_data": opts.InitialData},
		UserID:      opts.UserID,
		FromState:   "",
		ToState:     &startedState,
	}
	if err := r.events.Append(ctx, startEvent); err != nil {
		return nil, domainerr.TransientInfra("start_execution", err)
	}

	state, err := r.advance(ctx, def, opts.Tenant, execution.ID)
	if err != nil {
		return nil, err
	}

	return &StartResult{ExecutionID: execution.ID, CurrentState: state.CurrentState, IsComplete: state.IsComplete}, nil
}

// advance is the single place that drives a workflow body forward. It loads
// the execution's full event history, builds a fresh WorkflowContext over
// it, and runs Execute from the top: calls whose effect is already present
// in history (SetState, Data().Set, Events().Emit) resolve from the
// recorded event instead of appending a duplicate, calls to Events().WaitFor
// resolve from a matching event already in history or return ErrSuspended,
// and Actions().Call recomputes the same deterministic idempotency key so
// the Action Result store — not this pass — decides whether the action
// actually runs again. Any worker process can call advance for any
// execution; nothing here depends on which process started it.
//
// A panicking body is recovered and recorded as a failed execution. A body
// that returns ErrSuspended leaves the execution active, to be advanced
// again whenever the next event for it is processed. Already-terminal
// executions are left untouched.
func (r *Runtime) advance(ctx context.Context, def *Definition, tenant string, executionID uuid.UUID) (*eventsourcing.ExecutionState, error) {
	execution, err := r.executions.FindByID(ctx, tenant, executionID)
	if err != nil {
		return nil, domainerr.TransientInfra("advance_execution", err)
	}
	if execution == nil {
		return nil, domainerr.NotFound("advance_execution", fmt.Errorf("execution %s not found", executionID))
	}
	if execution.Status == "completed" || execution.Status == "failed" {
		return r.engine.Replay(ctx, tenant, executionID, eventsourcing.Options{})
	}

	history, err := r.events.ListForExecution(ctx, tenant, executionID, nil)
	if err != nil {
		return nil, domainerr.TransientInfra("advance_execution", err)
	}

	wctx := r.newContext(ctx, tenant, executionID, history)

	runErr := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("workflow %s panicked: %v", def.Name, p)
			}
		}()
		return def.Execute(wctx)
	}()

	if errors.Is(runErr, ErrSuspended) {
		return r.engine.Replay(ctx, tenant, executionID, eventsourcing.Options{})
	}

	execution, err = r.executions.FindByID(ctx, tenant, executionID)
	if err != nil {
		return nil, domainerr.TransientInfra("advance_execution", err)
	}

	if runErr != nil {
		execution.MarkFailed(runErr.Error())
		failedEvent := &models.WorkflowEventModel{
			Tenant: tenant, ExecutionID: executionID, EventName: "workflow.failed",
			EventType: "system", Payload: models.JSONBMap{"error": runErr.Error()}, FromState: execution.CurrentState,
		}
		if err := r.events.Append(ctx, failedEvent); err != nil {
			r.log.Error("record workflow failure event", "execution_id", executionID, "error", err)
		}
	} else {
		execution.MarkCompleted()
		toState := execution.CurrentState
		completedEvent := &models.WorkflowEventModel{
			Tenant: tenant, ExecutionID: executionID, EventName: eventsourcing.EventWorkflowCompleted,
			EventType: "system", FromState: execution.CurrentState, ToState: &toState,
		}
		if err := r.events.Append(ctx, completedEvent); err != nil {
			r.log.Error("record workflow completion event", "execution_id", executionID, "error", err)
		}
	}

	r.engine.Invalidate(executionID)
	if err := r.executions.UpdateState(ctx, execution); err != nil {
		r.log.Error("persist execution terminal state", "execution_id", executionID, "error", err)
	}

	return r.engine.Replay(ctx, tenant, executionID, eventsourcing.Options{})
}

// SubmitEventOptions configures SubmitEventSync.
type SubmitEventOptions struct {
	Tenant      string
	ExecutionID uuid.UUID
	EventName   string
	EventType   string
	Payload     map[string]interface{}
	UserID      string
}

// SubmitResult is the state produced by applying one event synchronously.
type SubmitResult struct {
	EventID      uuid.UUID
	CurrentState string
	IsComplete   bool
}

// SubmitEventSync appends an event to an execution's log and immediately
// folds it into state. This is the in-process path the Workflow Context's
// SetState/data.set/events.emit use while a body is already running inside
// advance: it only persists, it never re-invokes Execute (advance is
// already on the call stack). Callers outside a running Execute body that
// want the new event to also drive the workflow forward should use
// SubmitEvent instead.
func (r *Runtime) SubmitEventSync(ctx context.Context, opts SubmitEventOptions) (*SubmitResult, error) {
	execution, err := r.executions.FindByID(ctx, opts.Tenant, opts.ExecutionID)
	if err != nil {
		return nil, domainerr.TransientInfra("submit_event_sync", err)
	}
	if execution == nil {
		return nil, domainerr.NotFound("submit_event_sync", fmt.Errorf("execution %s not found", opts.ExecutionID))
	}

	event := &models.WorkflowEventModel{
		Tenant:      opts.Tenant,
		ExecutionID: opts.ExecutionID,
		EventName:   opts.EventName,
		EventType:   opts.EventType,
		Payload:     opts.Payload,
		UserID:      opts.UserID,
		FromState:   execution.CurrentState,
	}
	if err := r.events.Append(ctx, event); err != nil {
		return nil, domainerr.TransientInfra("submit_event_sync", err)
	}

	r.engine.Invalidate(opts.ExecutionID)
	state, err := r.engine.Replay(ctx, opts.Tenant, opts.ExecutionID, eventsourcing.Options{})
	if err != nil {
		return nil, domainerr.TransientInfra("submit_event_sync", err)
	}

	if err := r.events.SetToState(ctx, opts.Tenant, event.ID, state.CurrentState); err != nil {
		return nil, domainerr.TransientInfra("submit_event_sync", err)
	}

	execution.CurrentState = state.CurrentState
	execution.ContextData = models.JSONBMap(state.Data)
	if state.IsComplete {
		execution.MarkCompleted()
	}
	if err := r.executions.UpdateState(ctx, execution); err != nil {
		return nil, domainerr.TransientInfra("submit_event_sync", err)
	}

	return &SubmitResult{EventID: event.ID, CurrentState: state.CurrentState, IsComplete: state.IsComplete}, nil
}

// SubmitEvent appends an event via SubmitEventSync and then drives the
// execution's Execute body forward from the updated history, the same way
// processing a queued event does. Use this for an event submitted from
// outside a running workflow body (e.g. the global dispatcher seeding a
// freshly started execution's trigger event) when the caller needs that
// submission to also resolve any WaitFor it satisfies.
func (r *Runtime) SubmitEvent(ctx context.Context, opts SubmitEventOptions) (*eventsourcing.ExecutionState, error) {
	if _, err := r.SubmitEventSync(ctx, opts); err != nil {
		return nil, err
	}

	execution, err := r.executions.FindByID(ctx, opts.Tenant, opts.ExecutionID)
	if err != nil {
		return nil, domainerr.TransientInfra("submit_event", err)
	}
	if execution == nil {
		return nil, domainerr.NotFound("submit_event", fmt.Errorf("execution %s not found", opts.ExecutionID))
	}

	def, err := r.GetDefinition(ctx, opts.Tenant, execution.WorkflowName, execution.WorkflowVersion)
	if err != nil {
		return nil, err
	}

	return r.advance(ctx, def, opts.Tenant, opts.ExecutionID)
}

// EnqueueOptions configures EnqueueEvent.
type EnqueueOptions struct {
	Tenant      string
	ExecutionID uuid.UUID
	EventName   string
	EventType   string
	Payload     map[string]interface{}
	UserID      string
}

// EnqueueResult identifies the durable artifacts created by EnqueueEvent.
type EnqueueResult struct {
	EventID      uuid.UUID
	ProcessingID uuid.UUID
}

// EnqueueEvent is the distributed (asynchronous) enqueue path: under a
// distributed transaction keyed by "workflow:<executionId>", it appends the
// event, creates its processing record, publishes to the global stream, and
// marks the record published.
func (r *Runtime) EnqueueEvent(ctx context.Context, opts EnqueueOptions) (*EnqueueResult, error) {
	key := fmt.Sprintf("workflow:%s", opts.ExecutionID)

	var result *EnqueueResult
	err := r.tx.RunDistributedTransaction(ctx, key, func(ctx context.Context) error {
		execution, err := r.executions.FindByID(ctx, opts.Tenant, opts.ExecutionID)
		if err != nil {
			return err
		}
		if execution == nil {
			return domainerr.NotFound("enqueue_event", fmt.Errorf("execution %s not found", opts.ExecutionID))
		}

		event := &models.WorkflowEventModel{
			Tenant:      opts.Tenant,
			ExecutionID: opts.ExecutionID,
			EventName:   opts.EventName,
			EventType:   opts.EventType,
			Payload:     opts.Payload,
			UserID:      opts.UserID,
			FromState:   execution.CurrentState,
		}
		if err := r.events.Append(ctx, event); err != nil {
			return err
		}

		processing := &models.WorkflowEventProcessingModel{
			Tenant:      opts.Tenant,
			EventID:     event.ID,
			ExecutionID: opts.ExecutionID,
			Status:      models.ProcessingStatusPending,
			MaxAttempts: r.cfg.MaxRetries,
		}
		if err := r.processing.Create(ctx, processing); err != nil {
			return err
		}

		streamEvt := streamevent.Event{
			EventID:     event.ID.String(),
			ExecutionID: opts.ExecutionID.String(),
			Tenant:      opts.Tenant,
			EventType:   opts.EventType,
			EventName:   opts.EventName,
			Payload:     opts.Payload,
		}
		if _, err := r.stream.Publish(ctx, stream.GlobalStream, streamEvt); err != nil {
			return err
		}

		processing.Status = models.ProcessingStatusPublished
		if err := r.processing.UpdateStatus(ctx, processing); err != nil {
			return err
		}

		result = &EnqueueResult{EventID: event.ID, ProcessingID: processing.ID}
		return nil
	})
	if err != nil {
		return nil, domainerr.TransientInfra("enqueue_event", err)
	}
	return result, nil
}

// ProcessOptions identifies the processing record ProcessQueuedEvent should
// advance and the worker claiming it.
type ProcessOptions struct {
	Tenant       string
	ProcessingID uuid.UUID
	WorkerID     string
}

// ProcessQueuedEvent acquires the per-event lock, marks the record
// processing, drives the execution's Execute body forward through the new
// event via advance, writes to_state once, and marks the record completed
// or failed — always releasing the lock. Any worker process competing for
// rows off the shared queue can call this for any execution; it never
// depends on which process originally started that execution.
func (r *Runtime) ProcessQueuedEvent(ctx context.Context, opts ProcessOptions) error {
	processing, err := r.processing.FindByID(ctx, opts.Tenant, opts.ProcessingID)
	if err != nil {
		return domainerr.TransientInfra("process_queued_event", err)
	}
	if processing == nil {
		return domainerr.NotFound("process_queued_event", fmt.Errorf("processing record %s not found", opts.ProcessingID))
	}

	lockKey := fmt.Sprintf("event:%s:processing", processing.EventID)
	owner := fmt.Sprintf("worker:%s", opts.WorkerID)

	ok, err := r.locks.Acquire(ctx, lockKey, owner, lock.Options{WaitTime: r.cfg.LockWaitTime, TTL: r.cfg.LockTTL})
	if err != nil {
		return domainerr.TransientInfra("process_queued_event", err)
	}
	if !ok {
		return domainerr.LockContention("process_queued_event", fmt.Errorf("could not acquire lock for event %s", processing.EventID))
	}
	defer func() {
		if releaseErr := r.locks.Release(ctx, lockKey, owner); releaseErr != nil {
			r.log.Error("release processing lock", "key", lockKey, "error", releaseErr)
		}
	}()

	now := time.Now()
	processing.Status = models.ProcessingStatusProcessing
	processing.WorkerID = opts.WorkerID
	processing.LastAttemptAt = &now
	processing.AttemptCount++
	if err := r.processing.UpdateStatus(ctx, processing); err != nil {
		return domainerr.TransientInfra("process_queued_event", err)
	}

	if procErr := r.applyQueuedEvent(ctx, opts.Tenant, processing); procErr != nil {
		processing.Status = models.ProcessingStatusFailed
		processing.ErrorMessage = procErr.Error()
		next := time.Now().Add(30 * time.Second)
		processing.NextAttemptAt = &next
		if err := r.processing.UpdateStatus(ctx, processing); err != nil {
			r.log.Error("record processing failure", "processing_id", processing.ID, "error", err)
		}
		return procErr
	}

	processing.Status = models.ProcessingStatusCompleted
	if err := r.processing.UpdateStatus(ctx, processing); err != nil {
		return domainerr.TransientInfra("process_queued_event", err)
	}
	return nil
}

func (r *Runtime) applyQueuedEvent(ctx context.Context, tenant string, processing *models.WorkflowEventProcessingModel) error {
	event, err := r.events.FindByID(ctx, tenant, processing.EventID)
	if err != nil {
		return domainerr.TransientInfra("apply_queued_event", err)
	}
	if event == nil {
		return domainerr.NotFound("apply_queued_event", fmt.Errorf("event %s not found", processing.EventID))
	}

	execution, err := r.executions.FindByID(ctx, tenant, event.ExecutionID)
	if err != nil {
		return domainerr.TransientInfra("apply_queued_event", err)
	}
	if execution == nil {
		return domainerr.NotFound("apply_queued_event", fmt.Errorf("execution %s not found", event.ExecutionID))
	}

	def, err := r.GetDefinition(ctx, tenant, execution.WorkflowName, execution.WorkflowVersion)
	if err != nil {
		return err
	}

	state, err := r.advance(ctx, def, tenant, event.ExecutionID)
	if err != nil {
		return domainerr.TransientInfra("apply_queued_event", err)
	}

	if event.ToState == nil {
		if err := r.events.SetToState(ctx, tenant, event.ID, state.CurrentState); err != nil {
			return domainerr.TransientInfra("apply_queued_event", err)
		}
	}

	return nil
}

// GetExecutionState replays an execution's event log to its current state.
func (r *Runtime) GetExecutionState(ctx context.Context, tenant string, executionID uuid.UUID) (*eventsourcing.ExecutionState, error) {
	return r.engine.Replay(ctx, tenant, executionID, eventsourcing.Options{})
}

// WaitForCompletion polls GetExecutionState until the execution reaches a
// terminal state, the context is cancelled, or timeout elapses.
func (r *Runtime) WaitForCompletion(ctx context.Context, tenant string, executionID uuid.UUID, pollInterval, timeout time.Duration) (*eventsourcing.ExecutionState, error) {
	deadline := time.Now().Add(timeout)
	for {
		state, err := r.GetExecutionState(ctx, tenant, executionID)
		if err != nil {
			return nil, err
		}
		if state.IsComplete {
			return state, nil
		}
		if time.Now().After(deadline) {
			return state, domainerr.TransientInfra("wait_for_completion", fmt.Errorf("execution %s did not complete within %s", executionID, timeout))
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

