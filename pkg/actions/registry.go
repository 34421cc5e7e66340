// Package actions implements the action registry: a process-wide
// catalog of named actions with parameter schemas, validating inputs and
// recording per-invocation results for idempotent replay.
package actions

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/domainerr"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

// Parameter describes one named input to an action.
type Parameter struct {
	Name     string
	Required bool
	Default  interface{}
	// Tag is a go-playground/validator tag applied to the supplied value,
	// e.g. "required,email" or "gte=0,lte=100". Empty means no constraint
	// beyond presence.
	Tag string
}

// Context is the execution-scoped handle an action executor receives.
type Context struct {
	context.Context
	Tenant      string
	ExecutionID uuid.UUID
	EventID     uuid.UUID
}

// Executor performs the action's side effect and returns an opaque result.
type Executor func(ctx Context, params map[string]interface{}) (map[string]interface{}, error)

// TransactionalExecutor is an Executor that additionally receives a
// transaction handle opened at the requested isolation level; the
// transaction commits iff the executor returns without error. The handle is
// left as `interface{}` here so this package stays independent of the
// storage driver; callers type-assert to *bun.Tx.
type TransactionalExecutor func(ctx Context, tx interface{}, params map[string]interface{}) (map[string]interface{}, error)

type registeredAction struct {
	name        string
	description string
	parameters  []Parameter
	executor    Executor

	transactional  bool
	isolationLevel string
	txExecutor     TransactionalExecutor
}

// TxOpener opens a transaction at the requested isolation level and invokes
// fn with an opaque handle the caller type-asserts to the storage driver's
// transaction type (e.g. *bun.Tx). Committing or rolling back follows fn's
// returned error, mirroring bun's RunInTx contract.
type TxOpener interface {
	RunInTx(ctx context.Context, isolationLevel string, fn func(tx interface{}) error) error
}

// Registry is the action registry.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]registeredAction

	results  repository.ActionResultRepository
	validate *validator.Validate
	txOpener TxOpener
}

// NewRegistry builds a Registry backed by the given Action Result store.
func NewRegistry(results repository.ActionResultRepository) *Registry {
	return &Registry{
		actions:  make(map[string]registeredAction),
		results:  results,
		validate: validator.New(),
	}
}

// WithTxOpener attaches the transaction opener used by RegisterTransactional
// actions, returning the same Registry for chaining.
func (r *Registry) WithTxOpener(opener TxOpener) *Registry {
	r.txOpener = opener
	return r
}

// Register stores (or overwrites) a named action. Deterministic: calling
// twice with the same name replaces the earlier registration.
func (r *Registry) Register(name, description string, parameters []Parameter, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = registeredAction{
		name:        name,
		description: description,
		parameters:  parameters,
		executor:    executor,
	}
}

// RegisterTransactional stores an action whose executor runs inside an open
// transaction at the requested isolation level.
func (r *Registry) RegisterTransactional(name string, parameters []Parameter, isolationLevel string, executor TransactionalExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = registeredAction{
		name:           name,
		parameters:     parameters,
		transactional:  true,
		isolationLevel: isolationLevel,
		txExecutor:     executor,
	}
}

// Description describes one catalog entry, returned by List.
type Description struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// List returns the catalog.
func (r *Registry) List() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Description, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, Description{Name: a.name, Description: a.description, Parameters: a.parameters})
	}
	return out
}

// validateParams rejects a call when a required parameter is absent and has
// no default, or when a supplied value fails its validator tag. Missing
// values with a Default are filled in.
func (r *Registry) validateParams(action registeredAction, params map[string]interface{}) error {
	for _, p := range action.parameters {
		value, present := params[p.Name]
		if !present {
			if p.Default != nil {
				params[p.Name] = p.Default
				continue
			}
			if p.Required {
				return domainerr.Validation("validate_params", fmt.Errorf("missing required parameter %q for action %q", p.Name, action.name))
			}
			continue
		}
		if p.Tag == "" {
			continue
		}
		if err := r.validate.Var(value, p.Tag); err != nil {
			return domainerr.Validation("validate_params", fmt.Errorf("parameter %q for action %q failed validation: %w", p.Name, action.name, err))
		}
	}
	return nil
}

// Execute runs the persisted-result protocol: look up an existing completed
// result for idempotencyKey and return it unchanged, or insert a fresh row,
// invoke the executor, and record the outcome.
func (r *Registry) Execute(ctx Context, actionName string, params map[string]interface{}, idempotencyKey string) (map[string]interface{}, error) {
	r.mu.RLock()
	action, ok := r.actions[actionName]
	r.mu.RUnlock()
	if !ok {
		return nil, domainerr.NotFound("execute_action", fmt.Errorf("unknown action %q", actionName))
	}

	if idempotencyKey == "" {
		idempotencyKey = DeriveIdempotencyKey(ctx.ExecutionID, actionName, 0)
	}

	existing, err := r.results.FindByIdempotencyKey(ctx, ctx.Tenant, idempotencyKey)
	if err != nil {
		return nil, domainerr.TransientInfra("execute_action", err)
	}
	if existing != nil && existing.IsDone() {
		if existing.Success {
			return existing.Result, nil
		}
		return nil, domainerr.Executor("execute_action", fmt.Errorf("%s", existing.ErrorMessage))
	}

	if err := r.validateParams(action, params); err != nil {
		return nil, err
	}

	result := existing
	if result == nil {
		result = &models.WorkflowActionResultModel{
			Tenant:         ctx.Tenant,
			ExecutionID:    ctx.ExecutionID,
			EventID:        ctx.EventID,
			ActionName:     actionName,
			IdempotencyKey: idempotencyKey,
			Parameters:     params,
			ReadyToExecute: true,
		}
		if err := r.results.Create(ctx, result); err != nil {
			return nil, domainerr.TransientInfra("execute_action", err)
		}
	}

	result.MarkStarted()
	if err := r.results.Update(ctx, result); err != nil {
		return nil, domainerr.TransientInfra("execute_action", err)
	}

	var output map[string]interface{}
	var execErr error
	if action.transactional {
		if r.txOpener == nil {
			execErr = fmt.Errorf("action %q requires a transaction but no TxOpener is configured", action.name)
		} else {
			execErr = r.txOpener.RunInTx(ctx, action.isolationLevel, func(tx interface{}) error {
				var innerErr error
				output, innerErr = action.txExecutor(ctx, tx, params)
				return innerErr
			})
		}
	} else {
		output, execErr = action.executor(ctx, params)
	}
	if execErr != nil {
		result.MarkFailed(execErr.Error())
		_ = r.results.Update(ctx, result)
		return nil, domainerr.Executor("execute_action", execErr)
	}

	result.MarkSucceeded(output)
	if err := r.results.Update(ctx, result); err != nil {
		return nil, domainerr.TransientInfra("execute_action", err)
	}
	return output, nil
}

// DeriveIdempotencyKey builds the deterministic key execution_id-action-seq,
// where seq is the caller's stable per-execution call-sequence number (e.g.
// the workflow context's count of Actions().Call invocations so far). Two
// calls with the same inputs always produce the same key, so replaying an
// execution's body recomputes the key a prior pass already used and Execute
// returns the stored Action Result instead of invoking the action again.
func DeriveIdempotencyKey(executionID uuid.UUID, actionName string, seq int) string {
	return fmt.Sprintf("%s-%s-%d", executionID, actionName, seq)
}
