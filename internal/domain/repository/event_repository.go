// Package repository declares the persistence interfaces the workflow
// runtime and worker depend on, so that both compose against abstractions
// (per the cyclic-dependency break described for the runtime/worker/registry
// trio) rather than importing the storage package directly.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

// EventRepository is the event store: an append-only log of workflow
// events keyed by (tenant, execution).
type EventRepository interface {
	// Append persists a new event. A duplicate id is returned as an error;
	// callers do not look for an existing row first, and EnqueueEvent always
	// appends under a freshly generated id, so a repeated enqueue of the same
	// event is stored as a second event.
	Append(ctx context.Context, event *models.WorkflowEventModel) error

	// FindByID loads a single event by id within a tenant.
	FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowEventModel, error)

	// ListForExecution returns events ordered by (created_at, id). When
	// upTo is non-nil, only events at or before that timestamp are
	// returned, supporting time-travel replay.
	ListForExecution(ctx context.Context, tenant string, executionID uuid.UUID, upTo *time.Time) ([]*models.WorkflowEventModel, error)

	// SetToState writes the to_state field exactly once. The Postgres
	// implementation only updates a row whose to_state is still NULL, so a
	// second call for the same event id leaves the first value in place;
	// the runtime also skips the call when the event already has a to_state.
	SetToState(ctx context.Context, tenant string, id uuid.UUID, toState string) error
}
