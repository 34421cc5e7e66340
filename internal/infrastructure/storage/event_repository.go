package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

var _ repository.EventRepository = (*EventRepository)(nil)

// EventRepository implements repository.EventRepository using Bun.
type EventRepository struct {
	db *bun.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *bun.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append persists a new event. Any insert error, including a unique
// violation on id, is returned wrapped; no caller treats it as "already
// stored".
func (r *EventRepository) Append(ctx context.Context, event *models.WorkflowEventModel) error {
	_, err := r.db.NewInsert().Model(event).Exec(ctx)
	if err != nil {
		return fmt.Errorf("append workflow event: %w", err)
	}
	return nil
}

// FindByID loads a single event by id within a tenant.
func (r *EventRepository) FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowEventModel, error) {
	event := new(models.WorkflowEventModel)
	err := r.db.NewSelect().
		Model(event).
		Where("id = ? AND tenant = ?", id, tenant).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find workflow event %s: %w", id, err)
	}
	return event, nil
}

// ListForExecution returns events ordered by (created_at, id), optionally
// bounded by upTo for time-travel replay.
func (r *EventRepository) ListForExecution(ctx context.Context, tenant string, executionID uuid.UUID, upTo *time.Time) ([]*models.WorkflowEventModel, error) {
	var events []*models.WorkflowEventModel
	q := r.db.NewSelect().
		Model(&events).
		Where("tenant = ? AND execution_id = ?", tenant, executionID)

	if upTo != nil {
		q = q.Where("created_at <= ?", *upTo)
	}

	if err := q.Order("created_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list events for execution %s: %w", executionID, err)
	}
	return events, nil
}

// SetToState writes the to_state field exactly once: the update only
// matches a row whose to_state is still NULL.
func (r *EventRepository) SetToState(ctx context.Context, tenant string, id uuid.UUID, toState string) error {
	_, err := r.db.NewUpdate().
		Model((*models.WorkflowEventModel)(nil)).
		Set("to_state = ?", toState).
		Where("id = ? AND tenant = ? AND to_state IS NULL", id, tenant).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set to_state for event %s: %w", id, err)
	}
	return nil
}
