package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

var _ repository.ExecutionRepository = (*ExecutionRepository)(nil)

// ExecutionRepository implements repository.ExecutionRepository using Bun.
type ExecutionRepository struct {
	db *bun.DB
}

// NewExecutionRepository creates a new ExecutionRepository.
func NewExecutionRepository(db *bun.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create inserts a new execution row.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecutionModel) error {
	_, err := r.db.NewInsert().Model(execution).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// FindByID loads a single execution by id within a tenant.
func (r *ExecutionRepository) FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowExecutionModel, error) {
	execution := new(models.WorkflowExecutionModel)
	err := r.db.NewSelect().Model(execution).Where("id = ? AND tenant = ?", id, tenant).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find execution %s: %w", id, err)
	}
	return execution, nil
}

// UpdateState persists the execution's derived state and status.
func (r *ExecutionRepository) UpdateState(ctx context.Context, execution *models.WorkflowExecutionModel) error {
	_, err := r.db.NewUpdate().
		Model(execution).
		Column("current_state", "status", "context_data", "error_message", "completed_at", "updated_at").
		Where("id = ? AND tenant = ?", execution.ID, execution.Tenant).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", execution.ID, err)
	}
	return nil
}
