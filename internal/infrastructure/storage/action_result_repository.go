package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

var _ repository.ActionResultRepository = (*ActionResultRepository)(nil)

// ActionResultRepository implements repository.ActionResultRepository using Bun.
type ActionResultRepository struct {
	db *bun.DB
}

// NewActionResultRepository creates a new ActionResultRepository.
func NewActionResultRepository(db *bun.DB) *ActionResultRepository {
	return &ActionResultRepository{db: db}
}

// FindByIdempotencyKey looks up a stored result by its idempotency key.
func (r *ActionResultRepository) FindByIdempotencyKey(ctx context.Context, tenant, idempotencyKey string) (*models.WorkflowActionResultModel, error) {
	result := new(models.WorkflowActionResultModel)
	err := r.db.NewSelect().
		Model(result).
		Where("tenant = ? AND idempotency_key = ?", tenant, idempotencyKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find action result by key %s: %w", idempotencyKey, err)
	}
	return result, nil
}

// Create inserts a new "ready_to_execute" action result row.
func (r *ActionResultRepository) Create(ctx context.Context, result *models.WorkflowActionResultModel) error {
	_, err := r.db.NewInsert().Model(result).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create action result: %w", err)
	}
	return nil
}

// Update persists the terminal outcome of an action invocation.
func (r *ActionResultRepository) Update(ctx context.Context, result *models.WorkflowActionResultModel) error {
	_, err := r.db.NewUpdate().
		Model(result).
		Column("ready_to_execute", "success", "result", "error_message", "started_at", "completed_at").
		Where("id = ? AND tenant = ?", result.ID, result.Tenant).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update action result %s: %w", result.ID, err)
	}
	return nil
}
