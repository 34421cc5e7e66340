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

var _ repository.ProcessingRepository = (*ProcessingRepository)(nil)

// ProcessingRepository implements repository.ProcessingRepository using Bun.
type ProcessingRepository struct {
	db *bun.DB
}

// NewProcessingRepository creates a new ProcessingRepository.
func NewProcessingRepository(db *bun.DB) *ProcessingRepository {
	return &ProcessingRepository{db: db}
}

// Create inserts a new processing row.
func (r *ProcessingRepository) Create(ctx context.Context, row *models.WorkflowEventProcessingModel) error {
	_, err := r.db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create processing row: %w", err)
	}
	return nil
}

// FindByID loads one processing row by id.
func (r *ProcessingRepository) FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowEventProcessingModel, error) {
	row := new(models.WorkflowEventProcessingModel)
	err := r.db.NewSelect().Model(row).Where("id = ? AND tenant = ?", id, tenant).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find processing row %s: %w", id, err)
	}
	return row, nil
}

// FindByEventID loads the processing row for a given event.
func (r *ProcessingRepository) FindByEventID(ctx context.Context, tenant string, eventID uuid.UUID) (*models.WorkflowEventProcessingModel, error) {
	row := new(models.WorkflowEventProcessingModel)
	err := r.db.NewSelect().Model(row).Where("event_id = ? AND tenant = ?", eventID, tenant).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find processing row for event %s: %w", eventID, err)
	}
	return row, nil
}

// UpdateStatus persists status/attempt/worker/error fields for a row.
func (r *ProcessingRepository) UpdateStatus(ctx context.Context, row *models.WorkflowEventProcessingModel) error {
	_, err := r.db.NewUpdate().
		Model(row).
		Column("status", "attempt_count", "worker_id", "last_attempt_at", "next_attempt_at", "error_message", "updated_at").
		Where("id = ? AND tenant = ?", row.ID, row.Tenant).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update processing row %s: %w", row.ID, err)
	}
	return nil
}

// FetchPendingOrPublished fetches rows ready for the first dispatch pass.
func (r *ProcessingRepository) FetchPendingOrPublished(ctx context.Context, limit int) ([]*models.WorkflowEventProcessingModel, error) {
	var rows []*models.WorkflowEventProcessingModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("status IN (?)", bun.In([]string{models.ProcessingStatusPending, models.ProcessingStatusPublished})).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pending/published rows: %w", err)
	}
	return rows, nil
}

// FetchRetryEligible fetches failed rows still under the retry budget and
// due for another attempt.
func (r *ProcessingRepository) FetchRetryEligible(ctx context.Context, limit int, now time.Time) ([]*models.WorkflowEventProcessingModel, error) {
	var rows []*models.WorkflowEventProcessingModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("status = ?", models.ProcessingStatusFailed).
		Where("attempt_count < max_attempts").
		Where("next_attempt_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch retry-eligible rows: %w", err)
	}
	return rows, nil
}

// PromoteStaleProcessing demotes rows stuck in "processing" past cutoff back
// to "failed" so the retry scan can reconsider them, per the stale-row
// promotion rule: status='processing' AND last_attempt_at < cutoff.
func (r *ProcessingRepository) PromoteStaleProcessing(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*models.WorkflowEventProcessingModel)(nil)).
		Set("status = ?", models.ProcessingStatusFailed).
		Set("error_message = ?", "promoted from stale processing state").
		Set("next_attempt_at = ?", time.Now()).
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.ProcessingStatusProcessing).
		Where("last_attempt_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("promote stale processing rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
