package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

// ProcessingRepository is the event processing table: the per-enqueued
// event lifecycle record consumed by the worker's dispatch and scan paths.
type ProcessingRepository interface {
	Create(ctx context.Context, row *models.WorkflowEventProcessingModel) error
	FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowEventProcessingModel, error)
	FindByEventID(ctx context.Context, tenant string, eventID uuid.UUID) (*models.WorkflowEventProcessingModel, error)

	// UpdateStatus transitions a row's status, optionally touching
	// worker_id/attempt_count/error_message/last_attempt_at/next_attempt_at.
	UpdateStatus(ctx context.Context, row *models.WorkflowEventProcessingModel) error

	// FetchPendingOrPublished fetches up to limit rows in {pending,
	// published}, cross-tenant, ordered by created_at asc.
	FetchPendingOrPublished(ctx context.Context, limit int) ([]*models.WorkflowEventProcessingModel, error)

	// FetchRetryEligible fetches up to limit rows with status=failed,
	// attempt_count < max_attempts, and next_attempt_at <= now.
	FetchRetryEligible(ctx context.Context, limit int, now time.Time) ([]*models.WorkflowEventProcessingModel, error)

	// PromoteStaleProcessing resets rows stuck in "processing" whose
	// last_attempt_at predates the cutoff back to "failed" (eligible for
	// the retry scan), per the stale-row promotion sweep.
	PromoteStaleProcessing(ctx context.Context, cutoff time.Time) (int, error)
}
