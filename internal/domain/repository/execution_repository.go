package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

// ExecutionRepository persists Workflow Executions (runtime-owned).
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecutionModel) error
	FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowExecutionModel, error)
	UpdateState(ctx context.Context, execution *models.WorkflowExecutionModel) error
}

// ActionResultRepository persists Action Results for idempotent replay.
type ActionResultRepository interface {
	FindByIdempotencyKey(ctx context.Context, tenant, idempotencyKey string) (*models.WorkflowActionResultModel, error)
	Create(ctx context.Context, result *models.WorkflowActionResultModel) error
	Update(ctx context.Context, result *models.WorkflowActionResultModel) error
}

// RegistrationRepository loads workflow definitions from the external
// authoring surface (registration store) when they are not already
// in-memory.
type RegistrationRepository interface {
	FindCurrentVersion(ctx context.Context, tenant, name string) (*models.WorkflowRegistrationModel, *models.WorkflowRegistrationVersionModel, error)
	FindVersion(ctx context.Context, tenant, name, version string) (*models.WorkflowRegistrationModel, *models.WorkflowRegistrationVersionModel, error)
}

// AttachmentRepository resolves which workflows should be started in
// response to a given (tenant, event_type) pair for global dispatch.
type AttachmentRepository interface {
	FindActiveByEventType(ctx context.Context, tenant, eventType string) ([]*models.WorkflowEventAttachmentModel, error)
	FindCatalogEntry(ctx context.Context, tenant, eventID string) (*models.EventCatalogEntryModel, error)
}
