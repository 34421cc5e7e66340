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

var _ repository.AttachmentRepository = (*AttachmentRepository)(nil)

// AttachmentRepository implements repository.AttachmentRepository using Bun.
type AttachmentRepository struct {
	db *bun.DB
}

// NewAttachmentRepository creates a new AttachmentRepository.
func NewAttachmentRepository(db *bun.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// FindActiveByEventType resolves the active workflow attachments for a
// given event type within a tenant, for global dispatch fan-out.
func (r *AttachmentRepository) FindActiveByEventType(ctx context.Context, tenant, eventType string) ([]*models.WorkflowEventAttachmentModel, error) {
	var catalogEntries []*models.EventCatalogEntryModel
	if err := r.db.NewSelect().
		Model(&catalogEntries).
		Where("tenant = ? AND event_type = ?", tenant, eventType).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("find catalog entries for type %s: %w", eventType, err)
	}
	if len(catalogEntries) == 0 {
		return nil, nil
	}

	eventIDs := make([]string, 0, len(catalogEntries))
	for _, c := range catalogEntries {
		eventIDs = append(eventIDs, c.EventID)
	}

	var attachments []*models.WorkflowEventAttachmentModel
	err := r.db.NewSelect().
		Model(&attachments).
		Where("tenant = ? AND event_id IN (?) AND is_active = TRUE", tenant, bun.In(eventIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find attachments for type %s: %w", eventType, err)
	}
	return attachments, nil
}

// FindCatalogEntry loads a single event_catalog row by its event id.
func (r *AttachmentRepository) FindCatalogEntry(ctx context.Context, tenant, eventID string) (*models.EventCatalogEntryModel, error) {
	entry := new(models.EventCatalogEntryModel)
	err := r.db.NewSelect().
		Model(entry).
		Where("tenant = ? AND event_id = ?", tenant, eventID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find catalog entry %s: %w", eventID, err)
	}
	return entry, nil
}
