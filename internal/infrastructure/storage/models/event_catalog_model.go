package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EventCatalogEntryModel names an event type a producer may emit for a
// tenant; workflow attachments reference catalog entries by EventID.
type EventCatalogEntryModel struct {
	bun.BaseModel `bun:"table:event_catalog,alias:ecat"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant    string    `bun:"tenant,pk,notnull" json:"tenant"`
	EventID   string    `bun:"event_id,notnull" json:"event_id" validate:"required"`
	EventType string    `bun:"event_type,notnull" json:"event_type" validate:"required"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// BeforeInsert hook to set identity and defaults.
func (c *EventCatalogEntryModel) BeforeInsert(ctx interface{}) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return nil
}

// WorkflowEventAttachmentModel binds a workflow registration to a catalog
// event so that global dispatch knows which workflows to start in response.
type WorkflowEventAttachmentModel struct {
	bun.BaseModel `bun:"table:workflow_event_attachments,alias:wea"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant     string    `bun:"tenant,pk,notnull" json:"tenant"`
	EventID    string    `bun:"event_id,notnull" json:"event_id" validate:"required"`
	WorkflowID uuid.UUID `bun:"workflow_id,notnull,type:uuid" json:"workflow_id" validate:"required"`
	IsActive   bool      `bun:"is_active,notnull,default:true" json:"is_active"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Workflow *WorkflowRegistrationModel `bun:"rel:belongs-to,join:workflow_id=id,join:tenant=tenant" json:"workflow,omitempty"`
}

// BeforeInsert hook to set identity and defaults.
func (a *WorkflowEventAttachmentModel) BeforeInsert(ctx interface{}) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	return nil
}
