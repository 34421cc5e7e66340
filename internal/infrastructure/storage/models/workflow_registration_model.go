package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowRegistrationModel represents a named, versioned workflow definition.
type WorkflowRegistrationModel struct {
	bun.BaseModel `bun:"table:workflow_registrations,alias:wr"`

	ID                uuid.UUID   `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant            string      `bun:"tenant,pk,notnull" json:"tenant"`
	Name              string      `bun:"name,notnull" json:"name"`
	Description       string      `bun:"description" json:"description,omitempty"`
	Tags              StringArray `bun:"tags,type:text[]" json:"tags,omitempty"`
	Status            string      `bun:"status,notnull,default:'active'" json:"status" validate:"required,oneof=active disabled"`
	CurrentVersionID  *uuid.UUID  `bun:"current_version_id,type:uuid" json:"current_version_id,omitempty"`
	CreatedAt         time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time   `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Versions []*WorkflowRegistrationVersionModel `bun:"rel:has-many,join:id=registration_id,join:tenant=tenant" json:"versions,omitempty"`
}

// BeforeInsert hook to set timestamps and defaults.
func (w *WorkflowRegistrationModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = "active"
	}
	return nil
}

// BeforeUpdate hook to update timestamp.
func (w *WorkflowRegistrationModel) BeforeUpdate(ctx interface{}) error {
	w.UpdatedAt = time.Now()
	return nil
}

// WorkflowRegistrationVersionModel holds one serialized workflow definition.
// At most one version per registration carries IsCurrent = true (partial
// unique index idx_one_current_version).
type WorkflowRegistrationVersionModel struct {
	bun.BaseModel `bun:"table:workflow_registration_versions,alias:wrv"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant         string    `bun:"tenant,pk,notnull" json:"tenant"`
	RegistrationID uuid.UUID `bun:"registration_id,notnull,type:uuid" json:"registration_id" validate:"required"`
	Version        string    `bun:"version,notnull" json:"version" validate:"required"`
	IsCurrent      bool      `bun:"is_current,notnull,default:false" json:"is_current"`
	Metadata       JSONBMap  `bun:"metadata,type:jsonb,default:'{}'" json:"metadata,omitempty"`
	DefinitionBody string    `bun:"definition_body,notnull" json:"definition_body"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	Registration *WorkflowRegistrationModel `bun:"rel:belongs-to,join:registration_id=id,join:tenant=tenant" json:"registration,omitempty"`
}

// BeforeInsert hook to set timestamps and defaults.
func (v *WorkflowRegistrationVersionModel) BeforeInsert(ctx interface{}) error {
	v.CreatedAt = time.Now()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Metadata == nil {
		v.Metadata = make(JSONBMap)
	}
	return nil
}
