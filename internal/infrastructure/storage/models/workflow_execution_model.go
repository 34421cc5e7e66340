package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowExecutionModel is one running (or terminal) instance of a workflow
// definition. CurrentState and ContextData are invariants derived by folding
// the execution's WorkflowEvent rows; they are mutated only via event
// application, never directly.
type WorkflowExecutionModel struct {
	bun.BaseModel `bun:"table:workflow_executions,alias:we"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant          string     `bun:"tenant,pk,notnull" json:"tenant"`
	WorkflowName    string     `bun:"workflow_name,notnull" json:"workflow_name" validate:"required"`
	WorkflowVersion string     `bun:"workflow_version,notnull" json:"workflow_version" validate:"required"`
	CurrentState    string     `bun:"current_state,notnull,default:'initial'" json:"current_state"`
	Status          string     `bun:"status,notnull,default:'active'" json:"status" validate:"required,oneof=active completed failed cancelled"`
	ContextData     JSONBMap   `bun:"context_data,type:jsonb,default:'{}'" json:"context_data,omitempty"`
	UserID          string     `bun:"user_id" json:"user_id,omitempty"`
	ErrorMessage    string     `bun:"error_message" json:"error_message,omitempty"`
	StartedAt       time.Time  `bun:"started_at,notnull,default:current_timestamp" json:"started_at"`
	CompletedAt     *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// BeforeInsert hook to set timestamps and defaults.
func (e *WorkflowExecutionModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CurrentState == "" {
		e.CurrentState = "initial"
	}
	if e.Status == "" {
		e.Status = "active"
	}
	if e.ContextData == nil {
		e.ContextData = make(JSONBMap)
	}
	return nil
}

// BeforeUpdate hook to update timestamp.
func (e *WorkflowExecutionModel) BeforeUpdate(ctx interface{}) error {
	e.UpdatedAt = time.Now()
	return nil
}

// IsTerminal reports whether the execution has reached a terminal status.
func (e *WorkflowExecutionModel) IsTerminal() bool {
	return e.Status == "completed" || e.Status == "failed" || e.Status == "cancelled"
}

// MarkCompleted transitions the execution to the completed terminal status.
func (e *WorkflowExecutionModel) MarkCompleted() {
	now := time.Now()
	e.CompletedAt = &now
	e.Status = "completed"
}

// MarkFailed transitions the execution to the failed terminal status.
func (e *WorkflowExecutionModel) MarkFailed(message string) {
	now := time.Now()
	e.CompletedAt = &now
	e.Status = "failed"
	e.ErrorMessage = message
}
