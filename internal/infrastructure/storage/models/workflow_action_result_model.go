package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowActionResultModel records one invocation attempt of a named action,
// keyed by idempotency_key so a repeated call with the same key returns the
// stored result instead of re-invoking the action body.
type WorkflowActionResultModel struct {
	bun.BaseModel `bun:"table:workflow_action_results,alias:war"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant         string     `bun:"tenant,pk,notnull" json:"tenant"`
	ExecutionID    uuid.UUID  `bun:"execution_id,notnull,type:uuid" json:"execution_id" validate:"required"`
	EventID        uuid.UUID  `bun:"event_id,notnull,type:uuid" json:"event_id" validate:"required"`
	ActionName     string     `bun:"action_name,notnull" json:"action_name" validate:"required"`
	IdempotencyKey string     `bun:"idempotency_key,notnull" json:"idempotency_key" validate:"required"`
	Parameters     JSONBMap   `bun:"parameters,type:jsonb,default:'{}'" json:"parameters,omitempty"`
	ReadyToExecute bool       `bun:"ready_to_execute,notnull,default:false" json:"ready_to_execute"`
	Success        bool       `bun:"success,notnull,default:false" json:"success"`
	Result         JSONBMap   `bun:"result,type:jsonb" json:"result,omitempty"`
	ErrorMessage   string     `bun:"error_message" json:"error_message,omitempty"`
	StartedAt      *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// BeforeInsert hook to set identity and defaults.
func (r *WorkflowActionResultModel) BeforeInsert(ctx interface{}) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Parameters == nil {
		r.Parameters = make(JSONBMap)
	}
	return nil
}

// IsDone reports whether the action invocation reached a terminal outcome.
func (r *WorkflowActionResultModel) IsDone() bool {
	return r.CompletedAt != nil
}

// MarkStarted records the start of an invocation attempt.
func (r *WorkflowActionResultModel) MarkStarted() {
	now := time.Now()
	r.StartedAt = &now
	r.ReadyToExecute = false
}

// MarkSucceeded records a successful invocation outcome.
func (r *WorkflowActionResultModel) MarkSucceeded(result JSONBMap) {
	now := time.Now()
	r.CompletedAt = &now
	r.Success = true
	r.Result = result
}

// MarkFailed records a failed invocation outcome.
func (r *WorkflowActionResultModel) MarkFailed(message string) {
	now := time.Now()
	r.CompletedAt = &now
	r.Success = false
	r.ErrorMessage = message
}
