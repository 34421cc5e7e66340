package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkflowEventModel is one entry in the append-only event log for an
// execution. ToState is written at most once: at append time for
// workflow.started/workflow.completed, otherwise via SetToState once state
// derivation has determined the post-event state; it must never be
// rewritten afterward.
type WorkflowEventModel struct {
	bun.BaseModel `bun:"table:workflow_events,alias:wev"`

	ID          uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant      string    `bun:"tenant,pk,notnull" json:"tenant"`
	ExecutionID uuid.UUID `bun:"execution_id,notnull,type:uuid" json:"execution_id" validate:"required"`
	EventName   string    `bun:"event_name,notnull" json:"event_name" validate:"required"`
	EventType   string    `bun:"event_type,notnull" json:"event_type" validate:"required,oneof=system workflow user"`
	Payload     JSONBMap  `bun:"payload,type:jsonb,default:'{}'" json:"payload,omitempty"`
	UserID      string    `bun:"user_id" json:"user_id,omitempty"`
	FromState   string    `bun:"from_state,notnull" json:"from_state"`
	ToState     *string   `bun:"to_state" json:"to_state,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// BeforeInsert hook to set identity and defaults. ID doubles as the
// idempotency key when the event is produced by an external caller.
func (e *WorkflowEventModel) BeforeInsert(ctx interface{}) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Payload == nil {
		e.Payload = make(JSONBMap)
	}
	if e.ToState == nil {
		e.ToState = nil
	}
	return nil
}
