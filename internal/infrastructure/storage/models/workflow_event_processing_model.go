package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Processing statuses for WorkflowEventProcessingModel.Status.
const (
	ProcessingStatusPending   = "pending"
	ProcessingStatusPublished = "published"
	ProcessingStatusProcessing = "processing"
	ProcessingStatusCompleted = "completed"
	ProcessingStatusFailed    = "failed"
	ProcessingStatusRetrying  = "retrying"
)

// WorkflowEventProcessingModel is the per-enqueued-event state machine row.
// At most one row for a given EventID may be in {processing, retrying} at
// any time; that exclusion is enforced by the distributed lock on the
// processing path, not by a database constraint.
type WorkflowEventProcessingModel struct {
	bun.BaseModel `bun:"table:workflow_event_processing,alias:wep"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Tenant        string     `bun:"tenant,pk,notnull" json:"tenant"`
	EventID       uuid.UUID  `bun:"event_id,notnull,type:uuid" json:"event_id" validate:"required"`
	ExecutionID   uuid.UUID  `bun:"execution_id,notnull,type:uuid" json:"execution_id" validate:"required"`
	Status        string     `bun:"status,notnull,default:'pending'" json:"status" validate:"required,oneof=pending published processing completed failed retrying"`
	AttemptCount  int        `bun:"attempt_count,notnull,default:0" json:"attempt_count"`
	MaxAttempts   int        `bun:"max_attempts,notnull,default:3" json:"max_attempts"`
	WorkerID      string     `bun:"worker_id" json:"worker_id,omitempty"`
	LastAttemptAt *time.Time `bun:"last_attempt_at" json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time `bun:"next_attempt_at" json:"next_attempt_at,omitempty"`
	ErrorMessage  string     `bun:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// BeforeInsert hook to set identity and defaults.
func (p *WorkflowEventProcessingModel) BeforeInsert(ctx interface{}) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = ProcessingStatusPending
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	return nil
}

// BeforeUpdate hook to update timestamp.
func (p *WorkflowEventProcessingModel) BeforeUpdate(ctx interface{}) error {
	p.UpdatedAt = time.Now()
	return nil
}

// IsActive reports whether the row currently claims ownership of its event.
func (p *WorkflowEventProcessingModel) IsActive() bool {
	return p.Status == ProcessingStatusProcessing || p.Status == ProcessingStatusRetrying
}

// IsRetryEligible reports whether a failed row can still be retried.
func (p *WorkflowEventProcessingModel) IsRetryEligible() bool {
	return p.Status == ProcessingStatusFailed && p.AttemptCount < p.MaxAttempts
}
