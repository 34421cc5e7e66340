package worker

import (
	"context"
	"fmt"

	"github.com/smilemakc/workflowcore/pkg/runtime"
	"github.com/smilemakc/workflowcore/pkg/streamevent"
)

// handleGlobalDispatch is the Stream Client handler registered against the
// global stream/group. It resolves the active workflow attachments for this
// (tenant, event_type), and for each one starts a fresh execution seeded
// with the trigger event, then submits that same event so the new
// execution's first events.waitFor resolves immediately.
func (w *Worker) handleGlobalDispatch(ctx context.Context, event streamevent.Event, messageID string) error {
	attachments, err := w.attachments.FindActiveByEventType(ctx, event.Tenant, event.EventType)
	if err != nil {
		return fmt.Errorf("find attachments for %s/%s: %w", event.Tenant, event.EventType, err)
	}
	if len(attachments) == 0 {
		w.log.Debug("no attachments for event type, dropping", "tenant", event.Tenant, "event_type", event.EventType, "message_id", messageID)
		return nil
	}

	for _, attachment := range attachments {
		if attachment.Workflow == nil {
			w.log.Error("attachment missing workflow relation", "attachment_id", attachment.ID)
			continue
		}

		initialData := map[string]interface{}{
			"event_id":      event.EventID,
			"event_type":    event.EventType,
			"event_name":    event.EventName,
			"event_payload": event.Payload,
			"trigger_event": true,
		}

		result, err := w.runtime.StartExecution(ctx, runtime.StartOptions{
			Tenant:       event.Tenant,
			WorkflowName: attachment.Workflow.Name,
			InitialData:  initialData,
		})
		if err != nil {
			w.log.Error("start execution for dispatch", "workflow", attachment.Workflow.Name, "error", err)
			continue
		}

		if _, err := w.runtime.SubmitEvent(ctx, runtime.SubmitEventOptions{
			Tenant:      event.Tenant,
			ExecutionID: result.ExecutionID,
			EventName:   event.EventName,
			EventType:   event.EventType,
			Payload:     event.Payload,
		}); err != nil {
			w.log.Error("submit trigger event to new execution", "execution_id", result.ExecutionID, "error", err)
		}
	}

	return nil
}
