package main

import (
	"github.com/smilemakc/workflowcore/pkg/runtime"
)

// registerWorkflows wires the workflow bodies this process can execute. Each
// workflow is compiled Go, not a database row: the registration store only
// names which (workflow, version) pair is current, per GetDefinition's
// resolution rule.
func registerWorkflows(rt *runtime.Runtime) {
	rt.RegisterWorkflow(runtime.Definition{
		Name:    "audit-on-event",
		Version: "v1",
		Execute: auditOnEventWorkflow,
	})
}

// auditOnEventWorkflow is the workflow global dispatch starts for any
// catalog event type it is attached to: it logs the triggering event, waits
// for an explicit "workflow.approve" or "workflow.reject" event, records the
// outcome, and completes.
func auditOnEventWorkflow(ctx *runtime.WorkflowContext) error {
	eventName, _ := ctx.Data().Get("event_name")

	if _, err := ctx.Actions().Call("log_audit_event", map[string]interface{}{
		"message": "received trigger event: " + toString(eventName),
	}); err != nil {
		return err
	}

	if err := ctx.SetState("awaiting_decision"); err != nil {
		return err
	}

	decision, err := ctx.Events().WaitFor("workflow.approve", "workflow.reject")
	if err != nil {
		return err
	}

	if _, err := ctx.Actions().Call("log_audit_event", map[string]interface{}{
		"message": "decision received: " + decision.EventName,
	}); err != nil {
		return err
	}

	return ctx.SetState("decided")
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}
