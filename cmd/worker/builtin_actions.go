package main

import (
	"fmt"

	"github.com/smilemakc/workflowcore/internal/infrastructure/logger"
	"github.com/smilemakc/workflowcore/pkg/actions"
)

// registerBuiltinActions wires the small set of actions every deployment of
// this engine needs out of the box: the audit-log action exercised by the
// single-event end-to-end scenario, and a no-op action used to validate the
// persisted-result protocol without any external side effect.
func registerBuiltinActions(registry *actions.Registry, log *logger.Logger) {
	registry.Register(
		"log_audit_event",
		"Writes one structured audit log line for the current execution.",
		[]actions.Parameter{
			{Name: "message", Required: true, Tag: "required"},
		},
		func(ctx actions.Context, params map[string]interface{}) (map[string]interface{}, error) {
			message, _ := params["message"].(string)
			log.InfoContext(ctx, "audit event", "execution_id", ctx.ExecutionID, "tenant", ctx.Tenant, "message", message)
			return map[string]interface{}{"logged": true}, nil
		},
	)

	registry.Register(
		"noop",
		"Validates the action pipeline without a side effect.",
		nil,
		func(ctx actions.Context, params map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"ok": true}, nil
		},
	)

	registry.RegisterTransactional(
		"record_marker",
		[]actions.Parameter{
			{Name: "key", Required: true, Tag: "required"},
		},
		"read committed",
		func(ctx actions.Context, tx interface{}, params map[string]interface{}) (map[string]interface{}, error) {
			key, _ := params["key"].(string)
			return map[string]interface{}{"marker": fmt.Sprintf("%s:%s", ctx.ExecutionID, key)}, nil
		},
	)
}
