// Package streamevent defines the wire schema of a Workflow Event as
// projected onto the broker, and its validation rules.
package streamevent

import "fmt"

// Event is the transient projection of a Workflow Event onto the stream.
// Decoded on the consumer side and validated against this fixed schema
// before dispatch.
type Event struct {
	EventID     string                 `json:"event_id"`
	ExecutionID string                 `json:"execution_id"`
	Tenant      string                 `json:"tenant"`
	EventType   string                 `json:"event_type"`
	EventName   string                 `json:"event_name"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

var validEventTypes = map[string]bool{
	"system":   true,
	"workflow": true,
	"user":     true,
}

// Validate checks the minimum required fields and enumerations. The stream
// client acks and drops an envelope that fails validation without calling
// its handler.
func Validate(e Event) error {
	if e.EventID == "" {
		return fmt.Errorf("stream event missing event_id")
	}
	if e.Tenant == "" {
		return fmt.Errorf("stream event missing tenant")
	}
	if e.EventName == "" {
		return fmt.Errorf("stream event missing event_name")
	}
	if e.EventType != "" && !validEventTypes[e.EventType] {
		return fmt.Errorf("stream event has unrecognized event_type %q", e.EventType)
	}
	return nil
}
