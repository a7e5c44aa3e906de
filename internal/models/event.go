package models

import "time"

// Bridge event types.
const (
	EventStatus      = "STATUS"
	EventDeviceAdded = "DEVICE_ADDED"
	EventRefresh     = "REFRESH"
	EventCommand     = "COMMAND"
)

// BridgeEvent is a single entry of the bridge event log.
type BridgeEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"` // STATUS | DEVICE_ADDED | REFRESH | COMMAND
	BridgeID    string    `json:"bridge_id"`
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
