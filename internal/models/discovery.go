package models

import "time"

// Discovery result property keys.
const (
	PropertyVersion    = "version"
	PropertyOilFoxID   = "oilfoxId"
	PropertyHardwareID = "hardwareId"
)

// DiscoveryResult is an inbox entry for a device seen on the bridge.
type DiscoveryResult struct {
	ThingUID     string            `json:"thing_uid"`
	BridgeID     string            `json:"bridge_id"`
	DeviceID     string            `json:"device_id"`
	Label        string            `json:"label"`
	Properties   map[string]string `json:"properties"`
	Approved     bool              `json:"approved"`
	DiscoveredAt time.Time         `json:"discovered_at"`
}
