package models

import "time"

// Device channel ids.
const (
	ChannelVolume            = "volume"
	ChannelHeight            = "height"
	ChannelOffset            = "offset"
	ChannelValue             = "value"
	ChannelFillingPercentage = "fillingpercentage"
	ChannelLiters            = "liters"
	ChannelCurrentOilHeight  = "currentoilheight"
	ChannelBatteryLevel      = "battery-level"
)

// DeviceState is the latest known state of one device thing.
// Channels that were never reported are absent from the map.
type DeviceState struct {
	DeviceID   string             `json:"device_id"`
	BridgeID   string             `json:"bridge_id"`
	Label      string             `json:"label"`
	HardwareID string             `json:"hardware_id,omitempty"`
	Status     ThingStatus        `json:"status"`
	Detail     StatusDetail       `json:"detail"`
	Channels   map[string]float64 `json:"channels"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
