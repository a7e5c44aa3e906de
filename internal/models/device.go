package models

// Metering is the latest measurement reported by a tank sensor.
// A nil field means the cloud did not report it (unknown).
type Metering struct {
	Value             *float64 `json:"value,omitempty"`
	FillingPercentage *float64 `json:"fillingPercentage,omitempty"`
	Liters            *float64 `json:"liters,omitempty"`
	CurrentOilHeight  *float64 `json:"currentOilHeight,omitempty"`
	BatteryLevel      *int64   `json:"battery,omitempty"`
}

// DeviceSummary is one device entry of the cloud summary payload.
// Only ID is guaranteed; every other field may be unknown.
type DeviceSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	HardwareID string    `json:"hwid,omitempty"`
	TankHeight *int64    `json:"tankHeight,omitempty"`
	TankVolume *int64    `json:"tankVolume,omitempty"`
	TankOffset *int64    `json:"tankOffset,omitempty"`
	Metering   *Metering `json:"metering,omitempty"`
}

// Label is the display name, falling back to "OilFox <id>" when the name is unknown.
func (d DeviceSummary) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return "OilFox " + d.ID
}
