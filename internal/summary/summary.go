// Package summary decodes the cloud summary payload into device records.
package summary

import (
	"encoding/json"
	"errors"
	"fmt"

	"oilfox_bridge/internal/models"
)

// ErrMalformed is returned when the payload is not an object with a devices array.
var ErrMalformed = errors.New("malformed summary payload")

// Rejected describes a device element that could not be used.
type Rejected struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Summary is the decoded payload.
type Summary struct {
	Devices  []models.DeviceSummary
	Rejected []Rejected
}

// Parse decodes raw. Each device element is decoded on its own: an element
// without a usable id is rejected, any other missing or mistyped field is
// left unknown. Duplicate ids keep the first occurrence.
func Parse(raw json.RawMessage) (Summary, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return Summary{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	list, ok := top["devices"]
	if !ok {
		return Summary{}, fmt.Errorf("%w: no devices field", ErrMalformed)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(list, &elems); err != nil {
		return Summary{}, fmt.Errorf("%w: devices is not an array", ErrMalformed)
	}

	var out Summary
	seen := make(map[string]struct{}, len(elems))
	for i, elem := range elems {
		d, reason := parseDevice(elem)
		if reason == "" {
			if _, dup := seen[d.ID]; dup {
				reason = "duplicate id " + d.ID
			}
		}
		if reason != "" {
			out.Rejected = append(out.Rejected, Rejected{Index: i, Reason: reason})
			continue
		}
		seen[d.ID] = struct{}{}
		out.Devices = append(out.Devices, d)
	}
	return out, nil
}

func parseDevice(raw json.RawMessage) (models.DeviceSummary, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return models.DeviceSummary{}, "not an object"
	}
	id, ok := str(fields["id"])
	if !ok || id == "" {
		return models.DeviceSummary{}, "missing id"
	}

	d := models.DeviceSummary{
		ID:         id,
		TankHeight: integer(fields["tankHeight"]),
		TankVolume: integer(fields["tankVolume"]),
		TankOffset: integer(fields["tankOffset"]),
	}
	d.Name, _ = str(fields["name"])
	d.HardwareID, _ = str(fields["hwid"])

	var metering map[string]json.RawMessage
	if m, ok := fields["metering"]; ok && json.Unmarshal(m, &metering) == nil && metering != nil {
		d.Metering = &models.Metering{
			Value:             decimal(metering["value"]),
			FillingPercentage: decimal(metering["fillingPercentage"]),
			Liters:            decimal(metering["liters"]),
			CurrentOilHeight:  decimal(metering["currentOilHeight"]),
			BatteryLevel:      integer(metering["battery"]),
		}
	}
	return d, ""
}

func str(raw json.RawMessage) (string, bool) {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func decimal(raw json.RawMessage) *float64 {
	var f float64
	if raw == nil || string(raw) == "null" || json.Unmarshal(raw, &f) != nil {
		return nil
	}
	return &f
}

// integer accepts whole-valued JSON numbers, including forms like 200.0.
func integer(raw json.RawMessage) *int64 {
	var n json.Number
	if raw == nil || json.Unmarshal(raw, &n) != nil {
		return nil
	}
	if i, err := n.Int64(); err == nil {
		return &i
	}
	f, err := n.Float64()
	if err != nil || f != float64(int64(f)) {
		return nil
	}
	i := int64(f)
	return &i
}

// Diff returns the devices whose id is not in known, in payload order.
func Diff(known map[string]struct{}, current []models.DeviceSummary) []models.DeviceSummary {
	var added []models.DeviceSummary
	for _, d := range current {
		if _, ok := known[d.ID]; !ok {
			added = append(added, d)
		}
	}
	return added
}
