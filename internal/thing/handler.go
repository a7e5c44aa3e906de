// Package thing implements the per-device handler fed by bridge refreshes.
package thing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/models"
)

// ErrMissingDeviceID is returned by Initialize when the oilfoxId property is not set.
var ErrMissingDeviceID = errors.New("oilfoxId is not set")

// Store persists the latest state of a device.
type Store interface {
	SaveDeviceState(ctx context.Context, st models.DeviceState) error
}

// BridgeView is the part of the bridge a device handler reads.
type BridgeView interface {
	ID() string
	Status() models.BridgeStatus
}

// Handler tracks one device of a bridge.
type Handler struct {
	bridge BridgeView
	store  Store
	log    *logger.Logger
	now    func() time.Time

	mu    sync.RWMutex
	state models.DeviceState
}

// New creates a handler from a discovery result.
func New(r models.DiscoveryResult, bridge BridgeView, store Store, log *logger.Logger) *Handler {
	return &Handler{
		bridge: bridge,
		store:  store,
		log:    logger.OrNop(log).Named("thing").With("thing", r.ThingUID),
		now:    time.Now,
		state: models.DeviceState{
			DeviceID:   r.Properties[models.PropertyOilFoxID],
			BridgeID:   r.BridgeID,
			Label:      r.Label,
			HardwareID: r.Properties[models.PropertyHardwareID],
			Status:     models.StatusOffline,
			Detail:     models.DetailNone,
			Channels:   map[string]float64{},
		},
	}
}

// DeviceID returns the cloud id of the device.
func (h *Handler) DeviceID() string { return h.state.DeviceID }

// Initialize derives the device status from the bridge status.
func (h *Handler) Initialize() error {
	if h.state.DeviceID == "" {
		h.log.Errorw("thing_missing_id")
		h.setStatus(models.StatusOffline, models.DetailConfigurationError)
		return ErrMissingDeviceID
	}
	h.BridgeStatusChanged(h.bridge.ID(), h.bridge.Status())
	return nil
}

// State returns a copy of the current state.
func (h *Handler) State() models.DeviceState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := h.state
	st.Channels = make(map[string]float64, len(h.state.Channels))
	for k, v := range h.state.Channels {
		st.Channels[k] = v
	}
	return st
}

// Restore seeds the channels from a persisted snapshot. The status keeps
// following the bridge.
func (h *Handler) Restore(st models.DeviceState) {
	if st.DeviceID != h.state.DeviceID {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Channels = make(map[string]float64, len(st.Channels))
	for k, v := range st.Channels {
		h.state.Channels[k] = v
	}
	if h.state.HardwareID == "" {
		h.state.HardwareID = st.HardwareID
	}
	h.state.UpdatedAt = st.UpdatedAt
}

// HandleCommand logs the command. Devices are read-only.
func (h *Handler) HandleCommand(channel, command string) {
	h.log.Infow("thing_command_ignored", "channel", channel, "command", command)
}

// BridgeStatusChanged follows the bridge: Online with it, else Offline(BRIDGE_OFFLINE).
func (h *Handler) BridgeStatusChanged(_ string, st models.BridgeStatus) {
	if st.Online() {
		h.setStatus(models.StatusOnline, models.DetailNone)
		return
	}
	h.setStatus(models.StatusOffline, models.DetailBridgeOffline)
}

// OnDeviceAdded implements listener.Listener.
func (h *Handler) OnDeviceAdded(string, models.DeviceSummary) error { return nil }

// OnDevicesRefreshed implements listener.Listener. A device missing from
// the payload goes Offline and keeps its last channel values.
func (h *Handler) OnDevicesRefreshed(bridgeID string, devices []models.DeviceSummary) error {
	for _, d := range devices {
		if d.ID != h.state.DeviceID {
			continue
		}
		h.mu.Lock()
		h.state.Channels = channels(d)
		h.state.Status = models.StatusOnline
		h.state.Detail = models.DetailNone
		h.state.HardwareID = d.HardwareID
		h.state.UpdatedAt = h.now().UTC()
		h.mu.Unlock()
		return h.persist()
	}

	h.log.Warnw("thing_not_reported", "device", h.state.DeviceID)
	h.setStatus(models.StatusOffline, models.DetailNone)
	return h.persist()
}

func (h *Handler) setStatus(s models.ThingStatus, d models.StatusDetail) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Status == s && h.state.Detail == d {
		return
	}
	h.state.Status, h.state.Detail = s, d
	h.state.UpdatedAt = h.now().UTC()
	h.log.Infow("thing_status", "status", s, "detail", d)
}

func (h *Handler) persist() error {
	if h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.SaveDeviceState(ctx, h.State()); err != nil {
		return fmt.Errorf("save device %s: %w", h.state.DeviceID, err)
	}
	return nil
}

// channels maps the known fields of d to channel values.
func channels(d models.DeviceSummary) map[string]float64 {
	out := make(map[string]float64, 8)
	putInt(out, models.ChannelHeight, d.TankHeight)
	putInt(out, models.ChannelVolume, d.TankVolume)
	putInt(out, models.ChannelOffset, d.TankOffset)
	if m := d.Metering; m != nil {
		putFloat(out, models.ChannelValue, m.Value)
		putFloat(out, models.ChannelFillingPercentage, m.FillingPercentage)
		putFloat(out, models.ChannelLiters, m.Liters)
		putFloat(out, models.ChannelCurrentOilHeight, m.CurrentOilHeight)
		putInt(out, models.ChannelBatteryLevel, m.BatteryLevel)
	}
	return out
}

func putInt(m map[string]float64, k string, v *int64) {
	if v != nil {
		m[k] = float64(*v)
	}
}

func putFloat(m map[string]float64, k string, v *float64) {
	if v != nil {
		m[k] = *v
	}
}
