package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"oilfox_bridge/internal/bridge"
	"oilfox_bridge/internal/discovery"
	"oilfox_bridge/internal/listener"
	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/repository"
	"oilfox_bridge/internal/thing"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDiscoveryNotFound = errors.New("discovery result not found")
	ErrInvalidCommand    = errors.New("invalid command: channel and command are required")
)

// Bridge is the account bridge as seen by the orchestrator.
type Bridge interface {
	ID() string
	Status() models.BridgeStatus
	Devices() []models.DeviceSummary
	LastRefresh() time.Time
	Scheduled() bool
	Refresh(ctx context.Context) error
	HandleCommand(channel, command string)
	AddObserver(o bridge.Observer)
	RegisterListener(l listener.Listener) (bool, error)
	UnregisterListener(l listener.Listener) bool
}

// Kind tags a Thing.
type Kind int

const (
	KindBridge Kind = iota
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindBridge:
		return "bridge"
	case KindDevice:
		return "device"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Thing is either the account bridge or one device below it. Exactly one
// of Bridge and Device is set, matching Kind.
type Thing struct {
	UID    string
	Kind   Kind
	Bridge Bridge
	Device *thing.Handler
}

// BridgeInfo is the API view of the bridge thing.
type BridgeInfo struct {
	UID         string              `json:"thing_uid"`
	ID          string              `json:"id"`
	Status      models.BridgeStatus `json:"status"`
	Scheduled   bool                `json:"scheduled"`
	LastRefresh time.Time           `json:"last_refresh,omitempty"`
	Devices     int                 `json:"devices"`
	Things      int                 `json:"things"`
}

// Command is a user command for the bridge (empty DeviceID) or one device.
type Command struct {
	DeviceID string `json:"device_id,omitempty"`
	Channel  string `json:"channel"`
	Command  string `json:"command"`
}

// Orchestrator owns the things of one bridge. It turns approved discovery
// results into device handlers and forwards bridge status changes to them.
type Orchestrator struct {
	bridge      Bridge
	states      repository.DeviceStateRepo
	inbox       repository.DiscoveryRepo
	events      *EventRecorder
	discovery   *discovery.Service
	autoApprove bool
	timeout     time.Duration
	log         *logger.Logger

	mu     sync.RWMutex
	things map[string]Thing
}

// NewOrchestrator registers the bridge thing and subscribes to its status.
// Call Start before the bridge is initialized so no added device is missed.
func NewOrchestrator(b Bridge, repos *repository.Repository, autoApprove bool, log *logger.Logger) *Orchestrator {
	log = logger.OrNop(log).Named("orchestrator")
	o := &Orchestrator{
		bridge:      b,
		states:      repos.DeviceStates,
		inbox:       repos.Discovery,
		events:      NewEventRecorder(repos.Events, log),
		autoApprove: autoApprove,
		timeout:     5 * time.Second,
		log:         log,
		things:      make(map[string]Thing),
	}
	uid := discovery.BridgeUID(b.ID())
	o.things[uid] = Thing{UID: uid, Kind: KindBridge, Bridge: b}
	o.discovery = discovery.New(b, repos.Discovery, o.onDiscovered, log)
	b.AddObserver(o)
	b.AddObserver(o.events)
	return o
}

// Start restores the approved devices of the inbox and activates discovery.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.bridge.RegisterListener(o.events); err != nil {
		return fmt.Errorf("register event recorder: %w", err)
	}

	entries, err := o.inbox.ListDiscoveries(ctx, o.bridge.ID())
	if err != nil {
		return fmt.Errorf("list inbox: %w", err)
	}
	saved, err := o.states.ListDeviceStates(ctx, o.bridge.ID())
	if err != nil {
		return fmt.Errorf("list device states: %w", err)
	}
	byID := make(map[string]models.DeviceState, len(saved))
	for _, st := range saved {
		byID[st.DeviceID] = st
	}

	restored := 0
	for _, r := range entries {
		if !r.Approved {
			continue
		}
		h, err := o.addDevice(r)
		if err != nil {
			o.log.Warnw("thing_restore_failed", "thing", r.ThingUID, "err", err)
			continue
		}
		if st, ok := byID[h.DeviceID()]; ok {
			h.Restore(st)
		}
		restored++
	}
	o.log.Infow("orchestrator_started", "bridge", o.bridge.ID(), "restored", restored, "auto_approve", o.autoApprove)

	return o.discovery.Activate()
}

// Stop deactivates discovery and detaches every device handler.
func (o *Orchestrator) Stop() {
	o.discovery.Deactivate()
	o.bridge.UnregisterListener(o.events)

	o.mu.Lock()
	defer o.mu.Unlock()
	for uid, t := range o.things {
		if t.Kind != KindDevice {
			continue
		}
		o.bridge.UnregisterListener(t.Device)
		delete(o.things, uid)
	}
	o.log.Infow("orchestrator_stopped")
}

// Things returns all things ordered by uid.
func (o *Orchestrator) Things() []Thing {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Thing, 0, len(o.things))
	for _, t := range o.things {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// --- BridgeControl ---

func (o *Orchestrator) Info(context.Context) BridgeInfo {
	o.mu.RLock()
	things := len(o.things)
	o.mu.RUnlock()
	return BridgeInfo{
		UID:         discovery.BridgeUID(o.bridge.ID()),
		ID:          o.bridge.ID(),
		Status:      o.bridge.Status(),
		Scheduled:   o.bridge.Scheduled(),
		LastRefresh: o.bridge.LastRefresh(),
		Devices:     len(o.bridge.Devices()),
		Things:      things,
	}
}

func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.bridge.Refresh(ctx)
}

// Command hands a command to the bridge or a device handler and records it.
func (o *Orchestrator) Command(_ context.Context, c Command) error {
	c.Channel = strings.TrimSpace(c.Channel)
	c.Command = strings.TrimSpace(c.Command)
	if c.Channel == "" || c.Command == "" {
		return ErrInvalidCommand
	}
	if c.DeviceID == "" {
		o.bridge.HandleCommand(c.Channel, c.Command)
	} else {
		h, ok := o.device(c.DeviceID)
		if !ok {
			return ErrDeviceNotFound
		}
		h.HandleCommand(c.Channel, c.Command)
	}
	return o.events.Command(o.bridge.ID(), c)
}

// --- Devices ---

func (o *Orchestrator) ListDevices(context.Context) ([]models.DeviceState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.DeviceState, 0, len(o.things))
	for _, t := range o.things {
		if t.Kind == KindDevice {
			out = append(out, t.Device.State())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// GetDevice returns the live state of an approved device, falling back to
// the last persisted snapshot.
func (o *Orchestrator) GetDevice(ctx context.Context, deviceID string) (models.DeviceState, error) {
	if h, ok := o.device(deviceID); ok {
		return h.State(), nil
	}
	st, err := o.states.GetDeviceState(ctx, o.bridge.ID(), deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.DeviceState{}, ErrDeviceNotFound
	}
	return st, err
}

// --- Discovery ---

func (o *Orchestrator) Inbox(ctx context.Context) ([]models.DiscoveryResult, error) {
	return o.inbox.ListDiscoveries(ctx, o.bridge.ID())
}

// Scan refreshes the bridge now; new devices land in the inbox.
func (o *Orchestrator) Scan(ctx context.Context) error {
	return o.discovery.StartScan(ctx)
}

// Approve marks an inbox entry approved and creates its device thing.
// Approving an existing thing returns its state unchanged.
func (o *Orchestrator) Approve(ctx context.Context, thingUID string) (models.DeviceState, error) {
	o.mu.RLock()
	t, ok := o.things[thingUID]
	o.mu.RUnlock()
	if ok && t.Kind == KindDevice {
		return t.Device.State(), nil
	}

	r, err := o.inbox.Approve(ctx, thingUID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.DeviceState{}, ErrDiscoveryNotFound
	}
	if err != nil {
		return models.DeviceState{}, err
	}

	h, err := o.addDevice(r)
	if err != nil {
		return models.DeviceState{}, err
	}
	if st, err := o.states.GetDeviceState(ctx, r.BridgeID, h.DeviceID()); err == nil {
		h.Restore(st)
	}
	if devices := o.bridge.Devices(); len(devices) > 0 {
		if err := h.OnDevicesRefreshed(o.bridge.ID(), devices); err != nil {
			o.log.Warnw("thing_seed_failed", "thing", thingUID, "err", err)
		}
	}
	o.log.Infow("thing_approved", "thing", thingUID)
	return h.State(), nil
}

// --- bridge.Observer ---

func (o *Orchestrator) BridgeStatusChanged(bridgeID string, st models.BridgeStatus) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, t := range o.things {
		if t.Kind == KindDevice {
			t.Device.BridgeStatusChanged(bridgeID, st)
		}
	}
}

func (o *Orchestrator) LoginAttempted(bridgeID string, err error) {
	if err != nil {
		o.log.Warnw("bridge_login_failed", "bridge", bridgeID, "err", err)
	}
}

func (o *Orchestrator) RefreshFinished(string, bridge.RefreshResult) {}

// onDiscovered runs inside the bridge refresh; it must not call Refresh.
func (o *Orchestrator) onDiscovered(r models.DiscoveryResult) {
	o.log.Infow("thing_discovered", "thing", r.ThingUID, "label", r.Label)
	if !o.autoApprove {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if _, err := o.Approve(ctx, r.ThingUID); err != nil {
		o.log.Errorw("thing_auto_approve_failed", "thing", r.ThingUID, "err", err)
	}
}

// addDevice creates, initializes and registers the handler of r. An
// existing handler for the same uid is returned as is.
func (o *Orchestrator) addDevice(r models.DiscoveryResult) (*thing.Handler, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.things[r.ThingUID]; ok && t.Kind == KindDevice {
		return t.Device, nil
	}

	h := thing.New(r, o.bridge, o.states, o.log)
	if err := h.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", r.ThingUID, err)
	}
	if _, err := o.bridge.RegisterListener(h); err != nil {
		return nil, fmt.Errorf("register %s: %w", r.ThingUID, err)
	}
	o.things[r.ThingUID] = Thing{UID: r.ThingUID, Kind: KindDevice, Device: h}
	return h, nil
}

func (o *Orchestrator) device(deviceID string) (*thing.Handler, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, t := range o.things {
		if t.Kind == KindDevice && t.Device.DeviceID() == deviceID {
			return t.Device, true
		}
	}
	return nil, false
}
