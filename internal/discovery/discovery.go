// Package discovery turns newly seen devices into inbox entries.
package discovery

import (
	"context"
	"fmt"
	"time"

	"oilfox_bridge/internal/listener"
	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/models"
)

// Binding and thing types.
const (
	BindingID    = "oilfoxng"
	ThingTypeID  = "oilfox"
	BridgeTypeID = "account"
)

// Source is the bridge the service listens on.
type Source interface {
	ID() string
	Refresh(ctx context.Context) error
	RegisterListener(l listener.Listener) (bool, error)
	UnregisterListener(l listener.Listener) bool
}

// Inbox stores discovery results. AddDiscovery reports whether the entry is new.
type Inbox interface {
	AddDiscovery(ctx context.Context, r models.DiscoveryResult) (bool, error)
}

// Service publishes a discovery result for every device added on its bridge.
type Service struct {
	source  Source
	inbox   Inbox
	onNew   func(models.DiscoveryResult)
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// New creates an inactive discovery service. onNew, if set, is called for
// every result that was not in the inbox before.
func New(source Source, inbox Inbox, onNew func(models.DiscoveryResult), log *logger.Logger) *Service {
	return &Service{
		source:  source,
		inbox:   inbox,
		onNew:   onNew,
		timeout: 5 * time.Second,
		log:     logger.OrNop(log).Named("discovery"),
		now:     time.Now,
	}
}

// BridgeUID builds the uid of the account bridge thing.
func BridgeUID(bridgeID string) string {
	return fmt.Sprintf("%s:%s:%s", BindingID, BridgeTypeID, bridgeID)
}

// ThingUID builds the uid of a device thing below a bridge.
func ThingUID(bridgeID, deviceID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", BindingID, ThingTypeID, bridgeID, deviceID)
}

// Activate starts listening on the bridge.
func (s *Service) Activate() error {
	if _, err := s.source.RegisterListener(s); err != nil {
		return fmt.Errorf("activate discovery: %w", err)
	}
	s.log.Infow("discovery_activated", "bridge", s.source.ID())
	return nil
}

// Deactivate stops listening.
func (s *Service) Deactivate() {
	s.source.UnregisterListener(s)
	s.log.Infow("discovery_deactivated", "bridge", s.source.ID())
}

// StartScan runs a refresh cycle now; results arrive through OnDeviceAdded.
func (s *Service) StartScan(ctx context.Context) error {
	s.log.Infow("discovery_scan", "bridge", s.source.ID())
	return s.source.Refresh(ctx)
}

// OnDeviceAdded implements listener.Listener.
func (s *Service) OnDeviceAdded(bridgeID string, d models.DeviceSummary) error {
	r := Result(bridgeID, d, s.now().UTC())

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	created, err := s.inbox.AddDiscovery(ctx, r)
	if err != nil {
		return fmt.Errorf("store discovery %s: %w", r.ThingUID, err)
	}
	if !created {
		s.log.Debugw("discovery_known", "thing", r.ThingUID)
		return nil
	}
	s.log.Infow("discovery_new", "thing", r.ThingUID, "label", r.Label)
	if s.onNew != nil {
		s.onNew(r)
	}
	return nil
}

// OnDevicesRefreshed implements listener.Listener.
func (s *Service) OnDevicesRefreshed(string, []models.DeviceSummary) error { return nil }

// Result builds the discovery result for d.
func Result(bridgeID string, d models.DeviceSummary, at time.Time) models.DiscoveryResult {
	return models.DiscoveryResult{
		ThingUID: ThingUID(bridgeID, d.ID),
		BridgeID: bridgeID,
		DeviceID: d.ID,
		Label:    d.Label(),
		Properties: map[string]string{
			models.PropertyVersion:    "unknown",
			models.PropertyOilFoxID:   d.ID,
			models.PropertyHardwareID: d.HardwareID,
		},
		DiscoveredAt: at,
	}
}
