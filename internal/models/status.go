package models

import "time"

// ThingStatus is the coarse status reported to the host.
type ThingStatus string

const (
	StatusUnauthenticated ThingStatus = "UNAUTHENTICATED"
	StatusOnline          ThingStatus = "ONLINE"
	StatusOffline         ThingStatus = "OFFLINE"
)

// StatusDetail qualifies an Offline status.
type StatusDetail string

const (
	DetailNone               StatusDetail = "NONE"
	DetailCommunicationError StatusDetail = "COMMUNICATION_ERROR"
	DetailConfigurationError StatusDetail = "CONFIGURATION_ERROR"
	DetailBridgeOffline      StatusDetail = "BRIDGE_OFFLINE"
)

// BridgeStatus is a status plus the reason for it.
type BridgeStatus struct {
	Status    ThingStatus  `json:"status"`
	Detail    StatusDetail `json:"detail"`
	Message   string       `json:"message,omitempty"`
	ChangedAt time.Time    `json:"changed_at"`
}

// Online reports whether the status is ONLINE.
func (s BridgeStatus) Online() bool { return s.Status == StatusOnline }
