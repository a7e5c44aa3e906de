package service

import (
	"context"
	"time"

	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// BridgeControl exposes the account bridge: status, manual refresh and commands.
type BridgeControl interface {
	Info(ctx context.Context) BridgeInfo
	Refresh(ctx context.Context) error
	Command(ctx context.Context, c Command) error
}

// Devices exposes the latest state of approved device things.
type Devices interface {
	ListDevices(ctx context.Context) ([]models.DeviceState, error)
	GetDevice(ctx context.Context, deviceID string) (models.DeviceState, error)
}

// Discovery exposes the inbox of devices seen on the bridge.
type Discovery interface {
	Inbox(ctx context.Context) ([]models.DiscoveryResult, error)
	Scan(ctx context.Context) error
	Approve(ctx context.Context, thingUID string) (models.DeviceState, error)
}

// EventLog exposes append-only bridge events with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.BridgeEvent, error)
}

// AuthOptions configures operator tokens.
type AuthOptions struct {
	SigningKey string
	TokenTTL   time.Duration
}

type Service struct {
	BridgeControl
	Devices
	Discovery
	EventLog
	Authorization
}

// NewService wires the repositories and the orchestrator into the API facing services.
func NewService(repos *repository.Repository, orch *Orchestrator, auth AuthOptions) *Service {
	return &Service{
		BridgeControl: orch,
		Devices:       orch,
		Discovery:     orch,
		EventLog:      NewEventLogService(repos.Events),
		Authorization: NewAuthService(repos.Auth, auth),
	}
}
