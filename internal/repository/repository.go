package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"oilfox_bridge/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type DeviceStateRepo interface {
	SaveDeviceState(ctx context.Context, st models.DeviceState) error
	GetDeviceState(ctx context.Context, bridgeID, deviceID string) (models.DeviceState, error)
	ListDeviceStates(ctx context.Context, bridgeID string) ([]models.DeviceState, error)
}

type DiscoveryRepo interface {
	AddDiscovery(ctx context.Context, r models.DiscoveryResult) (bool, error)
	ListDiscoveries(ctx context.Context, bridgeID string) ([]models.DiscoveryResult, error)
	Approve(ctx context.Context, thingUID string) (models.DiscoveryResult, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.BridgeEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.BridgeEvent, error)
}

type Repository struct {
	DeviceStates DeviceStateRepo
	Discovery    DiscoveryRepo
	Events       EventRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		DeviceStates: NewDeviceStateSQLite(db),
		Discovery:    NewDiscoverySQLite(db),
		Events:       NewEventSQLite(db),
		Auth:         NewUserRepository(db),
	}
}

// sqliteTimeLayout is the TIMESTAMP text format used in all tables.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
