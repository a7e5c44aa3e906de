package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"oilfox_bridge/internal/models"
)

type DeviceStateSQLite struct {
	db *sql.DB
}

func NewDeviceStateSQLite(db *sql.DB) *DeviceStateSQLite {
	return &DeviceStateSQLite{db: db}
}

var _ DeviceStateRepo = (*DeviceStateSQLite)(nil)

const (
	upsertDeviceStateSQL = `
		INSERT INTO device_states (bridge_id, device_id, label, hardware_id, status, detail, channels, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bridge_id, device_id) DO UPDATE SET
			label=excluded.label,
			hardware_id=excluded.hardware_id,
			status=excluded.status,
			detail=excluded.detail,
			channels=excluded.channels,
			updated_at=excluded.updated_at
	`

	selectDeviceStateColumns = `SELECT bridge_id, device_id, label, hardware_id, status, detail, channels, updated_at FROM device_states`

	selectDeviceStateSQL  = selectDeviceStateColumns + ` WHERE bridge_id = ? AND device_id = ?`
	selectDeviceStatesSQL = selectDeviceStateColumns + ` WHERE bridge_id = ? ORDER BY device_id`
)

// SaveDeviceState upserts the latest state of one device. Only the newest
// state is kept; readings are not historized.
func (r *DeviceStateSQLite) SaveDeviceState(ctx context.Context, st models.DeviceState) error {
	channels := st.Channels
	if channels == nil {
		channels = map[string]float64{}
	}
	b, err := json.Marshal(channels)
	if err != nil {
		return fmt.Errorf("marshal channels of %s: %w", st.DeviceID, err)
	}

	_, err = r.db.ExecContext(ctx, upsertDeviceStateSQL,
		st.BridgeID,
		st.DeviceID,
		st.Label,
		st.HardwareID,
		string(st.Status),
		string(st.Detail),
		string(b),
		utcOrNow(st.UpdatedAt).Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert device state %s/%s: %w", st.BridgeID, st.DeviceID, err)
	}
	return nil
}

// GetDeviceState returns ErrNotFound when the device has no stored state.
func (r *DeviceStateSQLite) GetDeviceState(ctx context.Context, bridgeID, deviceID string) (models.DeviceState, error) {
	st, err := scanDeviceState(r.db.QueryRowContext(ctx, selectDeviceStateSQL, bridgeID, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeviceState{}, ErrNotFound
	}
	if err != nil {
		return models.DeviceState{}, fmt.Errorf("select device state %s/%s: %w", bridgeID, deviceID, err)
	}
	return st, nil
}

// ListDeviceStates returns all stored devices of a bridge ordered by id.
func (r *DeviceStateSQLite) ListDeviceStates(ctx context.Context, bridgeID string) ([]models.DeviceState, error) {
	rows, err := r.db.QueryContext(ctx, selectDeviceStatesSQL, bridgeID)
	if err != nil {
		return nil, fmt.Errorf("list device states of %s: %w", bridgeID, err)
	}
	defer rows.Close()

	out := make([]models.DeviceState, 0, 8)
	for rows.Next() {
		st, err := scanDeviceState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device state: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceState(row rowScanner) (models.DeviceState, error) {
	var (
		st       models.DeviceState
		hwid     sql.NullString
		status   string
		detail   string
		channels string
	)
	if err := row.Scan(&st.BridgeID, &st.DeviceID, &st.Label, &hwid, &status, &detail, &channels, &st.UpdatedAt); err != nil {
		return models.DeviceState{}, err
	}
	st.HardwareID = hwid.String
	st.Status = models.ThingStatus(status)
	st.Detail = models.StatusDetail(detail)
	st.UpdatedAt = st.UpdatedAt.UTC()
	if err := json.Unmarshal([]byte(channels), &st.Channels); err != nil {
		return models.DeviceState{}, fmt.Errorf("channels of %s: %w", st.DeviceID, err)
	}
	return st, nil
}
