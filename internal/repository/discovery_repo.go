package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"oilfox_bridge/internal/models"
)

type DiscoverySQLite struct {
	db *sql.DB
}

func NewDiscoverySQLite(db *sql.DB) *DiscoverySQLite { return &DiscoverySQLite{db: db} }

var _ DiscoveryRepo = (*DiscoverySQLite)(nil)

const (
	insertDiscoverySQL = `
		INSERT INTO discovery_inbox (thing_uid, bridge_id, device_id, label, properties, approved, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thing_uid) DO NOTHING
	`
	selectDiscoveryColumns  = `SELECT thing_uid, bridge_id, device_id, label, properties, approved, discovered_at FROM discovery_inbox`
	selectDiscoveryByUID    = selectDiscoveryColumns + ` WHERE thing_uid = ?`
	selectDiscoveryByBridge = selectDiscoveryColumns + ` WHERE bridge_id = ? ORDER BY discovered_at ASC, thing_uid ASC`
	approveDiscoverySQL     = `UPDATE discovery_inbox SET approved = 1 WHERE thing_uid = ?`
)

// AddDiscovery stores r unless an entry with the same thing UID exists.
// It reports whether a row was inserted.
func (r *DiscoverySQLite) AddDiscovery(ctx context.Context, d models.DiscoveryResult) (bool, error) {
	props, err := json.Marshal(d.Properties)
	if err != nil {
		return false, fmt.Errorf("marshal properties of %s: %w", d.ThingUID, err)
	}
	res, err := r.db.ExecContext(ctx, insertDiscoverySQL,
		d.ThingUID,
		d.BridgeID,
		d.DeviceID,
		d.Label,
		string(props),
		d.Approved,
		utcOrNow(d.DiscoveredAt).Format(sqliteTimeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert discovery %s: %w", d.ThingUID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for discovery %s: %w", d.ThingUID, err)
	}
	return n == 1, nil
}

// ListDiscoveries returns the inbox of a bridge, approved entries included.
func (r *DiscoverySQLite) ListDiscoveries(ctx context.Context, bridgeID string) ([]models.DiscoveryResult, error) {
	rows, err := r.db.QueryContext(ctx, selectDiscoveryByBridge, bridgeID)
	if err != nil {
		return nil, fmt.Errorf("list discoveries of %s: %w", bridgeID, err)
	}
	defer rows.Close()

	out := make([]models.DiscoveryResult, 0, 8)
	for rows.Next() {
		d, err := scanDiscovery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discovery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Approve marks an inbox entry approved and returns it. Approving twice is allowed.
func (r *DiscoverySQLite) Approve(ctx context.Context, thingUID string) (models.DiscoveryResult, error) {
	res, err := r.db.ExecContext(ctx, approveDiscoverySQL, thingUID)
	if err != nil {
		return models.DiscoveryResult{}, fmt.Errorf("approve %s: %w", thingUID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.DiscoveryResult{}, ErrNotFound
	}

	d, err := scanDiscovery(r.db.QueryRowContext(ctx, selectDiscoveryByUID, thingUID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.DiscoveryResult{}, ErrNotFound
	}
	if err != nil {
		return models.DiscoveryResult{}, fmt.Errorf("select discovery %s: %w", thingUID, err)
	}
	return d, nil
}

func scanDiscovery(row rowScanner) (models.DiscoveryResult, error) {
	var (
		d     models.DiscoveryResult
		props string
	)
	if err := row.Scan(&d.ThingUID, &d.BridgeID, &d.DeviceID, &d.Label, &props, &d.Approved, &d.DiscoveredAt); err != nil {
		return models.DiscoveryResult{}, err
	}
	d.DiscoveredAt = d.DiscoveredAt.UTC()
	if err := json.Unmarshal([]byte(props), &d.Properties); err != nil {
		return models.DiscoveryResult{}, fmt.Errorf("properties of %s: %w", d.ThingUID, err)
	}
	return d, nil
}
