package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"oilfox_bridge/internal/models"

	"github.com/google/uuid"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

const (
	insertEventSQL = `INSERT INTO bridge_events (id, occurred_at, type, bridge_id, message, meta) VALUES (?, ?, ?, ?, ?, ?)`
	selectEventSQL = `SELECT id, occurred_at, type, bridge_id, message, meta FROM bridge_events`
)

// Append inserts a bridge event. A missing EventID or OccurredAt is filled in.
func (r *EventSQLite) Append(ctx context.Context, e models.BridgeEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}

	var meta *string
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			s := string(b)
			meta = &s
		}
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		utcOrNow(e.OccurredAt).Format(sqliteTimeLayout),
		normalizeType(e.Type),
		e.BridgeID,
		e.Description,
		meta,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.EventID, err)
	}
	return nil
}

// List returns events in [from, to] (zero bounds are open) of type typ
// (empty for all), oldest first.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, typ string) ([]models.BridgeEvent, error) {
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, from.UTC().Format(sqliteTimeLayout))
	}
	if !to.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, to.UTC().Format(sqliteTimeLayout))
	}
	if typ = normalizeType(typ); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}

	q := selectEventSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]models.BridgeEvent, 0, 64)
	for rows.Next() {
		var (
			ev   models.BridgeEvent
			meta sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &ev.BridgeID, &ev.Description, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()

		if meta.Valid && meta.String != "" {
			var v any
			if err := json.Unmarshal([]byte(meta.String), &v); err == nil {
				ev.Metadata = v
			} else {
				ev.Metadata = meta.String
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
