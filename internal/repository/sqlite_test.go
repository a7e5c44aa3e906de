package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/repository"
	"oilfox_bridge/internal/repository/db"
)

// TestRepository_SQLiteRoundTrip runs the repositories against a real database file.
func TestRepository_SQLiteRoundTrip(t *testing.T) {
	conn, err := db.InitDB(filepath.Join(t.TempDir(), "oilfox.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	repos := repository.NewRepository(conn)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := models.DiscoveryResult{
		ThingUID: "oilfoxng:oilfox:acc:D1", BridgeID: "acc", DeviceID: "D1", Label: "Tank",
		Properties:   map[string]string{models.PropertyOilFoxID: "D1"},
		DiscoveredAt: at,
	}
	if created, err := repos.Discovery.AddDiscovery(ctx, entry); err != nil || !created {
		t.Fatalf("AddDiscovery: created=%v err=%v", created, err)
	}
	if created, err := repos.Discovery.AddDiscovery(ctx, entry); err != nil || created {
		t.Fatalf("repeated AddDiscovery: created=%v err=%v", created, err)
	}
	approved, err := repos.Discovery.Approve(ctx, entry.ThingUID)
	if err != nil || !approved.Approved || !approved.DiscoveredAt.Equal(at) {
		t.Fatalf("Approve: %+v %v", approved, err)
	}

	st := models.DeviceState{
		DeviceID: "D1", BridgeID: "acc", Label: "Tank", Status: models.StatusOnline, Detail: models.DetailNone,
		Channels: map[string]float64{models.ChannelFillingPercentage: 25}, UpdatedAt: at,
	}
	if err := repos.DeviceStates.SaveDeviceState(ctx, st); err != nil {
		t.Fatalf("SaveDeviceState: %v", err)
	}
	st.Channels[models.ChannelFillingPercentage] = 24
	if err := repos.DeviceStates.SaveDeviceState(ctx, st); err != nil {
		t.Fatalf("second SaveDeviceState: %v", err)
	}
	states, err := repos.DeviceStates.ListDeviceStates(ctx, "acc")
	if err != nil || len(states) != 1 || states[0].Channels[models.ChannelFillingPercentage] != 24 {
		t.Fatalf("ListDeviceStates: %+v %v", states, err)
	}

	for i, typ := range []string{models.EventStatus, models.EventDeviceAdded, models.EventStatus} {
		ev := models.BridgeEvent{OccurredAt: at.Add(time.Duration(i) * time.Minute), Type: typ, BridgeID: "acc", Description: typ}
		if err := repos.Events.Append(ctx, ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	events, err := repos.Events.List(ctx, at.Add(30*time.Second), time.Time{}, models.EventStatus)
	if err != nil || len(events) != 1 || !events[0].OccurredAt.Equal(at.Add(2*time.Minute)) {
		t.Fatalf("List: %+v %v", events, err)
	}

	id, err := repos.Auth.Create(ctx, "ops", "hash")
	if err != nil || id == 0 {
		t.Fatalf("Create: %d %v", id, err)
	}
	u, err := repos.Auth.GetByUsername(ctx, "ops")
	if err != nil || u == nil || u.ID != id {
		t.Fatalf("GetByUsername: %+v %v", u, err)
	}
}
