package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oilfox_bridge/internal/bridge"
	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/repository"

	"github.com/google/uuid"
)

// LogFilter selects events by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "STATUS", "DEVICE_ADDED", "REFRESH", "COMMAND"
}

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	errUnknownEventType = errors.New("unknown event type")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	eventType := normalizeEventType(f.Type)
	switch eventType {
	case "", models.EventStatus, models.EventDeviceAdded, models.EventRefresh, models.EventCommand:
	default:
		return time.Time{}, time.Time{}, "", fmt.Errorf("%w: %q", errUnknownEventType, f.Type)
	}
	return from, to, eventType, nil
}

// IsFilterError reports whether err was caused by an unusable LogFilter.
func IsFilterError(err error) bool {
	return errors.Is(err, errInvalidTimeRange) || errors.Is(err, errUnknownEventType)
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.BridgeEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}

// EventRecorder appends bridge activity to the event log. It observes the
// bridge and listens for added devices.
type EventRecorder struct {
	repo    repository.EventRepo
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

func NewEventRecorder(repo repository.EventRepo, log *logger.Logger) *EventRecorder {
	return &EventRecorder{
		repo:    repo,
		timeout: 5 * time.Second,
		log:     logger.OrNop(log).Named("eventlog"),
		now:     time.Now,
	}
}

var _ bridge.Observer = (*EventRecorder)(nil)

func (r *EventRecorder) BridgeStatusChanged(bridgeID string, st models.BridgeStatus) {
	desc := fmt.Sprintf("Bridge %s", st.Status)
	if st.Detail != models.DetailNone && st.Detail != "" {
		desc += " (" + string(st.Detail) + ")"
	}
	_ = r.append(models.BridgeEvent{
		OccurredAt:  st.ChangedAt,
		Type:        models.EventStatus,
		BridgeID:    bridgeID,
		Description: desc,
		Metadata: map[string]any{
			"status":  st.Status,
			"detail":  st.Detail,
			"message": st.Message,
		},
	})
}

// LoginAttempted is not logged as an event; its outcome shows up as a STATUS event.
func (r *EventRecorder) LoginAttempted(string, error) {}

func (r *EventRecorder) RefreshFinished(bridgeID string, res bridge.RefreshResult) {
	meta := map[string]any{
		"devices":  res.Devices,
		"added":    res.Added,
		"rejected": res.Rejected,
	}
	desc := fmt.Sprintf("Refreshed %d devices", res.Devices)
	if res.Err != nil {
		meta["error"] = res.Err.Error()
		desc = "Refresh failed"
	}
	_ = r.append(models.BridgeEvent{
		OccurredAt:  res.At,
		Type:        models.EventRefresh,
		BridgeID:    bridgeID,
		Description: desc,
		Metadata:    meta,
	})
}

// OnDeviceAdded implements listener.Listener.
func (r *EventRecorder) OnDeviceAdded(bridgeID string, d models.DeviceSummary) error {
	return r.append(models.BridgeEvent{
		Type:        models.EventDeviceAdded,
		BridgeID:    bridgeID,
		Description: "Device " + d.Label() + " added",
		Metadata: map[string]any{
			"device_id":   d.ID,
			"hardware_id": d.HardwareID,
		},
	})
}

// OnDevicesRefreshed implements listener.Listener.
func (r *EventRecorder) OnDevicesRefreshed(string, []models.DeviceSummary) error { return nil }

// Command records an accepted user command.
func (r *EventRecorder) Command(bridgeID string, c Command) error {
	meta := map[string]any{"channel": c.Channel, "command": c.Command}
	target := "bridge"
	if c.DeviceID != "" {
		meta["device_id"] = c.DeviceID
		target = "device " + c.DeviceID
	}
	return r.append(models.BridgeEvent{
		Type:        models.EventCommand,
		BridgeID:    bridgeID,
		Description: fmt.Sprintf("Command %s on %s/%s", c.Command, target, c.Channel),
		Metadata:    meta,
	})
}

func (r *EventRecorder) append(e models.BridgeEvent) error {
	e.EventID = uuid.NewString()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.repo.Append(ctx, e); err != nil {
		r.log.Errorw("event_append_failed", "type", e.Type, "err", err)
		return fmt.Errorf("append %s event: %w", e.Type, err)
	}
	return nil
}
