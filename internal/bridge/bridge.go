// Package bridge polls the OilFox cloud for one account and fans the
// devices out to listeners.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"oilfox_bridge/internal/listener"
	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/session"
	"oilfox_bridge/internal/summary"
)

var (
	// ErrNotInitialized is returned by a refresh before Initialize succeeded.
	ErrNotInitialized = errors.New("bridge not initialized")
	// ErrOffline is returned by a refresh skipped because the session is not online.
	ErrOffline = errors.New("bridge is not online")
)

// JobScheduler runs task now and then every interval until cancel is called.
type JobScheduler interface {
	Schedule(name string, every time.Duration, task func()) (cancel func() error, err error)
}

// Observer is told about status changes, login attempts and finished
// refresh cycles. Calls are made while the refresh lock is held, so an
// observer must not call Refresh or Initialize.
type Observer interface {
	BridgeStatusChanged(bridgeID string, status models.BridgeStatus)
	LoginAttempted(bridgeID string, err error)
	RefreshFinished(bridgeID string, res RefreshResult)
}

// RefreshResult is the outcome of one refresh cycle.
type RefreshResult struct {
	At       time.Time
	Devices  int
	Added    int
	Rejected int
	Err      error
}

// Bridge is one configured cloud account.
//
// Initialize, scheduled cycles and manual refreshes run under one lock, so
// at most one of them is active at a time. A trigger arriving during a
// cycle waits for it.
type Bridge struct {
	id  string
	mu  sync.Mutex
	cfg Config

	session   *session.Manager
	sched     JobScheduler
	cancelJob func() error
	scheduled atomic.Bool
	known     map[string]struct{}
	listeners *listener.Registry

	stateMu     sync.RWMutex
	status      models.BridgeStatus
	devices     []models.DeviceSummary
	lastRefresh time.Time

	obsMu     sync.RWMutex
	observers []Observer

	log *logger.Logger
	now func() time.Time
}

// New creates an uninitialized bridge.
func New(id string, sched JobScheduler, log *logger.Logger) *Bridge {
	log = logger.OrNop(log).Named("bridge").With("bridge", id)
	return &Bridge{
		id:        id,
		sched:     sched,
		known:     make(map[string]struct{}),
		listeners: listener.NewRegistry(log),
		status: models.BridgeStatus{
			Status:    models.StatusUnauthenticated,
			Detail:    models.DetailNone,
			ChangedAt: time.Now().UTC(),
		},
		log: log,
		now: time.Now,
	}
}

// ID returns the bridge id.
func (b *Bridge) ID() string { return b.id }

// AddObserver subscribes o to status and refresh outcomes.
func (b *Bridge) AddObserver(o Observer) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.observers = append(b.observers, o)
}

// RegisterListener adds a device listener. See listener.Registry.Register.
func (b *Bridge) RegisterListener(l listener.Listener) (bool, error) {
	return b.listeners.Register(l)
}

// UnregisterListener removes a device listener.
func (b *Bridge) UnregisterListener(l listener.Listener) bool {
	return b.listeners.Unregister(l)
}

// Initialize (re)configures the bridge: it cancels the previous job, logs
// in when no usable token is held and schedules the refresh job. An invalid
// configuration leaves the bridge Offline(CONFIGURATION_ERROR) without a job.
func (b *Bridge) Initialize(ctx context.Context, cfg Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.log.Infow("bridge_initializing", "host", cfg.Hostname, "interval", cfg.RefreshInterval.String())
	if err := b.cancelLocked(); err != nil {
		b.log.Warnw("bridge_cancel_failed", "err", err)
	}

	if err := cfg.Validate(); err != nil {
		b.log.Errorw("bridge_config_invalid", "err", err)
		b.session = nil
		b.setStatus(models.BridgeStatus{Status: models.StatusOffline, Detail: models.DetailConfigurationError, Message: err.Error()})
		return err
	}
	b.cfg = cfg

	creds := session.Credentials{Email: cfg.Email, Password: cfg.Password}
	if b.session == nil || !b.session.Matches(cfg.Hostname, creds) {
		b.session = session.NewManager(cfg.Hostname, creds, cfg.transportOptions(), b.onSessionStatus, b.log)
		b.session.Resume(b.Status())
		b.setStatus(b.session.Status())
	}

	if !b.session.HasToken() || b.session.TokenExpired() {
		b.login(ctx)
	} else {
		b.session.MarkOnline()
	}

	cancel, err := b.sched.Schedule("oilfox-refresh-"+b.id, cfg.RefreshInterval, b.scheduledCycle)
	if err != nil {
		b.log.Errorw("bridge_schedule_failed", "err", err)
		return fmt.Errorf("schedule refresh: %w", err)
	}
	b.cancelJob = cancel
	b.scheduled.Store(true)
	return nil
}

// Refresh runs one refresh cycle now, waiting for a running cycle to finish.
func (b *Bridge) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cycle(ctx)
}

// HandleCommand accepts a user command. The cloud API is read-only, so the
// command is only logged.
func (b *Bridge) HandleCommand(channel, command string) {
	b.log.Infow("bridge_command_ignored", "channel", channel, "command", command)
}

// Dispose cancels the scheduled job. A cycle in progress completes.
func (b *Bridge) Dispose() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.Infow("bridge_disposed")
	return b.cancelLocked()
}

// Scheduled reports whether a refresh job is active. It does not wait for
// a running cycle.
func (b *Bridge) Scheduled() bool {
	return b.scheduled.Load()
}

// Status returns the current bridge status.
func (b *Bridge) Status() models.BridgeStatus {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.status
}

// Devices returns the devices of the last successful fetch.
func (b *Bridge) Devices() []models.DeviceSummary {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	out := make([]models.DeviceSummary, len(b.devices))
	copy(out, b.devices)
	return out
}

// Device returns one device of the last successful fetch.
func (b *Bridge) Device(id string) (models.DeviceSummary, bool) {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	for _, d := range b.devices {
		if d.ID == id {
			return d, true
		}
	}
	return models.DeviceSummary{}, false
}

// LastRefresh returns the time of the last successful fetch, zero if none.
func (b *Bridge) LastRefresh() time.Time {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.lastRefresh
}

func (b *Bridge) scheduledCycle() {
	if err := b.Refresh(context.Background()); err != nil {
		b.log.Debugw("bridge_cycle_skipped", "err", err)
	}
}

// cycle is one refresh: log in unless online, fetch, diff and notify.
// Every failure ends as a status update; nothing is retried in the cycle.
func (b *Bridge) cycle(ctx context.Context) error {
	s := b.session
	if s == nil {
		return ErrNotInitialized
	}

	if !s.Status().Online() || s.TokenExpired() {
		if err := b.login(ctx); err != nil {
			b.finish(RefreshResult{Err: err})
			return err
		}
	}
	if !s.Status().Online() {
		b.finish(RefreshResult{Err: ErrOffline})
		return ErrOffline
	}

	raw, err := s.Summary(ctx)
	if err != nil {
		b.log.Errorw("bridge_fetch_failed", "err", err)
		s.MarkOffline(session.DetailFor(err), err.Error())
		b.finish(RefreshResult{Err: err})
		return err
	}
	parsed, err := summary.Parse(raw)
	if err != nil {
		b.log.Errorw("bridge_summary_invalid", "err", err)
		s.MarkOffline(models.DetailCommunicationError, err.Error())
		b.finish(RefreshResult{Err: err})
		return err
	}
	s.MarkOnline()

	for _, r := range parsed.Rejected {
		b.log.Warnw("bridge_device_rejected", "index", r.Index, "reason", r.Reason)
	}

	added := summary.Diff(b.known, parsed.Devices)
	now := b.now().UTC()
	b.stateMu.Lock()
	b.devices = parsed.Devices
	b.lastRefresh = now
	b.stateMu.Unlock()

	for _, d := range added {
		b.known[d.ID] = struct{}{}
		b.log.Infow("bridge_device_added", "device", d.ID, "label", d.Label())
		b.listeners.NotifyAdded(b.id, d)
	}
	b.listeners.NotifyRefreshed(b.id, parsed.Devices)

	b.finish(RefreshResult{At: now, Devices: len(parsed.Devices), Added: len(added), Rejected: len(parsed.Rejected)})
	return nil
}

func (b *Bridge) login(ctx context.Context) error {
	_, err := b.session.Login(ctx)
	for _, o := range b.snapshotObservers() {
		o.LoginAttempted(b.id, err)
	}
	return err
}

func (b *Bridge) finish(res RefreshResult) {
	if res.At.IsZero() {
		res.At = b.now().UTC()
	}
	for _, o := range b.snapshotObservers() {
		o.RefreshFinished(b.id, res)
	}
}

func (b *Bridge) cancelLocked() error {
	if b.cancelJob == nil {
		return nil
	}
	cancel := b.cancelJob
	b.cancelJob = nil
	b.scheduled.Store(false)
	return cancel()
}

func (b *Bridge) onSessionStatus(st models.BridgeStatus) {
	b.setStatus(st)
}

func (b *Bridge) setStatus(st models.BridgeStatus) {
	b.stateMu.Lock()
	prev := b.status
	if st.ChangedAt.IsZero() {
		st.ChangedAt = b.now().UTC()
	}
	b.status = st
	b.stateMu.Unlock()

	if prev.Status == st.Status && prev.Detail == st.Detail && prev.Message == st.Message {
		return
	}
	b.log.Infow("bridge_status", "status", st.Status, "detail", st.Detail, "message", st.Message)
	for _, o := range b.snapshotObservers() {
		o.BridgeStatusChanged(b.id, st)
	}
}

func (b *Bridge) snapshotObservers() []Observer {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	out := make([]Observer, len(b.observers))
	copy(out, b.observers)
	return out
}
