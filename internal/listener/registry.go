package listener

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/models"
)

// Listener observes devices seen on a bridge. Implementations must be
// comparable (typically pointers); identity is by reference.
type Listener interface {
	// OnDeviceAdded is called once for every device id not seen before.
	OnDeviceAdded(bridgeID string, device models.DeviceSummary) error
	// OnDevicesRefreshed is called after every successful fetch with all devices.
	OnDevicesRefreshed(bridgeID string, devices []models.DeviceSummary) error
}

// ErrNilListener is returned by Register for a nil listener.
var ErrNilListener = errors.New("listener must not be nil")

// Notification kinds carried by ObserverError.
const (
	EventAdded     = "added"
	EventRefreshed = "refreshed"
)

// ObserverError wraps a failure (returned error or panic) of one listener.
type ObserverError struct {
	Event    string
	Listener string
	Err      error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("listener %s failed on %s: %v", e.Listener, e.Event, e.Err)
}

func (e *ObserverError) Unwrap() error { return e.Err }

// Registry is a copy-on-write listener set. Notifications iterate over the
// snapshot taken when they start; Register/Unregister during a notification
// only affect later notifications.
type Registry struct {
	mu        sync.Mutex // serializes writers
	listeners atomic.Pointer[[]Listener]
	log       *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	r := &Registry{log: logger.OrNop(log)}
	empty := []Listener{}
	r.listeners.Store(&empty)
	return r
}

// Register adds l. It returns false if l was already registered.
func (r *Registry) Register(l Listener) (bool, error) {
	if l == nil {
		return false, ErrNilListener
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.listeners.Load()
	for _, existing := range cur {
		if existing == l {
			return false, nil
		}
	}
	next := make([]Listener, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, l)
	r.listeners.Store(&next)
	return true, nil
}

// Unregister removes l. It returns false if l was not registered.
func (r *Registry) Unregister(l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.listeners.Load()
	for i, existing := range cur {
		if existing != l {
			continue
		}
		next := make([]Listener, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		r.listeners.Store(&next)
		return true
	}
	return false
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	return len(*r.listeners.Load())
}

// NotifyAdded calls OnDeviceAdded on every listener. Failures are logged and
// returned for inspection; they never stop the remaining listeners.
func (r *Registry) NotifyAdded(bridgeID string, device models.DeviceSummary) []error {
	return r.each(EventAdded, func(l Listener) error {
		return l.OnDeviceAdded(bridgeID, device)
	})
}

// NotifyRefreshed calls OnDevicesRefreshed on every listener with the same slice.
// Listeners must not modify it.
func (r *Registry) NotifyRefreshed(bridgeID string, devices []models.DeviceSummary) []error {
	return r.each(EventRefreshed, func(l Listener) error {
		return l.OnDevicesRefreshed(bridgeID, devices)
	})
}

func (r *Registry) each(event string, call func(Listener) error) []error {
	var failures []error
	for _, l := range *r.listeners.Load() {
		if err := safeCall(event, l, call); err != nil {
			r.log.Errorw("listener_failed", "event", event, "listener", err.Listener, "err", err.Err)
			failures = append(failures, err)
		}
	}
	return failures
}

// safeCall turns a returned error or a panic into an ObserverError.
func safeCall(event string, l Listener, call func(Listener) error) (oerr *ObserverError) {
	name := fmt.Sprintf("%T", l)
	defer func() {
		if p := recover(); p != nil {
			oerr = &ObserverError{Event: event, Listener: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if err := call(l); err != nil {
		return &ObserverError{Event: event, Listener: name, Err: err}
	}
	return nil
}
