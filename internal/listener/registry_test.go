package listener

import (
	"errors"
	"sync"
	"testing"

	"oilfox_bridge/internal/models"
)

// recordingListener records calls; failAdded/panicAdded inject failures.
type recordingListener struct {
	mu         sync.Mutex
	added      []string
	refreshed  [][]models.DeviceSummary
	failAdded  bool
	panicAdded bool
	onAdded    func()
}

func (l *recordingListener) OnDeviceAdded(bridgeID string, d models.DeviceSummary) error {
	if l.onAdded != nil {
		l.onAdded()
	}
	if l.panicAdded {
		panic("listener exploded")
	}
	l.mu.Lock()
	l.added = append(l.added, d.ID)
	l.mu.Unlock()
	if l.failAdded {
		return errors.New("cannot add")
	}
	return nil
}

func (l *recordingListener) OnDevicesRefreshed(bridgeID string, devices []models.DeviceSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshed = append(l.refreshed, devices)
	return nil
}

func TestRegistry_RegisterIsASet(t *testing.T) {
	r := NewRegistry(nil)
	l := &recordingListener{}

	if ok, err := r.Register(l); !ok || err != nil {
		t.Fatalf("first Register: ok=%v err=%v", ok, err)
	}
	if ok, _ := r.Register(l); ok {
		t.Fatalf("duplicate Register must return false")
	}
	if r.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", r.Len())
	}
	if _, err := r.Register(nil); !errors.Is(err, ErrNilListener) {
		t.Fatalf("nil listener: got %v", err)
	}
	if !r.Unregister(l) {
		t.Fatalf("Unregister must report removal")
	}
	if r.Unregister(l) {
		t.Fatalf("second Unregister must return false")
	}
}

func TestRegistry_FailingListenerIsIsolated(t *testing.T) {
	cases := []struct {
		name  string
		first *recordingListener
	}{
		{name: "returned error", first: &recordingListener{failAdded: true}},
		{name: "panic", first: &recordingListener{panicAdded: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry(nil)
			second := &recordingListener{}
			_, _ = r.Register(tc.first)
			_, _ = r.Register(second)

			device := models.DeviceSummary{ID: "D1"}
			failures := r.NotifyAdded("bridge", device)
			if len(failures) != 1 {
				t.Fatalf("failures: got %d, want 1", len(failures))
			}
			var oerr *ObserverError
			if !errors.As(failures[0], &oerr) || oerr.Event != EventAdded {
				t.Fatalf("want ObserverError for added, got %v", failures[0])
			}
			if len(second.added) != 1 || second.added[0] != "D1" {
				t.Fatalf("second listener missed added: %v", second.added)
			}

			if failures := r.NotifyRefreshed("bridge", []models.DeviceSummary{device}); len(failures) != 0 {
				t.Fatalf("refreshed failures: %v", failures)
			}
			if len(second.refreshed) != 1 || len(tc.first.refreshed) != 1 {
				t.Fatalf("refreshed not delivered to both listeners")
			}
		})
	}
}

func TestRegistry_MutationDuringNotifyAffectsLaterNotifications(t *testing.T) {
	r := NewRegistry(nil)
	late := &recordingListener{}
	var first *recordingListener
	first = &recordingListener{onAdded: func() {
		_, _ = r.Register(late)
		r.Unregister(first)
	}}
	_, _ = r.Register(first)

	r.NotifyAdded("bridge", models.DeviceSummary{ID: "A"})
	if len(late.added) != 0 {
		t.Fatalf("listener registered mid-notification must not see the current event")
	}

	r.NotifyAdded("bridge", models.DeviceSummary{ID: "B"})
	if len(late.added) != 1 || late.added[0] != "B" {
		t.Fatalf("late listener: got %v, want [B]", late.added)
	}
	if len(first.added) != 1 {
		t.Fatalf("unregistered listener kept receiving: %v", first.added)
	}
}

func TestRegistry_ConcurrentRegisterAndNotify(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		l := &recordingListener{}
		go func() {
			defer wg.Done()
			_, _ = r.Register(l)
			r.Unregister(l)
		}()
		go func() {
			defer wg.Done()
			r.NotifyRefreshed("bridge", nil)
		}()
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", r.Len())
	}
}
