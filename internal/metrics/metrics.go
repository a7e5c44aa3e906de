// Package metrics exports bridge and tank readings to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"oilfox_bridge/internal/bridge"
	"oilfox_bridge/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the collectors of one process. It is both a bridge
// observer and a device listener.
type Metrics struct {
	registry *prometheus.Registry

	fillingPercentage *prometheus.GaugeVec
	liters            *prometheus.GaugeVec
	value             *prometheus.GaugeVec
	oilHeight         *prometheus.GaugeVec
	battery           *prometheus.GaugeVec
	tankVolume        *prometheus.GaugeVec
	bridgeOnline      *prometheus.GaugeVec
	logins            *prometheus.CounterVec
	refreshes         *prometheus.CounterVec
	lastRefresh       *prometheus.GaugeVec

	mu    sync.Mutex
	known map[string]map[string]struct{} // bridge -> device ids with series
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	device := []string{"bridge", "device", "label"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fillingPercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_filling_percentage",
			Help: "Tank filling level in percent",
		}, device),
		liters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_liters",
			Help: "Oil volume left in the tank in liters",
		}, device),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_value",
			Help: "Raw sensor reading",
		}, device),
		oilHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_current_oil_height_cm",
			Help: "Current oil height in centimeters",
		}, device),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_battery_level_percent",
			Help: "Sensor battery level in percent",
		}, device),
		tankVolume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_tank_volume_liters",
			Help: "Configured tank volume in liters",
		}, device),
		bridgeOnline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_bridge_online",
			Help: "1 if the bridge is online, 0 otherwise",
		}, []string{"bridge"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oilfox_logins_total",
			Help: "Login attempts against the cloud by result",
		}, []string{"bridge", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oilfox_refreshes_total",
			Help: "Refresh cycles by result",
		}, []string{"bridge", "result"}),
		lastRefresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oilfox_last_refresh_timestamp_seconds",
			Help: "Unix timestamp of the last successful refresh",
		}, []string{"bridge"}),
		known: make(map[string]map[string]struct{}),
	}
	m.registry.MustRegister(
		m.fillingPercentage, m.liters, m.value, m.oilHeight, m.battery, m.tankVolume,
		m.bridgeOnline, m.logins, m.refreshes, m.lastRefresh,
	)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BridgeStatusChanged implements bridge.Observer.
func (m *Metrics) BridgeStatusChanged(bridgeID string, st models.BridgeStatus) {
	v := 0.0
	if st.Online() {
		v = 1
	}
	m.bridgeOnline.WithLabelValues(bridgeID).Set(v)
}

// LoginAttempted implements bridge.Observer.
func (m *Metrics) LoginAttempted(bridgeID string, err error) {
	m.logins.WithLabelValues(bridgeID, result(err)).Inc()
}

// RefreshFinished implements bridge.Observer.
func (m *Metrics) RefreshFinished(bridgeID string, res bridge.RefreshResult) {
	m.refreshes.WithLabelValues(bridgeID, result(res.Err)).Inc()
	if res.Err == nil {
		m.lastRefresh.WithLabelValues(bridgeID).Set(float64(res.At.Unix()))
	}
}

// OnDeviceAdded implements listener.Listener.
func (m *Metrics) OnDeviceAdded(string, models.DeviceSummary) error { return nil }

// OnDevicesRefreshed implements listener.Listener. Series of devices no
// longer reported are removed; unknown readings leave no series.
func (m *Metrics) OnDevicesRefreshed(bridgeID string, devices []models.DeviceSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		current[d.ID] = struct{}{}
		m.deleteDevice(bridgeID, d.ID)

		labels := prometheus.Labels{"bridge": bridgeID, "device": d.ID, "label": d.Label()}
		if d.TankVolume != nil {
			m.tankVolume.With(labels).Set(float64(*d.TankVolume))
		}
		if me := d.Metering; me != nil {
			setIf(m.fillingPercentage, labels, me.FillingPercentage)
			setIf(m.liters, labels, me.Liters)
			setIf(m.value, labels, me.Value)
			setIf(m.oilHeight, labels, me.CurrentOilHeight)
			if me.BatteryLevel != nil {
				m.battery.With(labels).Set(float64(*me.BatteryLevel))
			}
		}
	}
	for id := range m.known[bridgeID] {
		if _, ok := current[id]; !ok {
			m.deleteDevice(bridgeID, id)
		}
	}
	m.known[bridgeID] = current
	return nil
}

func (m *Metrics) deleteDevice(bridgeID, deviceID string) {
	match := prometheus.Labels{"bridge": bridgeID, "device": deviceID}
	for _, g := range []*prometheus.GaugeVec{m.fillingPercentage, m.liters, m.value, m.oilHeight, m.battery, m.tankVolume} {
		g.DeletePartialMatch(match)
	}
}

func setIf(g *prometheus.GaugeVec, labels prometheus.Labels, v *float64) {
	if v != nil {
		g.With(labels).Set(*v)
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
