package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil, Options{})

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 1 * time.Second},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=20s", 1 * time.Second},
		{"interval_ms_too_large", "/ws?interval_ms=20000", 1 * time.Second},
		{"interval_invalid_string", "/ws?interval=bogus", 1 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 1 * time.Second},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

func TestNewHandler_StreamIntervalBounds(t *testing.T) {
	cases := []struct {
		in, want time.Duration
	}{
		{0, defaultInterval},
		{2 * time.Second, 2 * time.Second},
		{time.Minute, defaultInterval},
	}
	for _, tc := range cases {
		if got := NewHandler(&service.Service{}, nil, Options{StreamInterval: tc.in}).stream; got != tc.want {
			t.Fatalf("StreamInterval %v: got %v, want %v", tc.in, got, tc.want)
		}
	}
}

// --- websocket integration tests ---

func dialStream(t *testing.T, s *service.Service, query string) *websocket.Conn {
	t.Helper()
	r := gin.New()
	h := NewHandler(s, nil, Options{})
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocket_SnapshotStream_InitialAndPeriodic(t *testing.T) {
	liters := 250.0
	s := &service.Service{
		BridgeControl: &mockBridge{info: service.BridgeInfo{ID: "home", Status: models.BridgeStatus{Status: models.StatusOnline}}},
		Devices: &mockDevices{devices: []models.DeviceState{
			{DeviceID: "D1", Status: models.StatusOnline, Channels: map[string]float64{models.ChannelLiters: liters}},
		}},
	}
	conn := dialStream(t, s, "interval_ms=20")

	type envelope struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Type != "snapshot" || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var snap snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Bridge.ID != "home" || !snap.Bridge.Status.Online() {
		t.Fatalf("unexpected bridge: %+v", snap.Bridge)
	}
	if len(snap.Devices) != 1 || snap.Devices[0].Channels[models.ChannelLiters] != liters {
		t.Fatalf("unexpected devices: %+v", snap.Devices)
	}

	// Read a subsequent tick
	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	env = envelope{}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read second: %v", err)
	}
	if env.Type != "snapshot" {
		t.Fatalf("expected type=snapshot, got %+v", env)
	}
}

func TestWebSocket_InitialSnapshotError_Closes(t *testing.T) {
	s := &service.Service{
		BridgeControl: &mockBridge{},
		Devices:       &mockDevices{err: errors.New("boom")},
	}
	conn := dialStream(t, s, "")

	// The server should close immediately after failing the initial snapshot
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err == nil {
		t.Fatalf("expected read error (closed), got message: %s", string(raw))
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	s := &service.Service{
		Authorization: &mockAuth{parseID: 1},
		BridgeControl: &mockBridge{info: service.BridgeInfo{ID: "home"}},
		Devices:       &mockDevices{},
	}
	srv := httptest.NewServer(newTestRouter(s))
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}

	_, resp, err := dialer.Dial(u.String(), nil)
	if err == nil {
		t.Fatalf("expected handshake to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	u.RawQuery = "access_token=stream-token"
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env wsEnvelope
	if err := conn.ReadJSON(&env); err != nil || env.Type != "snapshot" {
		t.Fatalf("read snapshot: %+v %v", env, err)
	}
}

func TestWebSocket_InvalidQueryToken(t *testing.T) {
	s := &service.Service{Authorization: &mockAuth{parseErr: errors.New("expired")}}
	r := newTestRouter(s)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?access_token=old", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
}
