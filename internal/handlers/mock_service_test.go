package handlers

import (
	"context"
	"net/http"
	"time"

	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockBridge struct {
	info        service.BridgeInfo
	refreshErr  error
	commandErr  error
	refreshes   int
	lastCommand service.Command
}

func (m *mockBridge) Info(context.Context) service.BridgeInfo { return m.info }
func (m *mockBridge) Refresh(context.Context) error {
	m.refreshes++
	return m.refreshErr
}
func (m *mockBridge) Command(_ context.Context, c service.Command) error {
	m.lastCommand = c
	return m.commandErr
}

type mockDevices struct {
	devices []models.DeviceState
	err     error
}

func (m *mockDevices) ListDevices(context.Context) ([]models.DeviceState, error) {
	return m.devices, m.err
}
func (m *mockDevices) GetDevice(_ context.Context, id string) (models.DeviceState, error) {
	if m.err != nil {
		return models.DeviceState{}, m.err
	}
	for _, d := range m.devices {
		if d.DeviceID == id {
			return d, nil
		}
	}
	return models.DeviceState{}, service.ErrDeviceNotFound
}

type mockDiscovery struct {
	results    []models.DiscoveryResult
	scanErr    error
	approveErr error
	scans      int
	approved   []string
}

func (m *mockDiscovery) Inbox(context.Context) ([]models.DiscoveryResult, error) {
	return m.results, nil
}
func (m *mockDiscovery) Scan(context.Context) error {
	m.scans++
	return m.scanErr
}
func (m *mockDiscovery) Approve(_ context.Context, uid string) (models.DeviceState, error) {
	m.approved = append(m.approved, uid)
	if m.approveErr != nil {
		return models.DeviceState{}, m.approveErr
	}
	return models.DeviceState{DeviceID: "D1", Status: models.StatusOnline}, nil
}

type mockEventLog struct {
	resp     []models.BridgeEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.BridgeEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, Options{})
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
