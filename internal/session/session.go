package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/transport"

	"github.com/golang-jwt/jwt/v5"
)

// Cloud API endpoints used by the bridge.
const (
	LoginPath   = "/v2/backoffice/session"
	SummaryPath = "/v2/user/summary"
)

// ErrMissingToken is returned when a login response carries no token.
var ErrMissingToken = errors.New("login response has no token")

// AuthError means the cloud refused the credentials or the token.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication error: %s: %v", e.Reason, e.Err)
	}
	return "authentication error: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Credentials are the account login of the cloud service.
type Credentials struct {
	Email    string
	Password string
}

// StatusObserver is called after every status change, outside any lock.
type StatusObserver func(models.BridgeStatus)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Manager owns the token and status of one cloud session.
//
// Login and Summary are serialized on opMu, so a fetch never overlaps a
// login. Status transitions never go Unauthenticated -> Offline: a failure
// before the first successful login keeps the session Unauthenticated and
// only records the detail.
type Manager struct {
	opMu sync.Mutex

	mu     sync.RWMutex
	creds  Credentials
	token  string
	expiry time.Time // zero when the token carries no exp claim
	status models.BridgeStatus

	client  *transport.Client
	observe StatusObserver
	log     *logger.Logger
	now     func() time.Time
}

// NewManager creates an unauthenticated session for host.
func NewManager(host string, creds Credentials, opts transport.Options, observe StatusObserver, log *logger.Logger) *Manager {
	m := &Manager{
		creds:   creds,
		observe: observe,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
	m.status = models.BridgeStatus{
		Status:    models.StatusUnauthenticated,
		Detail:    models.DetailNone,
		ChangedAt: m.now().UTC(),
	}
	m.client = transport.NewClient(host, m, opts, m.log)
	return m
}

// Resume seeds a replacement session with the status of the session it
// replaces, so an account change never falls back to Unauthenticated once
// the bridge has been online. Observers are not notified.
func (m *Manager) Resume(st models.BridgeStatus) {
	if st.Status == models.StatusUnauthenticated {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = st
}

// Matches reports whether the session was built for the same host and account.
func (m *Manager) Matches(host string, creds Credentials) bool {
	return m.client.Host() == host && m.creds == creds
}

// AuthToken implements transport.TokenSource.
func (m *Manager) AuthToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "" && m.status.Status == models.StatusOnline
}

// Status returns the current status.
func (m *Manager) Status() models.BridgeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// HasToken reports whether a token is held.
func (m *Manager) HasToken() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}

// TokenExpired reports whether the held token carries an exp claim that has passed.
func (m *Manager) TokenExpired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && !m.expiry.IsZero() && !m.now().Before(m.expiry)
}

// Login posts the credentials and stores the returned token. It never retries.
func (m *Manager) Login(ctx context.Context) (string, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.login(ctx)
}

// EnsureAuthenticated logs in unless the session is online with a live token.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if _, ok := m.AuthToken(); ok && !m.TokenExpired() {
		return nil
	}
	_, err := m.login(ctx)
	return err
}

func (m *Manager) login(ctx context.Context) (string, error) {
	raw, err := m.client.Request(ctx, LoginPath, loginRequest{Email: m.creds.Email, Password: m.creds.Password})
	if err != nil {
		if transport.IsUnauthorized(err) {
			err = &AuthError{Reason: "credentials rejected", Err: err}
		}
		m.log.Errorw("session_login_failed", "err", err)
		m.MarkOffline(DetailFor(err), err.Error())
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Token == "" {
		if err == nil {
			err = ErrMissingToken
		}
		aerr := &AuthError{Reason: "malformed login response", Err: err}
		m.log.Errorw("session_login_failed", "err", aerr)
		m.MarkOffline(models.DetailCommunicationError, aerr.Error())
		return "", aerr
	}

	m.mu.Lock()
	m.token = resp.Token
	m.expiry = tokenExpiry(resp.Token)
	m.mu.Unlock()

	m.log.Infow("session_login_ok", "host", m.client.Host())
	m.transition(models.StatusOnline, models.DetailNone, "")
	return resp.Token, nil
}

// Summary fetches the account summary with the current token. A 401 drops
// the token; the caller decides the resulting status.
func (m *Manager) Summary(ctx context.Context) (json.RawMessage, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	raw, err := m.client.Get(ctx, SummaryPath)
	if err != nil {
		if transport.IsUnauthorized(err) {
			m.Invalidate()
		}
		return nil, err
	}
	return raw, nil
}

// Invalidate drops the token. The status is left to the caller.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiry = time.Time{}
	m.mu.Unlock()
}

// MarkOnline records a successful exchange with the cloud.
func (m *Manager) MarkOnline() {
	m.transition(models.StatusOnline, models.DetailNone, "")
}

// MarkOffline records a failure with the given detail.
func (m *Manager) MarkOffline(detail models.StatusDetail, message string) {
	m.transition(models.StatusOffline, detail, message)
}

func (m *Manager) transition(to models.ThingStatus, detail models.StatusDetail, message string) {
	m.mu.Lock()
	prev := m.status
	if to == models.StatusOffline && prev.Status == models.StatusUnauthenticated {
		to = models.StatusUnauthenticated
	}
	next := models.BridgeStatus{Status: to, Detail: detail, Message: message, ChangedAt: prev.ChangedAt}
	changed := prev.Status != next.Status || prev.Detail != next.Detail || prev.Message != next.Message
	if changed {
		next.ChangedAt = m.now().UTC()
	}
	m.status = next
	m.mu.Unlock()

	if changed && m.observe != nil {
		m.observe(next)
	}
}

// DetailFor classifies an error into a status detail.
func DetailFor(err error) models.StatusDetail {
	if transport.IsConfigurationError(err) {
		return models.DetailConfigurationError
	}
	return models.DetailCommunicationError
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Opaque
// tokens have no known expiry.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
