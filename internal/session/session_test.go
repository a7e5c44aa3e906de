package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"oilfox_bridge/internal/cloudtest"
	"oilfox_bridge/internal/models"
	"oilfox_bridge/internal/transport"

	"github.com/golang-jwt/jwt/v5"
)

// statusRecorder collects observed transitions.
type statusRecorder struct {
	mu   sync.Mutex
	seen []models.BridgeStatus
}

func (r *statusRecorder) observe(s models.BridgeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *statusRecorder) statuses() []models.ThingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ThingStatus, 0, len(r.seen))
	for _, s := range r.seen {
		out = append(out, s.Status)
	}
	return out
}

func newTestManager(t *testing.T, cloud *cloudtest.Server, rec *statusRecorder) *Manager {
	t.Helper()
	var obs StatusObserver
	if rec != nil {
		obs = rec.observe
	}
	return NewManager(cloud.Host(), Credentials{Email: "u@x.com", Password: "p"}, transport.Options{Scheme: "http"}, obs, nil)
}

func TestManager_LoginThenFetchNeedsOneLogin(t *testing.T) {
	cloud := cloudtest.New(t)
	m := newTestManager(t, cloud, nil)
	ctx := context.Background()

	token, err := m.Login(ctx)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != cloudtest.DefaultToken {
		t.Fatalf("token: got %q", token)
	}
	if err := m.EnsureAuthenticated(ctx); err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}
	if _, err := m.Summary(ctx); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if got := cloud.Logins(); got != 1 {
		t.Fatalf("logins: got %d, want 1", got)
	}
	if got := cloud.LastToken(); got != cloudtest.DefaultToken {
		t.Fatalf("summary token: got %q", got)
	}
	if login := cloud.LastLogin(); login["email"] != "u@x.com" || login["password"] != "p" {
		t.Fatalf("login body: %v", login)
	}
	if !m.Status().Online() {
		t.Fatalf("status: %+v", m.Status())
	}
}

func TestManager_FailedFirstLoginStaysUnauthenticated(t *testing.T) {
	cloud := cloudtest.New(t)
	cloud.SetLogin(http.StatusUnauthorized, `{"error":"bad credentials"}`)
	rec := &statusRecorder{}
	m := newTestManager(t, cloud, rec)

	_, err := m.Login(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("want AuthError, got %v", err)
	}
	st := m.Status()
	if st.Status != models.StatusUnauthenticated {
		t.Fatalf("status: got %s, want UNAUTHENTICATED", st.Status)
	}
	if st.Detail != models.DetailCommunicationError || st.Message == "" {
		t.Fatalf("detail not recorded: %+v", st)
	}
	for _, s := range rec.statuses() {
		if s == models.StatusOffline {
			t.Fatalf("must never go Unauthenticated -> Offline, saw %v", rec.statuses())
		}
	}
}

func TestManager_FailedReloginGoesOffline(t *testing.T) {
	cloud := cloudtest.New(t)
	rec := &statusRecorder{}
	m := newTestManager(t, cloud, rec)
	ctx := context.Background()

	if _, err := m.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cloud.SetLogin(http.StatusInternalServerError, "down")
	m.MarkOffline(models.DetailCommunicationError, "lost")
	if _, err := m.Login(ctx); err == nil {
		t.Fatalf("expected login error")
	}
	if st := m.Status(); st.Status != models.StatusOffline || st.Detail != models.DetailCommunicationError {
		t.Fatalf("status: %+v", st)
	}

	cloud.SetLogin(http.StatusOK, `{"token":"T2"}`)
	if _, err := m.Login(ctx); err != nil {
		t.Fatalf("relogin: %v", err)
	}
	want := []models.ThingStatus{models.StatusOnline, models.StatusOffline, models.StatusOffline, models.StatusOnline}
	got := rec.statuses()
	if len(got) != len(want) {
		t.Fatalf("transitions: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions: got %v, want %v", got, want)
		}
	}
}

func TestManager_MalformedLoginBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing token", body: `{"session":"x"}`},
		{name: "token not a string", body: `{"token":42}`},
		{name: "array body", body: `[]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cloud := cloudtest.New(t)
			cloud.SetLogin(http.StatusOK, tc.body)
			m := newTestManager(t, cloud, nil)

			_, err := m.Login(context.Background())
			var aerr *AuthError
			if !errors.As(err, &aerr) {
				t.Fatalf("want AuthError, got %v", err)
			}
			if m.HasToken() {
				t.Fatalf("no token expected")
			}
		})
	}
}

func TestManager_SummaryUnauthorizedDropsToken(t *testing.T) {
	cloud := cloudtest.New(t)
	m := newTestManager(t, cloud, nil)
	ctx := context.Background()
	if _, err := m.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}

	cloud.SetSummary(http.StatusUnauthorized, "")
	_, err := m.Summary(ctx)
	if !transport.IsUnauthorized(err) {
		t.Fatalf("want unauthorized, got %v", err)
	}
	if m.HasToken() {
		t.Fatalf("token should be dropped after 401")
	}
	if got := cloud.Logins(); got != 1 {
		t.Fatalf("no internal re-login expected, got %d logins", got)
	}
}

func TestManager_SummaryWhileOfflineFailsFast(t *testing.T) {
	cloud := cloudtest.New(t)
	m := newTestManager(t, cloud, nil)

	_, err := m.Summary(context.Background())
	if !errors.Is(err, transport.ErrNotAuthenticated) {
		t.Fatalf("want ErrNotAuthenticated, got %v", err)
	}
	if cloud.Summaries() != 0 {
		t.Fatalf("no summary call expected")
	}
}

func TestManager_ExpiredJWTForcesLogin(t *testing.T) {
	cloud := cloudtest.New(t)
	expired := signedToken(t, time.Now().Add(-time.Minute))
	cloud.SetLogin(http.StatusOK, `{"token":"`+expired+`"}`)
	m := newTestManager(t, cloud, nil)
	ctx := context.Background()

	if _, err := m.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !m.TokenExpired() {
		t.Fatalf("token should be expired")
	}

	fresh := signedToken(t, time.Now().Add(time.Hour))
	cloud.SetLogin(http.StatusOK, `{"token":"`+fresh+`"}`)
	if err := m.EnsureAuthenticated(ctx); err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}
	if got := cloud.Logins(); got != 2 {
		t.Fatalf("logins: got %d, want 2", got)
	}
	if m.TokenExpired() {
		t.Fatalf("fresh token reported expired")
	}
}

func TestManager_OpaqueTokenNeverExpires(t *testing.T) {
	if exp := tokenExpiry("opaque-token"); !exp.IsZero() {
		t.Fatalf("opaque token expiry: got %v", exp)
	}
}

func TestManager_Matches(t *testing.T) {
	m := NewManager("api.example.com", Credentials{Email: "a", Password: "b"}, transport.Options{}, nil, nil)
	if !m.Matches("api.example.com", Credentials{Email: "a", Password: "b"}) {
		t.Fatalf("expected match")
	}
	if m.Matches("api.example.com", Credentials{Email: "a", Password: "c"}) {
		t.Fatalf("password change must not match")
	}
}

func TestDetailFor(t *testing.T) {
	if got := DetailFor(&transport.ConfigurationError{Field: "hostname"}); got != models.DetailConfigurationError {
		t.Errorf("config: got %s", got)
	}
	if got := DetailFor(&transport.CommunicationError{Endpoint: "/"}); got != models.DetailCommunicationError {
		t.Errorf("comm: got %s", got)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})
	s, err := tok.SignedString([]byte("cloud-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}
