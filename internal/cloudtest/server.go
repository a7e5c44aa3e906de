// Package cloudtest provides an in-process fake of the OilFox cloud API for tests.
package cloudtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Server is a fake cloud. Responses can be changed between calls.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	loginStatus   int
	loginBody     string
	summaryStatus int
	summaryBody   string
	logins        int
	summaries     int
	lastLogin     map[string]string
	lastToken     string
}

// Default payloads used by New.
const (
	DefaultToken   = "T1"
	DefaultSummary = `{"devices":[{"id":"D1","name":"Tank","hwid":"HW1","tankHeight":200,"tankVolume":1000,"tankOffset":0,` +
		`"metering":{"value":50.0,"fillingPercentage":25.0,"liters":250.0,"currentOilHeight":50,"battery":90}}]}`
)

// New starts a fake cloud that accepts any login and returns DefaultSummary.
// It is closed via t.Cleanup.
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		loginStatus:   http.StatusOK,
		loginBody:     `{"token":"` + DefaultToken + `"}`,
		summaryStatus: http.StatusOK,
		summaryBody:   DefaultSummary,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/backoffice/session", s.handleLogin)
	mux.HandleFunc("/v2/user/summary", s.handleSummary)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Host returns host:port of the fake, suitable for the bridge hostname.
func (s *Server) Host() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// SetLogin sets the next login responses.
func (s *Server) SetLogin(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginStatus, s.loginBody = status, body
}

// SetSummary sets the next summary responses.
func (s *Server) SetSummary(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaryStatus, s.summaryBody = status, body
}

// Logins returns the number of login calls received.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Summaries returns the number of summary calls received.
func (s *Server) Summaries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries
}

// LastLogin returns the last decoded login body.
func (s *Server) LastLogin() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLogin
}

// LastToken returns the token header of the last summary call.
func (s *Server) LastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastToken
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.logins++
	s.lastLogin = body
	status, resp := s.loginStatus, s.loginBody
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.summaries++
	s.lastToken = r.Header.Get("X-Auth-Token")
	status, resp := s.summaryStatus, s.summaryBody
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp)
}
