package bridge

import (
	"net/url"
	"strings"
	"time"

	"oilfox_bridge/internal/transport"
)

// Config is the bridge configuration supplied by the host.
type Config struct {
	Hostname        string
	Email           string
	Password        string
	RefreshInterval time.Duration
	ReadTimeout     time.Duration
	ConnectTimeout  time.Duration
	// Scheme overrides "https"; only tests use it.
	Scheme string
}

// Validate reports the first unusable field as a *transport.ConfigurationError.
func (c Config) Validate() error {
	host := strings.TrimSpace(c.Hostname)
	switch {
	case host == "":
		return &transport.ConfigurationError{Field: "hostname", Message: "must not be empty"}
	case strings.ContainsAny(host, "/ ?#"):
		return &transport.ConfigurationError{Field: "hostname", Value: c.Hostname, Message: "must be a bare host name"}
	case c.Email == "":
		return &transport.ConfigurationError{Field: "email", Message: "must not be empty"}
	case c.Password == "":
		return &transport.ConfigurationError{Field: "password", Message: "must not be empty"}
	case c.RefreshInterval <= 0:
		return &transport.ConfigurationError{Field: "refresh_interval", Value: c.RefreshInterval.String(), Message: "must be positive"}
	}
	if _, err := url.Parse("https://" + host); err != nil {
		return &transport.ConfigurationError{Field: "hostname", Value: c.Hostname, Message: "not a valid host", Err: err}
	}
	return nil
}

func (c Config) transportOptions() transport.Options {
	return transport.Options{
		ReadTimeout:    c.ReadTimeout,
		ConnectTimeout: c.ConnectTimeout,
		Scheme:         c.Scheme,
	}
}
