package core

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// WSConfig holds the tunable timings of one websocket connection. The zero
// value is not usable; start from DefaultWSConfig and override via the
// With* builders.
type WSConfig struct {
	// URL overrides the adapter's default endpoint when non-empty.
	URL string `validate:"omitempty,url"`

	// HeartbeatInterval is the pause between heartbeat rounds.
	HeartbeatInterval time.Duration `validate:"gt=0"`

	// HeartbeatTimeout bounds a single heartbeat round trip.
	HeartbeatTimeout time.Duration `validate:"gt=0"`

	// ReconnectInterval is the initial reconnect backoff. The live value
	// decays back toward it after successful connections and is multiplied
	// after failed ones, capped at 30s.
	ReconnectInterval time.Duration `validate:"gt=0"`

	// RequestTimeout bounds one request/response exchange on the socket.
	RequestTimeout time.Duration `validate:"gt=0"`

	// DataTimeout forces a reconnect when no data message arrives for this
	// long while subscriptions exist. Zero disables the watchdog.
	DataTimeout time.Duration `validate:"min=0"`
}

// DefaultWSConfig returns a WSConfig with production defaults: 10s
// heartbeat interval, 60s heartbeat timeout, 1s initial reconnect
// interval, 10s request timeout, and the data watchdog disabled.
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
		ReconnectInterval: time.Second,
		RequestTimeout:    10 * time.Second,
		DataTimeout:       0,
	}
}

// Validate checks the configuration for invalid values.
func (c *WSConfig) Validate() error {
	return validate.Struct(c)
}

// WithURL overrides the connection endpoint.
func (c *WSConfig) WithURL(url string) *WSConfig {
	c.URL = url
	return c
}

// WithHeartbeatInterval overrides the pause between heartbeat rounds.
func (c *WSConfig) WithHeartbeatInterval(d time.Duration) *WSConfig {
	c.HeartbeatInterval = d
	return c
}

// WithHeartbeatTimeout overrides the heartbeat round-trip bound.
func (c *WSConfig) WithHeartbeatTimeout(d time.Duration) *WSConfig {
	c.HeartbeatTimeout = d
	return c
}

// WithReconnectInterval overrides the initial reconnect backoff.
func (c *WSConfig) WithReconnectInterval(d time.Duration) *WSConfig {
	c.ReconnectInterval = d
	return c
}

// WithRequestTimeout overrides the request/response bound.
func (c *WSConfig) WithRequestTimeout(d time.Duration) *WSConfig {
	c.RequestTimeout = d
	return c
}

// WithDataTimeout enables the data watchdog with the given idle bound.
func (c *WSConfig) WithDataTimeout(d time.Duration) *WSConfig {
	c.DataTimeout = d
	return c
}

// Credentials holds the API credentials for private endpoints. Passphrase
// and UID are only required by the venues that use them.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	UID        string
}

// HasKeys reports whether both the API key and secret are present.
func (c *Credentials) HasKeys() bool {
	return c != nil && c.APIKey != "" && c.SecretKey != ""
}
