package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWSConfig(t *testing.T) {
	cfg := DefaultWSConfig()

	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Duration(0), cfg.DataTimeout)
	assert.Empty(t, cfg.URL)

	require.NoError(t, cfg.Validate())
}

func TestWSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WSConfig)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *WSConfig) {},
			wantErr: false,
		},
		{
			name:    "zero heartbeat interval",
			mutate:  func(c *WSConfig) { c.HeartbeatInterval = 0 },
			wantErr: true,
		},
		{
			name:    "negative request timeout",
			mutate:  func(c *WSConfig) { c.RequestTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero reconnect interval",
			mutate:  func(c *WSConfig) { c.ReconnectInterval = 0 },
			wantErr: true,
		},
		{
			name:    "data timeout disabled",
			mutate:  func(c *WSConfig) { c.DataTimeout = 0 },
			wantErr: false,
		},
		{
			name:    "negative data timeout",
			mutate:  func(c *WSConfig) { c.DataTimeout = -time.Minute },
			wantErr: true,
		},
		{
			name:    "valid url override",
			mutate:  func(c *WSConfig) { c.URL = "wss://example.com/ws" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWSConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWSConfig_Builders(t *testing.T) {
	cfg := DefaultWSConfig().
		WithURL("wss://example.com/ws").
		WithHeartbeatInterval(5 * time.Second).
		WithHeartbeatTimeout(30 * time.Second).
		WithReconnectInterval(2 * time.Second).
		WithRequestTimeout(3 * time.Second).
		WithDataTimeout(time.Minute)

	assert.Equal(t, "wss://example.com/ws", cfg.URL)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.DataTimeout)
	require.NoError(t, cfg.Validate())
}

func TestCredentials_HasKeys(t *testing.T) {
	tests := []struct {
		name     string
		creds    *Credentials
		expected bool
	}{
		{
			name:     "nil credentials",
			creds:    nil,
			expected: false,
		},
		{
			name:     "empty credentials",
			creds:    &Credentials{},
			expected: false,
		},
		{
			name:     "key only",
			creds:    &Credentials{APIKey: "key"},
			expected: false,
		},
		{
			name:     "secret only",
			creds:    &Credentials{SecretKey: "secret"},
			expected: false,
		},
		{
			name:     "key and secret",
			creds:    &Credentials{APIKey: "key", SecretKey: "secret"},
			expected: true,
		},
		{
			name: "full credentials",
			creds: &Credentials{
				APIKey:     "key",
				SecretKey:  "secret",
				Passphrase: "phrase",
				UID:        "42",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.creds.HasKeys())
		})
	}
}
