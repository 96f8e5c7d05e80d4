package rest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("https://api.example.com")

	assert.Equal(t, "https://api.example.com", config.BaseURL)
	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.Equal(t, 3, config.MaxRetries)
}

func TestNewClientInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "missing base url", config: &Config{Timeout: time.Second}},
		{name: "not a url", config: &Config{BaseURL: "not a url", Timeout: time.Second}},
		{name: "zero timeout", config: &Config{BaseURL: "https://api.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config)
			assert.Error(t, err)
		})
	}
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/token", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("key"))
		assert.Equal(t, "static", r.Header.Get("X-Static"))
		assert.Equal(t, "per-request", r.Header.Get("X-Request"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-1","expires_in":7200}`))
	}))
	defer srv.Close()

	config := DefaultConfig(srv.URL)
	config.Headers = map[string]string{"X-Static": "static"}
	client, err := NewClient(config)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	resp, err := client.Get(context.Background(), "/v1/token",
		WithQueryParam("key", "abc"),
		WithHeader("X-Request", "per-request"),
		WithResult(&out),
	)
	require.NoError(t, err)

	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "tok-1", out.Token)
	assert.Equal(t, 7200, out.ExpiresIn)
}

func TestClientPostBody(t *testing.T) {
	type payload struct {
		Grant string `json:"grant_type"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var in payload
		require.NoError(t, sonic.Unmarshal(body, &in))
		assert.Equal(t, "client_credentials", in.Grant)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, err := NewClient(DefaultConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	resp, err := client.Post(context.Background(), "/auth", payload{Grant: "client_credentials"})
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
}

func TestClientClosed(t *testing.T) {
	client, err := NewClient(DefaultConfig("https://api.example.com"))
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.Get(context.Background(), "/v1/token")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = client.Post(context.Background(), "/v1/token", nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = client.Put(context.Background(), "/v1/token", nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = client.Delete(context.Background(), "/v1/token")
	assert.ErrorIs(t, err, ErrClosed)
}
