package deribit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/internal/rest"
	"nakula/internal/tokencache"
	"nakula/pkg/core"
)

type stubRequester struct {
	req   *core.Request
	frame *core.Frame
	err   error
}

func (s *stubRequester) Request(ctx context.Context, req *core.Request, timeout time.Duration) (*core.Frame, error) {
	s.req = req
	return s.frame, s.err
}

func TestDecodeFrame(t *testing.T) {
	a := New()

	tests := []struct {
		name     string
		raw      string
		wantKind core.FrameKind
		wantID   string
		wantCode string
	}{
		{
			name:     "subscription notification",
			raw:      `{"jsonrpc":"2.0","method":"subscription","params":{"channel":"book.BTC-PERPETUAL.100ms","data":{}}}`,
			wantKind: core.FrameData,
		},
		{
			name:     "heartbeat demand",
			raw:      `{"jsonrpc":"2.0","method":"heartbeat","params":{"type":"test_request"}}`,
			wantKind: core.FramePing,
		},
		{
			name:     "plain heartbeat",
			raw:      `{"jsonrpc":"2.0","method":"heartbeat","params":{"type":"heartbeat"}}`,
			wantKind: core.FrameInfo,
		},
		{
			name:     "result ack",
			raw:      `{"jsonrpc":"2.0","id":8,"result":["book.BTC-PERPETUAL.100ms"]}`,
			wantKind: core.FrameAck,
			wantID:   "8",
		},
		{
			name:     "error ack",
			raw:      `{"jsonrpc":"2.0","id":9,"error":{"code":13009,"message":"unauthorized"}}`,
			wantKind: core.FrameAck,
			wantID:   "9",
			wantCode: "13009",
		},
		{
			name:     "uncorrelated chatter",
			raw:      `{"jsonrpc":"2.0","result":"ok"}`,
			wantKind: core.FrameInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := a.DecodeFrame([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, frame.Kind)
			assert.Equal(t, tt.wantID, frame.ID)
			if tt.wantCode != "" {
				var exErr *core.ExchangeError
				require.ErrorAs(t, frame.Err, &exErr)
				assert.Equal(t, tt.wantCode, exErr.Code)
			} else {
				assert.NoError(t, frame.Err)
			}
		})
	}
}

func TestEncodeRequestWrapsJSONRPC(t *testing.T) {
	a := New()

	data, err := a.EncodeRequest(&core.Request{Payload: map[string]any{
		"method": "public/test",
		"params": map[string]any{},
	}})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, sonic.Unmarshal(data, &out))
	assert.Equal(t, "2.0", out["jsonrpc"])
	assert.Equal(t, "public/test", out["method"])
}

func TestEncodeRequestInjectsToken(t *testing.T) {
	a := New()
	a.tokens = tokencache.New()
	a.tokens.Store(tokencache.Token{Value: "tok-123"})

	data, err := a.EncodeRequest(&core.Request{Payload: map[string]any{
		"method": "private/subscribe",
		"params": map[string]any{"channels": []string{"user.orders.any.raw"}},
	}})
	require.NoError(t, err)

	var out struct {
		Params map[string]any `json:"params"`
	}
	require.NoError(t, sonic.Unmarshal(data, &out))
	assert.Equal(t, "tok-123", out.Params["access_token"])
	assert.NotEmpty(t, out.Params["channels"])

	// Public methods never carry the token.
	data, err = a.EncodeRequest(&core.Request{Payload: map[string]any{
		"method": "public/subscribe",
		"params": map[string]any{"channels": []string{"book.BTC-PERPETUAL.100ms"}},
	}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "access_token")
}

func TestSessionInitNegotiatesHeartbeat(t *testing.T) {
	a := New()
	a.SetHeartbeatInterval(30 * time.Second)

	rt := &stubRequester{frame: &core.Frame{
		Kind: core.FrameAck,
		Raw:  []byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`),
	}}
	require.NoError(t, a.SessionInit(context.Background(), rt))

	require.NotNil(t, rt.req)
	assert.Equal(t, "public/set_heartbeat", rt.req.Payload["method"])
	params, ok := rt.req.Payload["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 30, params["interval"])
}

func TestSessionInitRejectsUnconfirmed(t *testing.T) {
	rt := &stubRequester{frame: &core.Frame{
		Kind: core.FrameAck,
		Raw:  []byte(`{"jsonrpc":"2.0","id":1,"result":"nope"}`),
	}}
	err := New().SessionInit(context.Background(), rt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set_heartbeat not confirmed")
}

func TestSetHeartbeatIntervalFloor(t *testing.T) {
	a := New()
	a.SetHeartbeatInterval(3 * time.Second)
	assert.Equal(t, minHeartbeatInterval, a.heartbeatInterval,
		"intervals below the venue minimum keep the default")
}

func TestBuildSubscribeSplitsNamespaces(t *testing.T) {
	a := New()

	reqs, err := a.BuildSubscribe([]string{
		"book.BTC-PERPETUAL.100ms",
		"user.orders.BTC-PERPETUAL.raw",
		"trades.BTC-PERPETUAL.100ms",
	})
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "public/subscribe", reqs[0].Payload["method"])
	assert.Equal(t, []string{"book.BTC-PERPETUAL.100ms", "trades.BTC-PERPETUAL.100ms"}, reqs[0].Topics)

	assert.Equal(t, "private/subscribe", reqs[1].Payload["method"])
	assert.Equal(t, []string{"user.orders.BTC-PERPETUAL.raw"}, reqs[1].Topics)

	unsub, err := a.BuildUnsubscribe([]string{"user.portfolio.btc"})
	require.NoError(t, err)
	require.Len(t, unsub, 1)
	assert.Equal(t, "private/unsubscribe", unsub[0].Payload["method"])
}

func TestAckErrorChecksConfirmedChannels(t *testing.T) {
	a := New()
	req := &core.Request{
		Topics:  []string{"book.BTC-PERPETUAL.100ms", "trades.BTC-PERPETUAL.100ms"},
		Payload: map[string]any{"method": "public/subscribe"},
	}

	full := &core.Frame{Raw: []byte(`{"id":1,"result":["book.BTC-PERPETUAL.100ms","trades.BTC-PERPETUAL.100ms"]}`)}
	assert.NoError(t, a.AckError(req, full))

	partial := &core.Frame{Raw: []byte(`{"id":1,"result":["book.BTC-PERPETUAL.100ms"]}`)}
	err := a.AckError(req, partial)
	require.Error(t, err)
	assert.True(t, core.IsSubscriptionError(err))
	assert.Contains(t, err.Error(), "trades.BTC-PERPETUAL.100ms")
}

func TestHeartbeatIsDemandDriven(t *testing.T) {
	a := New()
	assert.True(t, a.DemandDrivenHeartbeat())

	hb := a.Heartbeat()
	require.NotNil(t, hb)
	assert.Equal(t, "public/test", hb.Payload["method"])
}

func TestLoginFetchesAndCachesToken(t *testing.T) {
	var calls atomic.Int64
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotQuery = r.URL.Query()
		assert.Equal(t, "/public/auth", r.URL.Path)
		_ = sonic.ConfigDefault.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
				"expires_in":    900,
			},
		})
	}))
	defer srv.Close()

	a := New()
	auth := newTestAuth(t, srv.URL, a)

	require.NoError(t, auth.Login(context.Background(), nil))
	assert.Equal(t, "client_credentials", gotQuery.Get("grant_type"))
	assert.Equal(t, "key", gotQuery.Get("client_id"))
	assert.Equal(t, "at-1", a.tokens.Value())

	// A fresh token survives reconnects without another fetch.
	require.NoError(t, auth.Login(context.Background(), nil))
	assert.Equal(t, int64(1), calls.Load())
}

func TestLoginSurfacesAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = sonic.ConfigDefault.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 13004, "message": "invalid_credentials"},
		})
	}))
	defer srv.Close()

	auth := newTestAuth(t, srv.URL, New())
	err := auth.Login(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, core.IsAuthenticationError(err))
}

func newTestAuth(t *testing.T, baseURL string, a *Adapter) *Auth {
	t.Helper()

	client, err := rest.NewClient(rest.DefaultConfig(baseURL))
	require.NoError(t, err)

	cache := tokencache.New()
	a.tokens = cache

	return &Auth{
		creds:  &core.Credentials{APIKey: "key", SecretKey: "secret"},
		cache:  cache,
		client: client,
		logger: zerolog.Nop(),
	}
}
