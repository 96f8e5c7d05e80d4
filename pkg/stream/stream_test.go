package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/core"
	"nakula/pkg/exchange/binance"
	"nakula/pkg/wsclient"
)

func newTestClient(t *testing.T) *wsclient.Client {
	t.Helper()
	meta := core.Meta{Exchange: core.ExchangeBinance, Market: core.MarketSpot}
	client, err := wsclient.New(meta, binance.New(core.AccountNormal), core.DefaultWSConfig())
	require.NoError(t, err)
	return client
}

func tickerFrame(symbol, bid, ask string) []byte {
	return []byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000000,"s":"` +
		symbol + `","b":"` + bid + `","a":"` + ask + `","c":"` + bid + `","v":"12.5"}}`)
}

func TestStreamFanOut(t *testing.T) {
	client := newTestClient(t)
	s := New(client, BinanceTickers, Config{BufferSize: 4})
	s.Start()
	defer s.Stop()

	data, errs, err := s.Subscribe(context.Background(), "BTCUSDT", []string{"btcusdt@ticker"})
	require.NoError(t, err)

	s.onMessage(client.Meta(), tickerFrame("BTCUSDT", "50000.10", "50000.90"))

	select {
	case ticker := <-data:
		assert.Equal(t, "BTCUSDT", ticker.Symbol)
		assert.Equal(t, "50000.10", ticker.Bid.String())
		assert.Equal(t, "50000.90", ticker.Ask.String())
	default:
		t.Fatal("expected a decoded ticker")
	}
	assert.Empty(t, errs)
	assert.Zero(t, s.Dropped())
}

func TestStreamIgnoresOtherKeys(t *testing.T) {
	client := newTestClient(t)
	s := New(client, BinanceTickers, Config{BufferSize: 4})
	s.Start()
	defer s.Stop()

	data, _, err := s.Subscribe(context.Background(), "ETHUSDT", []string{"ethusdt@ticker"})
	require.NoError(t, err)

	s.onMessage(client.Meta(), tickerFrame("BTCUSDT", "50000", "50001"))

	assert.Empty(t, data)
	assert.Zero(t, s.Dropped())
}

func TestStreamDropsWhenFull(t *testing.T) {
	client := newTestClient(t)
	s := New(client, BinanceTickers, Config{BufferSize: 1})
	s.Start()
	defer s.Stop()

	_, _, err := s.Subscribe(context.Background(), "BTCUSDT", []string{"btcusdt@ticker"})
	require.NoError(t, err)

	s.onMessage(client.Meta(), tickerFrame("BTCUSDT", "1", "2"))
	s.onMessage(client.Meta(), tickerFrame("BTCUSDT", "3", "4"))

	assert.Equal(t, int64(1), s.Dropped())
}

func TestStreamReportsDecodeErrors(t *testing.T) {
	client := newTestClient(t)
	s := New(client, BinanceTickers, Config{BufferSize: 4})
	s.Start()
	defer s.Stop()

	_, errs, err := s.Subscribe(context.Background(), "BTCUSDT", []string{"btcusdt@ticker"})
	require.NoError(t, err)

	s.onMessage(client.Meta(), []byte(`{"stream":`))

	select {
	case decodeErr := <-errs:
		assert.Error(t, decodeErr)
	default:
		t.Fatal("expected a decode error")
	}
}

func TestStreamSubscribeDedup(t *testing.T) {
	client := newTestClient(t)
	s := New(client, BinanceTickers, DefaultConfig())
	s.Start()
	defer s.Stop()

	d1, _, err := s.Subscribe(context.Background(), "BTCUSDT", []string{"btcusdt@ticker"})
	require.NoError(t, err)
	d2, _, err := s.Subscribe(context.Background(), "BTCUSDT", []string{"btcusdt@ticker"})
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Equal(t, []string{"BTCUSDT"}, s.Keys())
	assert.Equal(t, []string{"btcusdt@ticker"}, client.Topics())
}

func TestStreamUnsubscribe(t *testing.T) {
	client := newTestClient(t)
	s := New(client, BinanceTickers, DefaultConfig())
	s.Start()
	defer s.Stop()

	data, _, err := s.Subscribe(context.Background(), "BTCUSDT", []string{"btcusdt@ticker"})
	require.NoError(t, err)
	require.NoError(t, s.Unsubscribe(context.Background(), "BTCUSDT"))

	_, open := <-data
	assert.False(t, open)
	assert.Empty(t, s.Keys())
	assert.Empty(t, client.Topics())

	assert.NoError(t, s.Unsubscribe(context.Background(), "BTCUSDT"))
}

func TestStreamStop(t *testing.T) {
	client := newTestClient(t)
	s := New(client, BinanceTickers, DefaultConfig())
	s.Start()

	data, _, err := s.Subscribe(context.Background(), "BTCUSDT", []string{"btcusdt@ticker"})
	require.NoError(t, err)

	s.Stop()
	s.Stop()

	_, open := <-data
	assert.False(t, open)

	_, _, err = s.Subscribe(context.Background(), "ETHUSDT", []string{"ethusdt@ticker"})
	assert.ErrorIs(t, err, core.ErrClientClosed)
}
