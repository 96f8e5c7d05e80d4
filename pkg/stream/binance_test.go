package stream

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/core"
)

func TestBinanceTickers(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000123,` +
		`"s":"BTCUSDT","b":"50000.10","a":"50000.90","c":"50000.50","v":"1234.567"}}`)

	events, err := BinanceTickers(core.Meta{}, raw)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "BTCUSDT", events[0].Key)
	ticker := events[0].Value
	assert.Equal(t, "50000.10", ticker.Bid.String())
	assert.Equal(t, "50000.90", ticker.Ask.String())
	assert.Equal(t, "50000.50", ticker.Last.String())
	assert.Equal(t, "1234.567", ticker.Volume.String())
	assert.Equal(t, time.UnixMilli(1700000000123), ticker.At)
}

func TestBinanceTickersSkipsOtherStreams(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "trade stream", raw: `{"stream":"btcusdt@trade","data":{"s":"BTCUSDT"}}`},
		{name: "array frame", raw: `[{"e":"24hrTicker","s":"BTCUSDT"}]`},
		{name: "no envelope", raw: `{"e":"24hrTicker","s":"BTCUSDT"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := BinanceTickers(core.Meta{}, []byte(tt.raw))
			assert.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestBinanceTickersMalformed(t *testing.T) {
	_, err := BinanceTickers(core.Meta{}, []byte(`{"stream":"x@ticker","data":`))
	assert.Error(t, err)
}

func TestBinanceTrades(t *testing.T) {
	tests := []struct {
		name       string
		buyerMaker bool
		wantSide   string
	}{
		{name: "taker bought", buyerMaker: false, wantSide: SideBuy},
		{name: "taker sold", buyerMaker: true, wantSide: SideSell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"stream":"ethusdt@trade","data":{"e":"trade","s":"ETHUSDT",` +
				`"t":88123,"p":"3000.25","q":"0.5","T":1700000000456,"m":` +
				strconv.FormatBool(tt.buyerMaker) + `}}`)

			events, err := BinanceTrades(core.Meta{}, raw)
			require.NoError(t, err)
			require.Len(t, events, 1)

			trade := events[0].Value
			assert.Equal(t, "ETHUSDT", trade.Symbol)
			assert.Equal(t, int64(88123), trade.ID)
			assert.Equal(t, "3000.25", trade.Price.String())
			assert.Equal(t, "0.5", trade.Size.String())
			assert.Equal(t, tt.wantSide, trade.Side)
			assert.Equal(t, time.UnixMilli(1700000000456), trade.At)
		})
	}
}

func TestBinanceBookUpdates(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth@100ms","data":{"e":"depthUpdate","E":1700000000789,` +
		`"s":"BTCUSDT","U":100,"u":105,` +
		`"b":[["50000.00","1.5"],["49999.00","0"]],"a":[["50001.00","2.25"]]}}`)

	events, err := BinanceBookUpdates(core.Meta{}, raw)
	require.NoError(t, err)
	require.Len(t, events, 1)

	update := events[0].Value
	assert.Equal(t, "BTCUSDT", update.Symbol)
	assert.Equal(t, int64(100), update.FirstID)
	assert.Equal(t, int64(105), update.FinalID)
	require.Len(t, update.Bids, 2)
	assert.Equal(t, "50000.00", update.Bids[0].Price.String())
	assert.Equal(t, "1.5", update.Bids[0].Size.String())
	assert.True(t, update.Bids[1].Size.IsZero())
	require.Len(t, update.Asks, 1)
	assert.Equal(t, "2.25", update.Asks[0].Size.String())
}

func TestBinanceBookUpdatesShortLevel(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{"s":"BTCUSDT","b":[["50000.00"]],"a":[]}}`)

	_, err := BinanceBookUpdates(core.Meta{}, raw)
	assert.Error(t, err)
}
