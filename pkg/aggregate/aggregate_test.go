package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/core"
	"nakula/pkg/stream"
)

func makeTicker(symbol, bid, ask string) *stream.Ticker {
	ticker := &stream.Ticker{Symbol: symbol, At: time.Now()}
	_, _, _ = ticker.Bid.SetString(bid)
	_, _, _ = ticker.Ask.SetString(ask)
	return ticker
}

func requireDecimal(t *testing.T, want string, got *apd.Decimal) {
	t.Helper()
	var expected apd.Decimal
	_, _, err := expected.SetString(want)
	require.NoError(t, err)
	assert.Zerof(t, got.Cmp(&expected), "want %s, got %s", want, got.String())
}

func TestBookBest(t *testing.T) {
	book := NewBook("BTCUSDT", 0)
	book.Update(core.ExchangeBinance, makeTicker("BTCUSDT", "50000", "50010"))
	book.Update(core.ExchangeBybit, makeTicker("BTCUSDT", "50005", "50012"))
	book.Update(core.ExchangeOKX, makeTicker("BTCUSDT", "49990", "50008"))

	best, err := book.Best()
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", best.Symbol)
	requireDecimal(t, "50005", &best.Bid)
	assert.Equal(t, core.ExchangeBybit, best.BidExchange)
	requireDecimal(t, "50008", &best.Ask)
	assert.Equal(t, core.ExchangeOKX, best.AskExchange)
	requireDecimal(t, "3", &best.Spread)

	var expected apd.Decimal
	_, _, _ = expected.SetString("300")
	var bid apd.Decimal
	_, _, _ = bid.SetString("50005")
	_, err = decCtx.Quo(&expected, &expected, &bid)
	require.NoError(t, err)
	assert.Zero(t, best.SpreadPercent.Cmp(&expected))
}

func TestBookBestSingleVenue(t *testing.T) {
	book := NewBook("ETHUSDT", 0)
	book.Update(core.ExchangeGate, makeTicker("ETHUSDT", "3000.5", "3001.5"))

	best, err := book.Best()
	require.NoError(t, err)

	assert.Equal(t, core.ExchangeGate, best.BidExchange)
	assert.Equal(t, core.ExchangeGate, best.AskExchange)
	requireDecimal(t, "1", &best.Spread)
}

func TestBookBestNoQuotes(t *testing.T) {
	book := NewBook("BTCUSDT", 0)

	_, err := book.Best()
	assert.Error(t, err)
}

func TestBookBestSkipsStale(t *testing.T) {
	book := NewBook("BTCUSDT", 50*time.Millisecond)
	book.Update(core.ExchangeBinance, makeTicker("BTCUSDT", "50000", "50010"))

	time.Sleep(80 * time.Millisecond)
	book.Update(core.ExchangeBybit, makeTicker("BTCUSDT", "49000", "49010"))

	best, err := book.Best()
	require.NoError(t, err)

	assert.Equal(t, core.ExchangeBybit, best.BidExchange)
	requireDecimal(t, "49000", &best.Bid)
}

func TestBookBestAllStale(t *testing.T) {
	book := NewBook("BTCUSDT", 10*time.Millisecond)
	book.Update(core.ExchangeBinance, makeTicker("BTCUSDT", "50000", "50010"))

	time.Sleep(30 * time.Millisecond)

	_, err := book.Best()
	assert.Error(t, err)
}

func TestBookQuotesSorted(t *testing.T) {
	book := NewBook("BTCUSDT", 0)
	book.Update(core.ExchangeOKX, makeTicker("BTCUSDT", "1", "2"))
	book.Update(core.ExchangeBinance, makeTicker("BTCUSDT", "1", "2"))

	quotes := book.Quotes()
	require.Len(t, quotes, 2)
	assert.Equal(t, core.ExchangeBinance, quotes[0].Exchange)
	assert.Equal(t, core.ExchangeOKX, quotes[1].Exchange)
}

func TestBookDrop(t *testing.T) {
	book := NewBook("BTCUSDT", 0)
	book.Update(core.ExchangeBinance, makeTicker("BTCUSDT", "50000", "50010"))
	book.Drop(core.ExchangeBinance)

	_, err := book.Best()
	assert.Error(t, err)
}

func TestBookFeed(t *testing.T) {
	book := NewBook("BTCUSDT", 0)
	ch := make(chan *stream.Ticker, 1)

	task := book.Feed(core.ExchangeBinance, ch)
	assert.Equal(t, "feed-binance-BTCUSDT", task.Name)

	done := make(chan error, 1)
	go func() { done <- task.Run(context.Background()) }()

	ch <- makeTicker("BTCUSDT", "50000", "50010")
	require.Eventually(t, func() bool {
		_, err := book.Best()
		return err == nil
	}, time.Second, 5*time.Millisecond)

	close(ch)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("feed task did not stop on channel close")
	}

	_, err := book.Best()
	assert.Error(t, err, "quote should be dropped when the feed ends")
}

func TestBookFeedContextCancel(t *testing.T) {
	book := NewBook("BTCUSDT", 0)
	ch := make(chan *stream.Ticker)

	ctx, cancel := context.WithCancel(context.Background())
	task := book.Feed(core.ExchangeBybit, ch)

	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("feed task did not stop on context cancel")
	}
}
