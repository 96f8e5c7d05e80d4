package stream

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/wsclient"
)

// Taker side of a trade.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is one executed trade reported by a venue.
type Trade struct {
	Symbol string
	ID     int64
	Price  apd.Decimal
	Size   apd.Decimal
	Side   string
	At     time.Time
}

// TradeStream fans Trade events out per symbol.
type TradeStream = Stream[*Trade]

// NewTradeStream creates a trade stream over client using decode.
func NewTradeStream(client *wsclient.Client, decode Decoder[*Trade], config Config) *TradeStream {
	return New(client, decode, config)
}
