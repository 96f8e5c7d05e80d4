package stream

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/wsclient"
)

// Ticker is one venue's best-bid/offer snapshot for a symbol.
type Ticker struct {
	Symbol string
	Bid    apd.Decimal
	Ask    apd.Decimal
	Last   apd.Decimal
	Volume apd.Decimal
	At     time.Time
}

// TickerStream fans Ticker events out per symbol.
type TickerStream = Stream[*Ticker]

// NewTickerStream creates a ticker stream over client using decode.
func NewTickerStream(client *wsclient.Client, decode Decoder[*Ticker], config Config) *TickerStream {
	return New(client, decode, config)
}
