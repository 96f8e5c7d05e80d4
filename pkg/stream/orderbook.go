package stream

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/wsclient"
)

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price apd.Decimal
	Size  apd.Decimal
}

// BookUpdate is one incremental order-book change for a symbol. Levels
// carry absolute sizes; a zero size removes the level.
type BookUpdate struct {
	Symbol  string
	Bids    []BookLevel
	Asks    []BookLevel
	FirstID int64
	FinalID int64
	At      time.Time
}

// OrderBookStream fans BookUpdate events out per symbol.
type OrderBookStream = Stream[*BookUpdate]

// NewOrderBookStream creates an order-book stream over client using
// decode.
func NewOrderBookStream(client *wsclient.Client, decode Decoder[*BookUpdate], config Config) *OrderBookStream {
	return New(client, decode, config)
}
