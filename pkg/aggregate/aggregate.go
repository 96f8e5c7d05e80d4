// Package aggregate consolidates per-venue ticker feeds into one
// best-price view per symbol.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"nakula/pkg/core"
	"nakula/pkg/stream"
	"nakula/pkg/taskset"
)

// decCtx is the arithmetic context for spread math. Division requires
// a context with nonzero precision.
var decCtx = apd.Context{
	Precision:   34,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Rounding:    apd.RoundHalfUp,
}

// Quote is one venue's latest ticker contribution.
type Quote struct {
	Exchange core.Exchange
	Ticker   *stream.Ticker
	// At is the local receive time, used for staleness filtering.
	At time.Time
}

// BestPrice is the consolidated best bid and ask across venues.
type BestPrice struct {
	Symbol        string
	Bid           apd.Decimal
	Ask           apd.Decimal
	BidExchange   core.Exchange
	AskExchange   core.Exchange
	Spread        apd.Decimal
	SpreadPercent apd.Decimal
	// At is the most recent venue timestamp among the contributors.
	At time.Time
}

// Book keeps the latest quote per venue for one symbol and serves the
// consolidated best price. It is safe for concurrent use.
type Book struct {
	symbol     string
	staleAfter time.Duration

	mu     sync.RWMutex
	quotes map[core.Exchange]*Quote
	logger zerolog.Logger
}

// NewBook creates a book for symbol. Quotes older than staleAfter are
// ignored by Best; a non-positive staleAfter disables the filter.
func NewBook(symbol string, staleAfter time.Duration) *Book {
	return &Book{
		symbol:     symbol,
		staleAfter: staleAfter,
		quotes:     make(map[core.Exchange]*Quote),
		logger:     zerolog.Nop(),
	}
}

// SetLogger attaches a logger.
func (b *Book) SetLogger(logger zerolog.Logger) {
	b.logger = logger.With().Str("symbol", b.symbol).Logger()
}

// Symbol returns the symbol the book consolidates.
func (b *Book) Symbol() string {
	return b.symbol
}

// Update records exchange's latest ticker, replacing any earlier quote.
func (b *Book) Update(exchange core.Exchange, ticker *stream.Ticker) {
	if ticker == nil {
		return
	}
	b.mu.Lock()
	b.quotes[exchange] = &Quote{Exchange: exchange, Ticker: ticker, At: time.Now()}
	b.mu.Unlock()
}

// Drop removes exchange's quote from the book.
func (b *Book) Drop(exchange core.Exchange) {
	b.mu.Lock()
	delete(b.quotes, exchange)
	b.mu.Unlock()
}

// Quotes returns the current quotes sorted by exchange name.
func (b *Book) Quotes() []Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	quotes := make([]Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		quotes = append(quotes, *q)
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Exchange.String() < quotes[j].Exchange.String()
	})
	return quotes
}

// Best computes the highest bid and lowest ask over the live quotes.
// Returns an error when no quote is live.
func (b *Book) Best() (*BestPrice, error) {
	b.mu.RLock()
	quotes := make([]*Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		quotes = append(quotes, q)
	}
	b.mu.RUnlock()

	now := time.Now()
	best := &BestPrice{Symbol: b.symbol}
	hasValidData := false

	for _, q := range quotes {
		if b.staleAfter > 0 && now.Sub(q.At) > b.staleAfter {
			continue
		}

		ticker := q.Ticker
		if !hasValidData {
			best.Bid = ticker.Bid
			best.Ask = ticker.Ask
			best.BidExchange = q.Exchange
			best.AskExchange = q.Exchange
			best.At = ticker.At
			hasValidData = true
			continue
		}

		if ticker.Bid.Cmp(&best.Bid) > 0 {
			best.Bid = ticker.Bid
			best.BidExchange = q.Exchange
		}
		if ticker.Ask.Cmp(&best.Ask) < 0 {
			best.Ask = ticker.Ask
			best.AskExchange = q.Exchange
		}
		if ticker.At.After(best.At) {
			best.At = ticker.At
		}
	}

	if !hasValidData {
		return nil, fmt.Errorf("no live quotes for symbol: %s", b.symbol)
	}

	if _, err := decCtx.Sub(&best.Spread, &best.Ask, &best.Bid); err != nil {
		return nil, fmt.Errorf("calculate spread: %w", err)
	}

	if !best.Bid.IsZero() {
		var hundred apd.Decimal
		hundred.SetInt64(100)
		if _, err := decCtx.Mul(&best.SpreadPercent, &best.Spread, &hundred); err != nil {
			return nil, fmt.Errorf("calculate spread percent multiply: %w", err)
		}
		if _, err := decCtx.Quo(&best.SpreadPercent, &best.SpreadPercent, &best.Bid); err != nil {
			return nil, fmt.Errorf("calculate spread percent divide: %w", err)
		}
	}

	return best, nil
}

// Feed returns a task that copies tickers from ch into the book until
// ch closes or the task context ends. The venue's quote is dropped on
// the way out so a dead feed cannot pin a stale price.
func (b *Book) Feed(exchange core.Exchange, ch <-chan *stream.Ticker) taskset.Task {
	return taskset.Task{
		Name: fmt.Sprintf("feed-%s-%s", exchange, b.symbol),
		Run: func(ctx context.Context) error {
			defer b.Drop(exchange)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ticker, ok := <-ch:
					if !ok {
						return nil
					}
					b.Update(exchange, ticker)
				}
			}
		},
	}
}
