package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// BybitTickers decodes v5 ticker frames ("tickers.<symbol>"). Delta
// frames that do not carry both sides of the book decode to no events.
func BybitTickers(_ core.Meta, raw []byte) ([]Event[*Ticker], error) {
	var env struct {
		Topic string          `json:"topic"`
		TS    int64           `json:"ts"`
		Data  json.RawMessage `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("ticker frame: %w", err)
	}
	if !strings.HasPrefix(env.Topic, "tickers.") || len(env.Data) == 0 {
		return nil, nil
	}

	var p struct {
		Symbol string `json:"symbol"`
		Bid    string `json:"bid1Price"`
		Ask    string `json:"ask1Price"`
		Last   string `json:"lastPrice"`
		Volume string `json:"volume24h"`
	}
	if err := sonic.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("ticker payload: %w", err)
	}
	if p.Bid == "" || p.Ask == "" {
		return nil, nil
	}

	t := &Ticker{Symbol: p.Symbol, At: time.UnixMilli(env.TS)}
	if err := setDecimal(&t.Bid, p.Bid); err != nil {
		return nil, fmt.Errorf("ticker bid: %w", err)
	}
	if err := setDecimal(&t.Ask, p.Ask); err != nil {
		return nil, fmt.Errorf("ticker ask: %w", err)
	}
	if err := setDecimal(&t.Last, p.Last); err != nil {
		return nil, fmt.Errorf("ticker last: %w", err)
	}
	if err := setDecimal(&t.Volume, p.Volume); err != nil {
		return nil, fmt.Errorf("ticker volume: %w", err)
	}
	return []Event[*Ticker]{{Key: p.Symbol, Value: t}}, nil
}
