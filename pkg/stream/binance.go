package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"

	"nakula/pkg/core"
)

// combinedFrame is the {"stream","data"} envelope carried by Binance's
// combined-stream endpoint.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// splitCombined peels the combined-stream envelope. Array frames and
// frames without an envelope yield an empty stream name.
func splitCombined(raw []byte) (string, json.RawMessage, error) {
	if len(raw) == 0 || raw[0] == '[' {
		return "", nil, nil
	}
	var env combinedFrame
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("combined frame: %w", err)
	}
	return env.Stream, env.Data, nil
}

func setDecimal(dst *apd.Decimal, s string) error {
	if s == "" {
		return nil
	}
	_, _, err := dst.SetString(s)
	return err
}

// BinanceTickers decodes 24h ticker frames from Binance's combined
// stream ("<symbol>@ticker"). Frames from other streams decode to no
// events.
func BinanceTickers(_ core.Meta, raw []byte) ([]Event[*Ticker], error) {
	name, data, err := splitCombined(raw)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(name, "@ticker") || len(data) == 0 {
		return nil, nil
	}

	var p struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
		Last   string `json:"c"`
		Volume string `json:"v"`
		Time   int64  `json:"E"`
	}
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ticker payload: %w", err)
	}

	t := &Ticker{Symbol: p.Symbol, At: time.UnixMilli(p.Time)}
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

// BinanceTrades decodes trade frames from Binance's combined stream
// ("<symbol>@trade"). The reported side is the taker's.
func BinanceTrades(_ core.Meta, raw []byte) ([]Event[*Trade], error) {
	name, data, err := splitCombined(raw)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(name, "@trade") || len(data) == 0 {
		return nil, nil
	}

	var p struct {
		Symbol     string `json:"s"`
		ID         int64  `json:"t"`
		Price      string `json:"p"`
		Size       string `json:"q"`
		Time       int64  `json:"T"`
		BuyerMaker bool   `json:"m"`
	}
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("trade payload: %w", err)
	}

	t := &Trade{
		Symbol: p.Symbol,
		ID:     p.ID,
		Side:   SideBuy,
		At:     time.UnixMilli(p.Time),
	}
	if p.BuyerMaker {
		t.Side = SideSell
	}
	if err := setDecimal(&t.Price, p.Price); err != nil {
		return nil, fmt.Errorf("trade price: %w", err)
	}
	if err := setDecimal(&t.Size, p.Size); err != nil {
		return nil, fmt.Errorf("trade size: %w", err)
	}
	return []Event[*Trade]{{Key: p.Symbol, Value: t}}, nil
}

// BinanceBookUpdates decodes depth-diff frames from Binance's combined
// stream ("<symbol>@depth" and its interval variants).
func BinanceBookUpdates(_ core.Meta, raw []byte) ([]Event[*BookUpdate], error) {
	name, data, err := splitCombined(raw)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(name, "@depth") || len(data) == 0 {
		return nil, nil
	}

	var p struct {
		Symbol  string     `json:"s"`
		FirstID int64      `json:"U"`
		FinalID int64      `json:"u"`
		Bids    [][]string `json:"b"`
		Asks    [][]string `json:"a"`
		Time    int64      `json:"E"`
	}
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("depth payload: %w", err)
	}

	u := &BookUpdate{
		Symbol:  p.Symbol,
		FirstID: p.FirstID,
		FinalID: p.FinalID,
		At:      time.UnixMilli(p.Time),
	}
	if u.Bids, err = parseLevels(p.Bids); err != nil {
		return nil, fmt.Errorf("depth bids: %w", err)
	}
	if u.Asks, err = parseLevels(p.Asks); err != nil {
		return nil, fmt.Errorf("depth asks: %w", err)
	}
	return []Event[*BookUpdate]{{Key: p.Symbol, Value: u}}, nil
}

func parseLevels(raw [][]string) ([]BookLevel, error) {
	levels := make([]BookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level needs price and size, got %d fields", len(pair))
		}
		var level BookLevel
		if err := setDecimal(&level.Price, pair[0]); err != nil {
			return nil, err
		}
		if err := setDecimal(&level.Size, pair[1]); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}
