package coinex

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// Stream endpoints per market family.
const (
	SpotStreamURL    = "wss://socket.coinex.com/v2/spot"
	FuturesStreamURL = "wss://socket.coinex.com/v2/futures"
)

// Adapter speaks the CoinEx v2 websocket dialect.
type Adapter struct{}

// New creates a CoinEx adapter.
func New() *Adapter { return &Adapter{} }

// Name returns the venue name.
func (a *Adapter) Name() string { return "coinex" }

// URL returns the stream endpoint for the market. Private sessions sign
// in on the same endpoints.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	switch market {
	case core.MarketSpot, core.MarketMargin:
		return SpotStreamURL, nil
	case core.MarketUPerp, core.MarketCPerp:
		return FuturesStreamURL, nil
	default:
		return "", fmt.Errorf("coinex: %w: market %s", core.ErrUnsupported, market)
	}
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "id" }

// StampID writes the id as a JSON number, which is what CoinEx echoes.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["id"] = id
}

// EncodeRequest renders the request payload to JSON.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	return core.MarshalRequest(req)
}

// DecodeFrame decompresses and classifies an inbound message. Responses
// carry an id; pushes carry only a method.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	data, err := maybeGunzip(data)
	if err != nil {
		return nil, fmt.Errorf("coinex: decompress frame: %w", err)
	}

	var env struct {
		ID      json.Number `json:"id"`
		Code    *int64      `json:"code"`
		Message string      `json:"message"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("coinex: decode frame: %w", err)
	}

	if env.ID != "" {
		frame := &core.Frame{Kind: core.FrameAck, ID: env.ID.String(), Raw: data}
		if env.Code != nil && *env.Code != 0 {
			frame.Err = core.NewExchangeErrorWithCode("coinex", core.ErrorTypeExchange, 0,
				strconv.FormatInt(*env.Code, 10), env.Message)
		}
		return frame, nil
	}
	return &core.Frame{Kind: core.FrameData, Raw: data}, nil
}

// BuildSubscribe groups topics per channel into one method call each.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return buildMethodRequests("subscribe", topics)
}

// BuildUnsubscribe renders topics into unsubscribe calls. Depth topics
// contribute only their market name.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return buildMethodRequests("unsubscribe", topics)
}

// Heartbeat returns the server.ping call.
func (a *Adapter) Heartbeat() *core.Request {
	return &core.Request{Payload: map[string]any{
		"method": "server.ping",
		"params": map[string]any{},
	}}
}

// AckError returns the error decoded from the acknowledgement, if any.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	return frame.Err
}

// buildMethodRequests renders topics of the form "channel",
// "channel@market" or "depth@market@limit@interval@full" into one
// <channel>.<op> call per channel, preserving first-seen order. A bare
// channel resets its parameter list to subscribe the whole channel.
func buildMethodRequests(op string, topics []string) ([]*core.Request, error) {
	type group struct {
		topics []string
		params []any
	}
	var order []string
	groups := make(map[string]*group)

	for _, topic := range topics {
		parts := strings.Split(topic, "@")
		channel := parts[0]

		g, ok := groups[channel]
		if !ok {
			g = &group{params: []any{}}
			groups[channel] = g
			order = append(order, channel)
		}
		g.topics = append(g.topics, topic)

		switch {
		case len(parts) == 1:
			g.params = []any{}
		case len(parts) == 2:
			g.params = append(g.params, parts[1])
		case len(parts) == 5 && channel == "depth":
			if op == "unsubscribe" {
				g.params = append(g.params, parts[1])
				continue
			}
			limit, err := strconv.Atoi(parts[2])
			if err != nil {
				return nil, fmt.Errorf("coinex: depth limit in topic %q: %w", topic, err)
			}
			g.params = append(g.params, []any{parts[1], limit, parts[3], parts[4] == "true"})
		default:
			return nil, fmt.Errorf("coinex: malformed topic %q", topic)
		}
	}

	reqs := make([]*core.Request, 0, len(order))
	for _, channel := range order {
		g := groups[channel]
		listKey := "market_list"
		if channel == "balance" {
			listKey = "ccy_list"
		}
		reqs = append(reqs, &core.Request{
			Topics: g.topics,
			Payload: map[string]any{
				"method": channel + "." + op,
				"params": map[string]any{listKey: g.params},
			},
		})
	}
	return reqs, nil
}

func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
