package binance

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// Public stream hosts per market family.
const (
	SpotStreamURL    = "wss://stream.binance.com:9443"
	LinearStreamURL  = "wss://fstream.binance.com"
	InverseStreamURL = "wss://dstream.binance.com"
)

// Binance caps a single SUBSCRIBE message at 100 streams.
const subscribeBatchSize = 100

// Adapter speaks the Binance websocket dialect.
type Adapter struct {
	account core.AccountType
}

// New creates a Binance adapter. The account type selects the portfolio
// margin endpoint for private streams.
func New(account core.AccountType) *Adapter {
	return &Adapter{account: account}
}

// Name returns the venue name.
func (a *Adapter) Name() string { return "binance" }

// URL returns the stream endpoint for the market. Private URLs are the
// base the listen key is appended to.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	var host string
	switch market {
	case core.MarketSpot, core.MarketMargin:
		host = SpotStreamURL
	case core.MarketUPerp, core.MarketUDelivery:
		host = LinearStreamURL
	case core.MarketCPerp, core.MarketCDelivery:
		host = InverseStreamURL
	default:
		return "", fmt.Errorf("binance: %w: market %s", core.ErrUnsupported, market)
	}

	if private {
		if a.account == core.AccountUnified {
			return LinearStreamURL + "/pm", nil
		}
		return host + "/ws", nil
	}
	return host + "/stream", nil
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "id" }

// StampID writes the id as a JSON number, which is what Binance echoes.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["id"] = id
}

// EncodeRequest renders the request payload to JSON.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	return core.MarshalRequest(req)
}

// DecodeFrame classifies an inbound message. Messages carrying an id are
// acknowledgements; everything else is stream data, including the bare
// JSON arrays some futures streams emit.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	if len(data) > 0 && data[0] == '[' {
		return &core.Frame{Kind: core.FrameData, Raw: data}, nil
	}

	var env struct {
		ID    json.Number   `json:"id"`
		Error *binanceError `json:"error"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("binance: decode frame: %w", err)
	}

	if env.ID != "" {
		frame := &core.Frame{Kind: core.FrameAck, ID: env.ID.String(), Raw: data}
		if env.Error != nil {
			frame.Err = core.NewExchangeErrorWithCode("binance", core.ErrorTypeExchange, 0,
				strconv.FormatInt(env.Error.Code, 10), env.Error.Msg)
		}
		return frame, nil
	}
	return &core.Frame{Kind: core.FrameData, Raw: data}, nil
}

// BuildSubscribe renders topics into SUBSCRIBE batches of at most 100
// streams each.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return buildStreamBatches("SUBSCRIBE", topics), nil
}

// BuildUnsubscribe renders topics into UNSUBSCRIBE batches.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return buildStreamBatches("UNSUBSCRIBE", topics), nil
}

// Heartbeat returns nil. Binance answers websocket protocol pings, so
// liveness rides on the transport.
func (a *Adapter) Heartbeat() *core.Request { return nil }

// AckError returns the error decoded from the acknowledgement, if any.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	return frame.Err
}

func buildStreamBatches(method string, topics []string) []*core.Request {
	var reqs []*core.Request
	for start := 0; start < len(topics); start += subscribeBatchSize {
		chunk := topics[start:min(start+subscribeBatchSize, len(topics))]
		reqs = append(reqs, &core.Request{
			Topics: chunk,
			Payload: map[string]any{
				"method": method,
				"params": chunk,
			},
		})
	}
	return reqs
}

type binanceError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}
