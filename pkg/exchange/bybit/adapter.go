package bybit

import (
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// Stream endpoints per market family.
const (
	SpotStreamURL    = "wss://stream.bybit.com/v5/public/spot"
	LinearStreamURL  = "wss://stream.bybit.com/v5/public/linear"
	InverseStreamURL = "wss://stream.bybit.com/v5/public/inverse"
	PrivateStreamURL = "wss://stream.bybit.com/v5/private"
)

// Bybit rejects subscribe messages carrying more than 10 args.
const subscribeBatchSize = 10

// Adapter speaks the Bybit v5 websocket dialect.
type Adapter struct{}

// New creates a Bybit adapter.
func New() *Adapter { return &Adapter{} }

// Name returns the venue name.
func (a *Adapter) Name() string { return "bybit" }

// URL returns the stream endpoint for the market. All private streams
// share one endpoint.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	if private {
		return PrivateStreamURL, nil
	}
	switch market {
	case core.MarketSpot, core.MarketMargin:
		return SpotStreamURL, nil
	case core.MarketUPerp, core.MarketUDelivery:
		return LinearStreamURL, nil
	case core.MarketCPerp, core.MarketCDelivery:
		return InverseStreamURL, nil
	default:
		return "", fmt.Errorf("bybit: %w: market %s", core.ErrUnsupported, market)
	}
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "req_id" }

// StampID writes the id as a string, the type Bybit documents for req_id.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["req_id"] = strconv.FormatInt(id, 10)
}

// EncodeRequest renders the request payload to JSON.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	return core.MarshalRequest(req)
}

// DecodeFrame classifies an inbound message. Heartbeat answers arrive as
// op "pong", or op "ping" echoed back on the public spot stream. Any
// other message with a success field is an acknowledgement.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	var env struct {
		Op      string `json:"op"`
		ReqID   string `json:"req_id"`
		Success *bool  `json:"success"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bybit: decode frame: %w", err)
	}

	if env.Op == "ping" || env.Op == "pong" {
		return &core.Frame{Kind: core.FramePong, ID: env.ReqID, Raw: data}, nil
	}

	if env.Success != nil {
		frame := &core.Frame{Kind: core.FrameAck, ID: env.ReqID, Raw: data}
		if !*env.Success {
			frame.Err = core.NewExchangeError("bybit", core.ErrorTypeExchange, 0, env.RetMsg)
		}
		return frame, nil
	}
	return &core.Frame{Kind: core.FrameData, Raw: data}, nil
}

// BuildSubscribe renders topics into subscribe batches of at most 10.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return buildOpBatches("subscribe", topics), nil
}

// BuildUnsubscribe renders topics into unsubscribe batches.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return buildOpBatches("unsubscribe", topics), nil
}

// Heartbeat returns the Bybit application-level ping.
func (a *Adapter) Heartbeat() *core.Request {
	return &core.Request{Payload: map[string]any{"op": "ping"}}
}

// AckError returns the error decoded from the acknowledgement, if any.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	return frame.Err
}

func buildOpBatches(op string, topics []string) []*core.Request {
	var reqs []*core.Request
	for start := 0; start < len(topics); start += subscribeBatchSize {
		chunk := topics[start:min(start+subscribeBatchSize, len(topics))]
		reqs = append(reqs, &core.Request{
			Topics: chunk,
			Payload: map[string]any{
				"op":   op,
				"args": chunk,
			},
		})
	}
	return reqs
}
