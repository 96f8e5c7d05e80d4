package bitget

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// Stream endpoints. One host serves every market.
const (
	PublicStreamURL  = "wss://ws.bitget.com/v2/ws/public"
	PrivateStreamURL = "wss://ws.bitget.com/v2/ws/private"
)

const heartbeatID = "heartbeat"

// Adapter speaks the Bitget v2 websocket dialect. The market selects the
// product type stamped into subscription args.
type Adapter struct {
	market core.MarketType
}

// New creates a Bitget adapter for one market.
func New(market core.MarketType) *Adapter {
	return &Adapter{market: market}
}

// Name returns the venue name.
func (a *Adapter) Name() string { return "bitget" }

// URL returns the public or private endpoint; Bitget serves every market
// on the same host.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	if private {
		return PrivateStreamURL, nil
	}
	return PublicStreamURL, nil
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "id" }

// StampID writes the id as a string.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["id"] = strconv.FormatInt(id, 10)
}

// EncodeRequest renders the request payload to JSON, or the raw bytes
// for the bare-string heartbeat.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	return core.MarshalRequest(req)
}

// DecodeFrame classifies an inbound message. Event acknowledgements map
// to their pseudo id; event errors carry no correlation and are surfaced
// as unroutable error frames.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	if string(data) == "pong" {
		return &core.Frame{Kind: core.FramePong, ID: heartbeatID}, nil
	}

	var env struct {
		Event string      `json:"event"`
		Code  json.Number `json:"code"`
		Msg   string      `json:"msg"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bitget: decode frame: %w", err)
	}

	switch env.Event {
	case "login", "subscribe", "unsubscribe":
		return &core.Frame{Kind: core.FrameAck, ID: env.Event, Raw: data, Err: codeError(env.Code.String(), env.Msg)}, nil
	case "error":
		return &core.Frame{Kind: core.FrameError, Raw: data, Err: codeError(env.Code.String(), env.Msg)}, nil
	}
	return &core.Frame{Kind: core.FrameData, Raw: data}, nil
}

// BuildSubscribe renders all topics into one subscribe message keyed on
// the subscribe pseudo id.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return a.buildArgsRequest("subscribe", topics)
}

// BuildUnsubscribe renders all topics into one unsubscribe message.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return a.buildArgsRequest("unsubscribe", topics)
}

// Heartbeat returns the bare "ping" string Bitget expects.
func (a *Adapter) Heartbeat() *core.Request {
	return &core.Request{ID: heartbeatID, Raw: []byte("ping")}
}

// AckError returns the error decoded from the acknowledgement, if any.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	return frame.Err
}

func (a *Adapter) buildArgsRequest(op string, topics []string) ([]*core.Request, error) {
	if len(topics) == 0 {
		return nil, nil
	}

	args := make([]map[string]string, 0, len(topics))
	for _, topic := range topics {
		arg, err := a.topicArg(topic)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	return []*core.Request{{
		ID:     op,
		Topics: topics,
		Payload: map[string]any{
			"op":   op,
			"args": args,
		},
	}}, nil
}

// topicArg renders "channel" or "channel@symbol" into a subscription
// arg. Account channels key their scope on "coin" instead of "instId";
// a bare channel scopes to "default".
func (a *Adapter) topicArg(topic string) (map[string]string, error) {
	parts := strings.Split(topic, "@")
	if len(parts) > 2 {
		return nil, fmt.Errorf("bitget: malformed topic %q", topic)
	}

	key := "instId"
	if slices.Contains(parts, "account") {
		key = "coin"
	}

	arg := map[string]string{"channel": parts[0], key: "default"}
	if len(parts) == 2 {
		arg[key] = parts[1]
	}
	if t := instType(a.market); t != "" {
		arg["instType"] = t
	}
	return arg, nil
}

func instType(market core.MarketType) string {
	switch market {
	case core.MarketSpot:
		return "SPOT"
	case core.MarketUPerp, core.MarketUDelivery:
		return "USDT-FUTURES"
	case core.MarketCPerp, core.MarketCDelivery:
		return "COIN-FUTURES"
	default:
		return ""
	}
}

func codeError(code, msg string) error {
	if code == "" || code == "0" {
		return nil
	}
	return core.NewExchangeErrorWithCode("bitget", core.ErrorTypeExchange, 0, code, msg)
}
