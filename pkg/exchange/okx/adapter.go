package okx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// Stream endpoints. One host serves every market.
const (
	PublicStreamURL  = "wss://ws.okx.com:8443/ws/v5/public"
	PrivateStreamURL = "wss://ws.okx.com:8443/ws/v5/private"
)

// Pseudo correlation ids for acknowledgements that echo only an event
// name.
const (
	loginID       = "login"
	subscribeID   = "subscribe"
	unsubscribeID = "unsubscribe"
	heartbeatID   = "heartbeat"
)

// Adapter speaks the OKX v5 websocket dialect.
type Adapter struct{}

// New creates an OKX adapter.
func New() *Adapter { return &Adapter{} }

// Name returns the venue name.
func (a *Adapter) Name() string { return "okx" }

// URL returns the public or private endpoint; OKX serves every market on
// the same host.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	if private {
		return PrivateStreamURL, nil
	}
	return PublicStreamURL, nil
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "id" }

// StampID writes the id as a string, the type OKX documents for id.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["id"] = strconv.FormatInt(id, 10)
}

// EncodeRequest renders the request payload to JSON, or the raw bytes
// for the bare-string heartbeat.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	return core.MarshalRequest(req)
}

// DecodeFrame classifies an inbound message. Event acknowledgements map
// to their pseudo id; event errors carry no correlation at all and are
// surfaced as unroutable error frames.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	if string(data) == "pong" {
		return &core.Frame{Kind: core.FramePong, ID: heartbeatID}, nil
	}

	var env struct {
		Event string `json:"event"`
		ID    string `json:"id"`
		Code  string `json:"code"`
		Msg   string `json:"msg"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("okx: decode frame: %w", err)
	}

	switch env.Event {
	case "login", "subscribe", "unsubscribe":
		return &core.Frame{Kind: core.FrameAck, ID: env.Event, Raw: data, Err: codeError(env.Code, env.Msg)}, nil
	case "error":
		if env.ID != "" {
			return &core.Frame{Kind: core.FrameAck, ID: env.ID, Raw: data, Err: codeError(env.Code, env.Msg)}, nil
		}
		return &core.Frame{Kind: core.FrameError, Raw: data, Err: codeError(env.Code, env.Msg)}, nil
	}

	if env.ID != "" {
		return &core.Frame{Kind: core.FrameAck, ID: env.ID, Raw: data, Err: codeError(env.Code, env.Msg)}, nil
	}
	return &core.Frame{Kind: core.FrameData, Raw: data}, nil
}

// BuildSubscribe renders all topics into one subscribe message keyed on
// the subscribe pseudo id.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return buildArgsRequest("subscribe", topics)
}

// BuildUnsubscribe renders all topics into one unsubscribe message.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return buildArgsRequest("unsubscribe", topics)
}

// Heartbeat returns the bare "ping" string OKX expects.
func (a *Adapter) Heartbeat() *core.Request {
	return &core.Request{ID: heartbeatID, Raw: []byte("ping")}
}

// AckError returns the error decoded from the acknowledgement, if any.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	return frame.Err
}

// buildArgsRequest renders topics of the form "channel" or
// "channel@key:value" into subscription args. Malformed topics with more
// than one parameter segment are skipped.
func buildArgsRequest(op string, topics []string) ([]*core.Request, error) {
	args := make([]map[string]string, 0, len(topics))
	covered := make([]string, 0, len(topics))
	for _, topic := range topics {
		arg, ok := topicArg(topic)
		if !ok {
			continue
		}
		args = append(args, arg)
		covered = append(covered, topic)
	}
	if len(args) == 0 {
		return nil, nil
	}

	return []*core.Request{{
		ID:     op,
		Topics: covered,
		Payload: map[string]any{
			"op":   op,
			"args": args,
		},
	}}, nil
}

func topicArg(topic string) (map[string]string, bool) {
	parts := strings.Split(topic, "@")
	switch len(parts) {
	case 1:
		return map[string]string{"channel": parts[0]}, true
	case 2:
		arg := map[string]string{"channel": parts[0]}
		if k, v, found := strings.Cut(parts[1], ":"); found {
			arg[k] = v
		} else {
			arg["instId"] = parts[1]
		}
		return arg, true
	default:
		return nil, false
	}
}

func codeError(code, msg string) error {
	if code == "" || code == "0" {
		return nil
	}
	return core.NewExchangeErrorWithCode("okx", core.ErrorTypeExchange, 0, code, msg)
}
