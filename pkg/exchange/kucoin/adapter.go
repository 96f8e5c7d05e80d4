package kucoin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// KuCoin caps one subscribe message at 100 symbols.
const symbolBatchSize = 100

// Adapter speaks the KuCoin websocket dialect. The private flag marks
// subscriptions as private channel requests.
type Adapter struct {
	private bool
}

// New creates a KuCoin adapter.
func New(private bool) *Adapter {
	return &Adapter{private: private}
}

// Name returns the venue name.
func (a *Adapter) Name() string { return "kucoin" }

// URL returns an empty endpoint: the bullet handshake supplies the real
// one before each dial.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	return "", nil
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "id" }

// StampID writes the id as a string, the type KuCoin documents for id.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["id"] = strconv.FormatInt(id, 10)
}

// EncodeRequest renders the request payload to JSON, marking private
// channel requests on private streams.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	if len(req.Raw) > 0 || !a.private {
		return core.MarshalRequest(req)
	}

	out := make(map[string]any, len(req.Payload)+1)
	out["privateChannel"] = true
	for k, v := range req.Payload {
		out[k] = v
	}
	return sonic.Marshal(out)
}

// DecodeFrame classifies an inbound message by its type field.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	var env struct {
		ID   string          `json:"id"`
		Type string          `json:"type"`
		Code json.Number     `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("kucoin: decode frame: %w", err)
	}

	switch env.Type {
	case "welcome":
		return &core.Frame{Kind: core.FrameInfo, ID: env.ID, Raw: data}, nil
	case "pong":
		return &core.Frame{Kind: core.FramePong, ID: env.ID, Raw: data}, nil
	case "ack":
		return &core.Frame{Kind: core.FrameAck, ID: env.ID, Raw: data}, nil
	case "error":
		return &core.Frame{
			Kind: core.FrameAck,
			ID:   env.ID,
			Raw:  data,
			Err: core.NewExchangeErrorWithCode("kucoin", core.ErrorTypeExchange, 0,
				env.Code.String(), errorText(env.Data)),
		}, nil
	}
	return &core.Frame{Kind: core.FrameData, Raw: data}, nil
}

// BuildSubscribe groups "prefix:symbol" topics by prefix and joins their
// symbols comma-separated, 100 per message. A bare prefix subscribes the
// whole topic.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return buildTopicRequests("subscribe", topics), nil
}

// BuildUnsubscribe renders topics into unsubscribe messages.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return buildTopicRequests("unsubscribe", topics), nil
}

// Heartbeat returns the KuCoin typed ping.
func (a *Adapter) Heartbeat() *core.Request {
	return &core.Request{Payload: map[string]any{"type": "ping"}}
}

// AckError returns the error decoded from the acknowledgement, if any.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	return frame.Err
}

func buildTopicRequests(msgType string, topics []string) []*core.Request {
	type group struct {
		topics  []string
		symbols []string
		bare    bool
	}
	var order []string
	groups := make(map[string]*group)

	for _, topic := range topics {
		prefix, symbol, found := strings.Cut(topic, ":")
		g, ok := groups[prefix]
		if !ok {
			g = &group{}
			groups[prefix] = g
			order = append(order, prefix)
		}
		g.topics = append(g.topics, topic)
		if found {
			g.symbols = append(g.symbols, symbol)
		} else {
			g.bare = true
		}
	}

	var reqs []*core.Request
	for _, prefix := range order {
		g := groups[prefix]
		if g.bare {
			reqs = append(reqs, topicRequest(msgType, prefix, g.topics))
			continue
		}
		for start := 0; start < len(g.symbols); start += symbolBatchSize {
			end := min(start+symbolBatchSize, len(g.symbols))
			reqs = append(reqs, topicRequest(msgType,
				prefix+":"+strings.Join(g.symbols[start:end], ","),
				g.topics[start:end]))
		}
	}
	return reqs
}

func topicRequest(msgType, topic string, covered []string) *core.Request {
	return &core.Request{
		Topics: covered,
		Payload: map[string]any{
			"type":     msgType,
			"topic":    topic,
			"response": true,
		},
	}
}

// errorText unwraps the data field of an error message, which is usually
// a bare string.
func errorText(data json.RawMessage) string {
	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}
