package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"nakula/internal/tokencache"
	"nakula/pkg/core"
	"nakula/pkg/wsclient"
)

// StreamURL serves every Deribit market, public and private.
const StreamURL = "wss://www.deribit.com/ws/api/v2"

// Deribit rejects heartbeat intervals below 10 seconds.
const minHeartbeatInterval = 10 * time.Second

// Adapter speaks the Deribit JSON-RPC 2.0 websocket dialect.
type Adapter struct {
	heartbeatInterval time.Duration
	tokens            *tokencache.Cache
}

// New creates a Deribit adapter.
func New() *Adapter {
	return &Adapter{heartbeatInterval: minHeartbeatInterval}
}

// SetHeartbeatInterval aligns the negotiated server heartbeat rate with
// the client's heartbeat interval. Intervals below the venue minimum
// keep the default.
func (a *Adapter) SetHeartbeatInterval(d time.Duration) {
	if d >= minHeartbeatInterval {
		a.heartbeatInterval = d
	}
}

// Name returns the venue name.
func (a *Adapter) Name() string { return "deribit" }

// URL returns the single Deribit endpoint.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	return StreamURL, nil
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "id" }

// StampID writes the id as a JSON number, which is what JSON-RPC echoes.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["id"] = id
}

// EncodeRequest wraps the payload in a JSON-RPC envelope and injects the
// access token into private method params.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	if len(req.Raw) > 0 {
		return req.Raw, nil
	}

	out := make(map[string]any, len(req.Payload)+1)
	out["jsonrpc"] = "2.0"
	for k, v := range req.Payload {
		out[k] = v
	}

	method, _ := out["method"].(string)
	if strings.Contains(method, "private") && a.tokens != nil {
		if tok := a.tokens.Value(); tok != "" {
			params := make(map[string]any)
			if p, ok := out["params"].(map[string]any); ok {
				for k, v := range p {
					params[k] = v
				}
			}
			params["access_token"] = tok
			out["params"] = params
		}
	}
	return sonic.Marshal(out)
}

// DecodeFrame classifies an inbound message. Subscription notifications
// are data; heartbeat notifications of type test_request demand a beat;
// id-bearing messages are acknowledgements.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	var env struct {
		ID     json.Number   `json:"id"`
		Method string        `json:"method"`
		Error  *deribitError `json:"error"`
		Params struct {
			Type string `json:"type"`
		} `json:"params"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("deribit: decode frame: %w", err)
	}

	switch env.Method {
	case "subscription":
		return &core.Frame{Kind: core.FrameData, Raw: data}, nil
	case "heartbeat":
		if env.Params.Type == "test_request" {
			return &core.Frame{Kind: core.FramePing, Raw: data}, nil
		}
		return &core.Frame{Kind: core.FrameInfo, Raw: data}, nil
	}

	if env.ID != "" {
		frame := &core.Frame{Kind: core.FrameAck, ID: env.ID.String(), Raw: data}
		if env.Error != nil {
			frame.Err = core.NewExchangeErrorWithCode("deribit", core.ErrorTypeExchange, 0,
				strconv.FormatInt(env.Error.Code, 10), env.Error.Message)
		}
		return frame, nil
	}
	return &core.Frame{Kind: core.FrameInfo, Raw: data}, nil
}

// BuildSubscribe splits topics between public/subscribe and
// private/subscribe by their channel namespace.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return buildChannelCalls("subscribe", topics), nil
}

// BuildUnsubscribe splits topics between the public and private
// unsubscribe methods.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return buildChannelCalls("unsubscribe", topics), nil
}

// Heartbeat returns the public/test call the server expects in answer
// to a test_request.
func (a *Adapter) Heartbeat() *core.Request {
	return &core.Request{Payload: map[string]any{
		"method": "public/test",
		"params": map[string]any{},
	}}
}

// DemandDrivenHeartbeat reports that the server paces heartbeats via
// test_request demands.
func (a *Adapter) DemandDrivenHeartbeat() bool { return true }

// SessionInit negotiates server heartbeats on the fresh connection.
func (a *Adapter) SessionInit(ctx context.Context, rt wsclient.Requester) error {
	req := &core.Request{Payload: map[string]any{
		"method": "public/set_heartbeat",
		"params": map[string]any{"interval": int(a.heartbeatInterval.Seconds())},
	}}

	frame, err := rt.Request(ctx, req, 0)
	if err != nil {
		return fmt.Errorf("deribit: set heartbeat: %w", err)
	}

	var res struct {
		Result string `json:"result"`
	}
	if err := sonic.Unmarshal(frame.Raw, &res); err != nil {
		return fmt.Errorf("deribit: set heartbeat response: %w", err)
	}
	if res.Result != "ok" {
		return core.NewExchangeError("deribit", core.ErrorTypeProtocol, 0,
			"set_heartbeat not confirmed: "+res.Result)
	}
	return nil
}

// AckError verifies a subscribe or unsubscribe acknowledgement: the
// result must list every channel the request covered.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	if frame.Err != nil {
		return frame.Err
	}
	method, _ := req.Payload["method"].(string)
	if !strings.HasSuffix(method, "subscribe") {
		return nil
	}

	var res struct {
		Result []string `json:"result"`
	}
	if err := sonic.Unmarshal(frame.Raw, &res); err != nil {
		return fmt.Errorf("deribit: parse subscribe result: %w", err)
	}

	confirmed := make(map[string]bool, len(res.Result))
	for _, ch := range res.Result {
		confirmed[ch] = true
	}
	var missing []string
	for _, topic := range req.Topics {
		if !confirmed[topic] {
			missing = append(missing, topic)
		}
	}
	if len(missing) > 0 {
		return core.NewExchangeError("deribit", core.ErrorTypeSubscription, 0,
			"channels not confirmed: "+strings.Join(missing, ", "))
	}
	return nil
}

func buildChannelCalls(op string, topics []string) []*core.Request {
	var public, private []string
	for _, topic := range topics {
		if ns, _, _ := strings.Cut(topic, "."); ns == "user" {
			private = append(private, topic)
		} else {
			public = append(public, topic)
		}
	}

	var reqs []*core.Request
	if len(public) > 0 {
		reqs = append(reqs, channelCall("public/"+op, public))
	}
	if len(private) > 0 {
		reqs = append(reqs, channelCall("private/"+op, private))
	}
	return reqs
}

func channelCall(method string, channels []string) *core.Request {
	return &core.Request{
		Topics: channels,
		Payload: map[string]any{
			"method": method,
			"params": map[string]any{"channels": channels},
		},
	}
}

type deribitError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}
