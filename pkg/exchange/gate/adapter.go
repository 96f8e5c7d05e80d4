package gate

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"nakula/pkg/core"
)

// Stream endpoints per market family.
const (
	SpotStreamURL         = "wss://api.gateio.ws/ws/v4/"
	FuturesUsdtStreamURL  = "wss://fx-ws.gateio.ws/v4/ws/usdt"
	FuturesBtcStreamURL   = "wss://fx-ws.gateio.ws/v4/ws/btc"
	DeliveryUsdtStreamURL = "wss://fx-ws.gateio.ws/v4/ws/delivery/usdt"
	DeliveryBtcStreamURL  = "wss://fx-ws.gateio.ws/v4/ws/delivery/btc"
)

// Channels subscribed one message per topic because their payload is a
// single parameter tuple, not a symbol list.
var perTopicChannels = map[string]bool{
	"candlesticks":      true,
	"order_book_update": true,
	"order_book":        true,
}

// Channel name fragments that require the per-message auth object.
var privateChannelMarkers = []string{
	"balance",
	"order",
	"position",
	"usertrade",
	"liquidates",
	"auto_deleverages",
	"reduce_risk_limits",
	"autoorders",
}

// Adapter speaks the Gate websocket v4 dialect. Credentials are optional;
// when present, private channel messages are signed in place.
type Adapter struct {
	market core.MarketType
	creds  *core.Credentials
}

// New creates a Gate adapter for one market. Pass nil credentials for
// public-only streams.
func New(market core.MarketType, creds *core.Credentials) *Adapter {
	return &Adapter{market: market, creds: creds}
}

// Name returns the venue name.
func (a *Adapter) Name() string { return "gate" }

// URL returns the stream endpoint for the market. Private coin-margined
// perpetual sessions ride the usdt settlement endpoint.
func (a *Adapter) URL(market core.MarketType, private bool) (string, error) {
	switch market {
	case core.MarketSpot, core.MarketMargin:
		return SpotStreamURL, nil
	case core.MarketUPerp:
		return FuturesUsdtStreamURL, nil
	case core.MarketCPerp:
		if private {
			return FuturesUsdtStreamURL, nil
		}
		return FuturesBtcStreamURL, nil
	case core.MarketUDelivery:
		return DeliveryUsdtStreamURL, nil
	case core.MarketCDelivery:
		return DeliveryBtcStreamURL, nil
	default:
		return "", fmt.Errorf("gate: %w: market %s", core.ErrUnsupported, market)
	}
}

// ReqIDKey returns the JSON key carrying request ids.
func (a *Adapter) ReqIDKey() string { return "id" }

// StampID writes the id as a JSON number, which is what Gate echoes.
func (a *Adapter) StampID(payload map[string]any, id int64) {
	payload["id"] = id
}

// EncodeRequest renders the payload with the mandatory time field and,
// for private channels, the auth object signed over channel, event and
// time.
func (a *Adapter) EncodeRequest(req *core.Request) ([]byte, error) {
	if len(req.Raw) > 0 {
		return req.Raw, nil
	}

	out := make(map[string]any, len(req.Payload)+2)
	out["time"] = time.Now().Unix()
	for k, v := range req.Payload {
		out[k] = v
	}

	channel, _ := out["channel"].(string)
	if a.creds.HasKeys() && isPrivateChannel(channel) {
		event, _ := out["event"].(string)
		ts, _ := out["time"].(int64)
		out["auth"] = map[string]string{
			"method": "api_key",
			"KEY":    a.creds.APIKey,
			"SIGN":   signMessage(a.creds.SecretKey, channel, event, ts),
		}
	}
	return sonic.Marshal(out)
}

// DecodeFrame classifies an inbound message. Messages with an id are
// acknowledgements, pong channels resolve the heartbeat, everything
// else is stream data.
func (a *Adapter) DecodeFrame(data []byte) (*core.Frame, error) {
	var env struct {
		ID      json.Number `json:"id"`
		Channel string      `json:"channel"`
		Error   *gateError  `json:"error"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("gate: decode frame: %w", err)
	}

	if strings.HasSuffix(env.Channel, ".pong") {
		return &core.Frame{Kind: core.FramePong, ID: env.ID.String(), Raw: data}, nil
	}

	if env.ID != "" {
		frame := &core.Frame{Kind: core.FrameAck, ID: env.ID.String(), Raw: data}
		if env.Error != nil {
			frame.Err = core.NewExchangeErrorWithCode("gate", core.ErrorTypeExchange, 0,
				fmt.Sprintf("%d", env.Error.Code), env.Error.Message)
		}
		return frame, nil
	}
	return &core.Frame{Kind: core.FrameData, Raw: data}, nil
}

// BuildSubscribe renders topics into subscribe messages: one per topic
// for book and candlestick channels, one per channel with merged
// payloads for the rest.
func (a *Adapter) BuildSubscribe(topics []string) ([]*core.Request, error) {
	return a.buildChannelRequests("subscribe", topics), nil
}

// BuildUnsubscribe renders topics into unsubscribe messages.
func (a *Adapter) BuildUnsubscribe(topics []string) ([]*core.Request, error) {
	return a.buildChannelRequests("unsubscribe", topics), nil
}

// Heartbeat returns the market family's ping channel message.
func (a *Adapter) Heartbeat() *core.Request {
	return &core.Request{Payload: map[string]any{"channel": a.channelPrefix() + ".ping"}}
}

// AckError returns the error decoded from the acknowledgement, if any.
func (a *Adapter) AckError(req *core.Request, frame *core.Frame) error {
	return frame.Err
}

// buildChannelRequests groups topics of the form "channel" or
// "channel@param@param" by channel, preserving first-seen order.
func (a *Adapter) buildChannelRequests(event string, topics []string) []*core.Request {
	type group struct {
		topics []string
		params []string
	}
	var reqs []*core.Request
	var order []string
	groups := make(map[string]*group)

	for _, topic := range topics {
		parts := strings.Split(topic, "@")
		channel, params := parts[0], parts[1:]
		if perTopicChannels[channel] {
			reqs = append(reqs, a.channelRequest(event, channel, []string{topic}, params))
			continue
		}
		g, ok := groups[channel]
		if !ok {
			g = &group{}
			groups[channel] = g
			order = append(order, channel)
		}
		g.topics = append(g.topics, topic)
		g.params = append(g.params, params...)
	}

	for _, channel := range order {
		g := groups[channel]
		reqs = append(reqs, a.channelRequest(event, channel, g.topics, g.params))
	}
	return reqs
}

func (a *Adapter) channelRequest(event, channel string, topics, params []string) *core.Request {
	if params == nil {
		params = []string{}
	}
	return &core.Request{
		Topics: topics,
		Payload: map[string]any{
			"event":   event,
			"channel": a.channelPrefix() + "." + channel,
			"payload": params,
		},
	}
}

func (a *Adapter) channelPrefix() string {
	switch a.market {
	case core.MarketSpot, core.MarketMargin:
		return "spot"
	case core.MarketOptions:
		return "options"
	default:
		return "futures"
	}
}

// signMessage signs one websocket message:
// hex(HMAC-SHA512(secret, "channel=<c>&event=<e>&time=<t>")).
func signMessage(secret, channel, event string, ts int64) string {
	mac := hmac.New(sha512.New, []byte(secret))
	fmt.Fprintf(mac, "channel=%s&event=%s&time=%d", channel, event, ts)
	return hex.EncodeToString(mac.Sum(nil))
}

// isPrivateChannel matches by name fragment. Gate ignores the auth
// object on public channels, so a broad match such as "order" against
// "order_book" is harmless.
func isPrivateChannel(channel string) bool {
	for _, marker := range privateChannelMarkers {
		if strings.Contains(channel, marker) {
			return true
		}
	}
	return false
}

type gateError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
