package core

import "github.com/bytedance/sonic"

// FrameKind classifies a decoded inbound frame for routing.
type FrameKind int

// Frame kind constants. Only FrameData reaches subscription callbacks;
// every other kind is consumed by the connection machinery.
const (
	// FrameData is a market data or account event message.
	FrameData FrameKind = iota
	// FrameAck is an acknowledgement of a request sent by us.
	FrameAck
	// FramePong is a heartbeat response.
	FramePong
	// FramePing is a server-initiated demand for a heartbeat.
	FramePing
	// FrameInfo is connection chatter such as welcome banners.
	FrameInfo
	// FrameError is an exchange-reported error that carries no
	// correlation id and cannot be routed to a waiting request.
	FrameError
)

// String returns the string representation of the frame kind.
func (k FrameKind) String() string {
	return [...]string{
		"DATA",
		"ACK",
		"PONG",
		"PING",
		"INFO",
		"ERROR",
	}[k]
}

// IsControl reports whether the frame is consumed by the connection
// machinery rather than delivered to subscription callbacks.
func (k FrameKind) IsControl() bool {
	return k != FrameData
}

// Frame is one decoded inbound message.
type Frame struct {
	// Kind classifies the frame for routing.
	Kind FrameKind
	// ID is the correlation id echoed by the exchange: the decimal form
	// of a numeric request id, or a fixed pseudo id such as "subscribe"
	// on venues whose acknowledgements carry no id. Empty when the frame
	// has no correlation.
	ID string
	// Raw is the decoded message body, after decompression when the
	// venue compresses frames. Empty for bare-string control frames.
	Raw []byte
	// Err is set when the frame reports an exchange-side rejection.
	Err error
}

// Request is one outbound wire message awaiting at most one response.
type Request struct {
	// ID is the correlation key matched against Frame.ID. Left empty,
	// the client assigns the next numeric id before sending. Fixed
	// pseudo ids ("login", "subscribe", "heartbeat") are set by the
	// adapter on venues whose acknowledgements echo no id.
	ID string
	// Topics lists the topics covered when the request is a subscribe
	// or unsubscribe batch, in the adapter's topic syntax.
	Topics []string
	// Payload is the JSON object body of the message.
	Payload map[string]any
	// Raw, when non-empty, is sent verbatim instead of the marshaled
	// payload. Used for bare-string heartbeats.
	Raw []byte
}

// MarshalRequest renders a request to wire bytes: the Raw bytes when set,
// otherwise the sonic-marshaled payload.
func MarshalRequest(req *Request) ([]byte, error) {
	if len(req.Raw) > 0 {
		return req.Raw, nil
	}
	return sonic.Marshal(req.Payload)
}

// Adapter translates between the venue-neutral connection engine and one
// exchange's websocket dialect. Implementations hold only immutable
// construction state and must be safe for concurrent use.
type Adapter interface {
	// Name returns the venue name used in logs and errors.
	Name() string

	// URL returns the default endpoint for the market, or an error when
	// the venue has no endpoint for that market/visibility combination.
	URL(market MarketType, private bool) (string, error)

	// ReqIDKey returns the JSON key the venue uses for request ids.
	ReqIDKey() string

	// StampID writes the numeric request id into the payload using the
	// venue's wire type for ids (number or string).
	StampID(payload map[string]any, id int64)

	// EncodeRequest renders the request to wire bytes, applying any
	// per-message envelope the venue requires.
	EncodeRequest(req *Request) ([]byte, error)

	// DecodeFrame parses one inbound message into a routable frame,
	// handling decompression and bare-string control messages.
	DecodeFrame(data []byte) (*Frame, error)

	// BuildSubscribe renders the topics into one or more subscribe
	// requests, honoring the venue's batching rules.
	BuildSubscribe(topics []string) ([]*Request, error)

	// BuildUnsubscribe renders the topics into unsubscribe requests.
	BuildUnsubscribe(topics []string) ([]*Request, error)

	// Heartbeat returns the application-level heartbeat request, or nil
	// when the venue is served by websocket protocol pings.
	Heartbeat() *Request

	// AckError inspects the acknowledgement resolved for req and returns
	// the venue's verdict: nil on success, a subscription or exchange
	// error on rejection.
	AckError(req *Request, frame *Frame) error
}
