// Package bybit implements the Bybit v5 websocket dialect.
//
// Request ids travel as strings under "req_id". Subscriptions batch up
// to 10 topics per message. The server expects an application-level
// {"op":"ping"} heartbeat and answers with op "pong" (op "ping" on the
// public spot stream). Private streams log in with an HMAC-signed auth
// message on a dedicated endpoint.
//
// API documentation: https://bybit-exchange.github.io/docs/v5/ws/connect
package bybit
