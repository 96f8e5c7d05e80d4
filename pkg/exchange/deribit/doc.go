// Package deribit implements the Deribit JSON-RPC 2.0 websocket dialect.
//
// One endpoint serves every market, public and private. Each connection
// first negotiates server heartbeats with public/set_heartbeat; the
// server then demands beats with test_request messages, so the client
// heartbeats on demand rather than on a fixed schedule. Private method
// calls carry an OAuth access token fetched over REST and refreshed in
// the background.
//
// API documentation: https://docs.deribit.com/
package deribit
