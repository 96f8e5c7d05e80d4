// Package gate implements the Gate websocket v4 dialect for spot,
// futures and delivery markets.
//
// Request ids are numeric and every message carries a unix time field.
// There is no login op: private channels embed an HMAC-SHA512 auth
// object in each subscribe message, so the adapter holds the
// credentials itself. Most channels merge their topics into one
// subscribe per channel; book and candlestick channels subscribe one
// message per topic.
//
// API documentation: https://www.gate.io/docs/developers/apiv4/ws/en/
package gate
