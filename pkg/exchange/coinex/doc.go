// Package coinex implements the CoinEx v2 websocket dialect.
//
// Frames arrive gzip-compressed. Request ids are numeric and every
// response, the server.ping answer included, correlates on them. Topics
// group per channel into one method call; depth topics carry a
// four-field parameter tuple instead of a bare market name.
//
// API documentation: https://docs.coinex.com/api/v2/
package coinex
