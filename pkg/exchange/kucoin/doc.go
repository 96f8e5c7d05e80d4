// Package kucoin implements the KuCoin websocket dialect.
//
// KuCoin publishes no static endpoint: every connection first requests a
// bullet token over REST, then dials the endpoint it names with the
// token attached. Request ids are strings, ids echo on typed ack, pong
// and error messages, and topics join comma-separated symbols under a
// shared prefix, 100 symbols per subscribe.
//
// API documentation: https://www.kucoin.com/docs/websocket/basic-info
package kucoin
