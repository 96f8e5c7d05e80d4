// Package binance implements the Binance websocket dialect for spot,
// margin, USD-margined and coin-margined futures, and the portfolio
// margin account stream.
//
// Request ids are numeric. Subscriptions batch up to 100 streams per
// SUBSCRIBE message. Binance answers protocol-level pings, so the
// adapter returns no application heartbeat. Private streams dial a
// listen key obtained and kept alive over REST.
//
// API documentation: https://developers.binance.com/docs
package binance
