// Package bitget implements the Bitget v2 websocket dialect.
//
// The dialect follows the OKX family: event-name acknowledgements
// correlated on fixed pseudo ids, a single subscribe batch, and a bare
// "ping"/"pong" string heartbeat. Subscription args carry the product
// type derived from the adapter's market.
//
// API documentation: https://www.bitget.com/api-doc/common/websocket-intro
package bitget
