// Package okx implements the OKX v5 websocket dialect.
//
// Control messages carry no request id: acknowledgements echo only an
// event name, so login, subscribe and unsubscribe correlate on fixed
// pseudo ids and each builds a single batch. The heartbeat is a bare
// "ping" string answered by a bare "pong".
//
// API documentation: https://www.okx.com/docs-v5/en/#overview-websocket
package okx
