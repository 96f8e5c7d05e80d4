// Package exchange constructs websocket clients for the supported
// venues. New wires the venue's protocol adapter, its auth step when
// credentials are supplied, and the rate limiter shared by every client
// of that venue. Container keeps running clients addressable by their
// connection identity.
//
// The venue registry is closed: adding a venue means adding its adapter
// package and a case in the factory.
package exchange
