package wsclient

import (
	"context"
	"time"

	"nakula/pkg/core"
	"nakula/pkg/taskset"
)

// Requester sends one correlated request over the live connection and
// waits for the venue's response. The Client implements it; auth steps
// and session initializers receive it so they can talk on the socket
// without owning it.
type Requester interface {
	Request(ctx context.Context, req *core.Request, timeout time.Duration) (*core.Frame, error)
}

// AuthStep hooks venue-specific authentication into the connection
// lifecycle. A private client is a public client composed with one.
//
// Prepare runs before every dial and may rewrite the dial URL, typically
// after fetching a listen key or connection token over REST. Login runs
// on the live socket before the topic set is restored; venues without an
// in-band login return nil.
type AuthStep interface {
	Prepare(ctx context.Context, dialURL string) (string, error)
	Login(ctx context.Context, rt Requester) error
}

// BackgroundTasker is implemented by auth steps that need long-running
// companions, such as listen-key keepalive or token refresh loops. The
// tasks are started once, after the first successful login, and run until
// the client closes.
type BackgroundTasker interface {
	BackgroundTasks() []taskset.Task
}

// SessionIniter is implemented by adapters that must negotiate session
// options on each new connection before login and subscriptions.
type SessionIniter interface {
	SessionInit(ctx context.Context, rt Requester) error
}

// HeartbeatDemander is implemented by adapters whose server demands
// heartbeats in-band instead of expecting them on a fixed schedule. The
// client then beats on demand, bounded by twice the heartbeat interval.
type HeartbeatDemander interface {
	DemandDrivenHeartbeat() bool
}
