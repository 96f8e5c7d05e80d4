package wsclient

import "sync/atomic"

// ConnState is the lifecycle phase of a connection client.
type ConnState int32

// Phases of the connect, authenticate, subscribe, serve cycle.
const (
	// StateIdle indicates the client has not been run yet.
	StateIdle ConnState = iota
	// StateConnecting indicates a dial is in progress or pending.
	StateConnecting
	// StateAuthenticating indicates the login exchange is in progress.
	StateAuthenticating
	// StateSubscribing indicates the topic set is being applied.
	StateSubscribing
	// StateServing indicates the connection is live and delivering data.
	StateServing
	// StateClosed indicates the client has been permanently closed.
	StateClosed
)

func (s ConnState) String() string {
	return [...]string{
		"idle",
		"connecting",
		"authenticating",
		"subscribing",
		"serving",
		"closed",
	}[s]
}

// State holds a ConnState behind an atomic so watchdogs and callers can
// observe the lifecycle phase without taking the client lock.
type State struct {
	v atomic.Int32
}

func (s *State) Load() ConnState {
	return ConnState(s.v.Load())
}

func (s *State) Store(state ConnState) {
	s.v.Store(int32(state))
}
