package wsclient

import (
	"context"
	"time"

	"nakula/pkg/core"
)

const (
	// heartbeatPoll is the scheduler cadence between heartbeat rounds.
	heartbeatPoll = time.Second

	// heartbeatReadyWait bounds how long a round waits for a live socket
	// before skipping.
	heartbeatReadyWait = 5 * time.Second

	// dataIdlePoll and dataLivePoll are the data watchdog cadences while
	// the connection is down and up respectively.
	dataIdlePoll = 10 * time.Second
	dataLivePoll = 30 * time.Second
)

// heartbeatLoop schedules heartbeat rounds for the lifetime of the
// client, spanning reconnects. Rounds run detached so a stuck venue
// cannot stall the scheduler; consecutive failures accumulate in the
// liveness monitor and trip a forced reconnect.
func (c *Client) heartbeatLoop(ctx context.Context) {
	for {
		if !c.sleepOrStopped(c.hbPoll) {
			return
		}
		if err := c.waitReady(ctx, c.hbReadyWait); err != nil {
			continue
		}
		if !c.waitHeartbeatTrigger() {
			return
		}

		c.wg.Go(func() { c.heartbeatRound(ctx) })

		if c.liveness.Tripped() {
			c.logger.Warn().
				Int("failures", c.liveness.Failures()).
				Msg("liveness threshold reached, forcing reconnect")
			c.forceReconnect()
		}
	}
}

// waitHeartbeatTrigger blocks until the next round is due. On interval
// venues that is a fixed timer; on demand venues the round fires when
// the venue asks, with a doubled interval as a safety net.
func (c *Client) waitHeartbeatTrigger() bool {
	wait := c.config.HeartbeatInterval
	if c.demandDriven {
		wait = 2 * c.config.HeartbeatInterval
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	if c.demandDriven {
		select {
		case <-c.heartbeatDemand:
			return true
		case <-timer.C:
			return true
		case <-c.stopChan:
			return false
		}
	}
	select {
	case <-timer.C:
		return true
	case <-c.stopChan:
		return false
	}
}

// heartbeatRound sends one heartbeat and records the outcome. Venues
// without an application-level heartbeat get a transport ping instead.
func (c *Client) heartbeatRound(ctx context.Context) {
	start := time.Now()

	var err error
	if hb := c.adapter.Heartbeat(); hb != nil {
		_, err = c.Request(ctx, hb, c.config.HeartbeatTimeout)
	} else {
		err = c.transportPing()
	}

	if err != nil {
		n := c.liveness.Failure()
		c.logger.Warn().Err(err).Int("failures", n).Msg("heartbeat failed")
		if c.demandDriven {
			// The venue's demand is still outstanding; retry promptly
			// instead of waiting out the doubled interval.
			select {
			case c.heartbeatDemand <- struct{}{}:
			default:
			}
		}
		return
	}

	c.liveness.Success()
	if latency := time.Since(start); latency >= c.config.HeartbeatTimeout/2 {
		c.logger.Warn().Dur("latency", latency).Msg("slow heartbeat")
	}
}

// transportPing sends a websocket ping frame and waits for the pong.
func (c *Client) transportPing() error {
	select {
	case <-c.pongSignal:
	default:
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return core.ErrNotConnected
	}
	if err := conn.WritePing(nil); err != nil {
		return err
	}

	timer := time.NewTimer(c.config.HeartbeatTimeout)
	defer timer.Stop()

	select {
	case <-c.pongSignal:
		return nil
	case <-timer.C:
		return core.ErrRequestTimeout
	case <-c.stopChan:
		return core.ErrClientClosed
	}
}

// forceReconnect severs the current socket. The run loop observes the
// close and dials again; Close is the only way to stop it for good.
func (c *Client) forceReconnect() {
	c.forced.Store(true)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		_ = conn.NetConn().Close()
	}
}

// dataWatchdogLoop forces a reconnect when a connection with active
// subscriptions stops producing data for longer than the configured
// window. Heartbeats can survive a half-dead subscription, so this
// check is independent of the heartbeat loop.
func (c *Client) dataWatchdogLoop() {
	for {
		if !c.sleepOrStopped(c.dataPollIdle) {
			return
		}

		last := c.dataCount.Load()
		lastChange := time.Now()

		for c.isReady() {
			if !c.sleepOrStopped(c.dataPollLive) {
				return
			}
			if c.topicCount() == 0 {
				continue
			}
			if n := c.dataCount.Load(); n > last {
				last = n
				lastChange = time.Now()
				continue
			}
			if time.Since(lastChange) > c.config.DataTimeout {
				c.logger.Warn().
					Dur("silence", time.Since(lastChange)).
					Msg("data flow stalled, forcing reconnect")
				c.forceReconnect()
				break
			}
		}
	}
}
