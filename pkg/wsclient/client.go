// Package wsclient implements the venue-neutral websocket connection
// engine: dial, authenticate, restore subscriptions, serve, tear down,
// reconnect. Exchange specifics are supplied by a core.Adapter and an
// optional AuthStep; the engine itself never inspects payloads.
package wsclient

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"nakula/internal/liveness"
	"nakula/internal/ratelimit"
	"nakula/pkg/core"
	"nakula/pkg/taskset"
)

// sendReadyWait bounds how long outbound sends wait for a live socket
// before giving up, spanning reconnect gaps.
const sendReadyWait = 60 * time.Second

// MessageHandler receives one decoded data message together with the
// identity of the connection that produced it.
type MessageHandler func(meta core.Meta, data []byte)

// Client is one persistent websocket connection to one venue endpoint.
// It reconnects forever until closed, restores the authoritative topic
// set after every reconnect, and correlates concurrent requests over the
// single socket. All exported methods are safe for concurrent use.
type Client struct {
	meta    core.Meta
	config  *core.WSConfig
	adapter core.Adapter

	auth    AuthStep
	limiter *ratelimit.RateLimiter
	logger  zerolog.Logger

	state   *State
	handler *eventHandler
	tasks   *taskset.Set

	mu       sync.RWMutex
	conn     *gws.Conn
	ready    chan struct{}
	connDone chan struct{}
	topics   map[string]struct{}

	subMu sync.Mutex

	cbMu           sync.RWMutex
	msgCallbacks   map[int]MessageHandler
	nextCallback   int
	onConnected    func(ctx context.Context) error
	onDisconnected func()

	pending *pendingTable
	reqID   atomic.Int64

	backoff      *backoff
	liveness     *liveness.Monitor
	demandDriven bool

	hbPoll       time.Duration
	hbReadyWait  time.Duration
	dataPollIdle time.Duration
	dataPollLive time.Duration

	heartbeatDemand chan struct{}
	pongSignal      chan struct{}

	stopChan  chan struct{}
	wg        sync.WaitGroup
	tasksOnce sync.Once

	running   atomic.Bool
	closed    atomic.Bool
	forced    atomic.Bool
	connCount atomic.Int64
	dataCount atomic.Int64
}

type eventHandler struct {
	client *Client
}

// New creates a client for one venue connection. The adapter supplies the
// wire dialect; config may be nil for defaults. Configure auth, rate
// limiting, logging, and callbacks with the Set methods before Run.
func New(meta core.Meta, adapter core.Adapter, config *core.WSConfig) (*Client, error) {
	if config == nil {
		config = core.DefaultWSConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, core.NewExchangeError(adapter.Name(), core.ErrorTypeUsage, 0, err.Error())
	}

	c := &Client{
		meta:            meta,
		config:          config,
		adapter:         adapter,
		limiter:         ratelimit.New(1, time.Second),
		logger:          zerolog.Nop(),
		state:           &State{},
		tasks:           taskset.New(),
		ready:           make(chan struct{}),
		topics:          make(map[string]struct{}),
		msgCallbacks:    make(map[int]MessageHandler),
		pending:         newPendingTable(),
		backoff:         newBackoff(config.ReconnectInterval),
		liveness:        liveness.New(liveness.DefaultThreshold),
		heartbeatDemand: make(chan struct{}, 1),
		pongSignal:      make(chan struct{}, 1),
		hbPoll:          heartbeatPoll,
		hbReadyWait:     heartbeatReadyWait,
		dataPollIdle:    dataIdlePoll,
		dataPollLive:    dataLivePoll,
		stopChan:        make(chan struct{}),
	}
	c.reqID.Store(time.Now().UnixMicro())
	c.handler = &eventHandler{client: c}
	if hd, ok := adapter.(HeartbeatDemander); ok {
		c.demandDriven = hd.DemandDrivenHeartbeat()
	}
	return c, nil
}

// SetLogger configures the logger. Call before Run.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger.With().Str("client", c.meta.String()).Logger()
	c.tasks.SetLogger(c.logger)
}

// SetAuth composes the client with a venue auth step. Call before Run.
func (c *Client) SetAuth(step AuthStep) {
	c.auth = step
}

// SetRateLimiter replaces the connection-attempt limiter, typically with
// one shared by every client of the same venue. Call before Run.
func (c *Client) SetRateLimiter(l *ratelimit.RateLimiter) {
	c.limiter = l
}

// SetOnConnected registers the callback invoked after each successful
// connect, once login has completed and the topic set is restored. An
// error from the callback abandons the connection and reconnects.
func (c *Client) SetOnConnected(fn func(ctx context.Context) error) {
	c.cbMu.Lock()
	c.onConnected = fn
	c.cbMu.Unlock()
}

// SetOnDisconnected registers the callback invoked after each teardown.
func (c *Client) SetOnDisconnected(fn func()) {
	c.cbMu.Lock()
	c.onDisconnected = fn
	c.cbMu.Unlock()
}

// RegisterMessageCallback adds a data message callback and returns a
// handle for unregistering it.
func (c *Client) RegisterMessageCallback(fn MessageHandler) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	id := c.nextCallback
	c.nextCallback++
	c.msgCallbacks[id] = fn
	return id
}

// UnregisterMessageCallback removes the callback registered under id.
func (c *Client) UnregisterMessageCallback(id int) {
	c.cbMu.Lock()
	delete(c.msgCallbacks, id)
	c.cbMu.Unlock()
}

// Meta returns the connection identity.
func (c *Client) Meta() core.Meta {
	return c.meta
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	return c.state.Load()
}

// IsConnected reports whether the connection is live and serving data.
func (c *Client) IsConnected() bool {
	return c.state.Load() == StateServing
}

// Topics returns a copy of the authoritative topic set.
func (c *Client) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	return topics
}

// ConnCount returns the number of connection attempts made so far.
func (c *Client) ConnCount() int64 {
	return c.connCount.Load()
}

// DataCount returns the number of data messages received so far.
func (c *Client) DataCount() int64 {
	return c.dataCount.Load()
}

// PendingCount returns the number of in-flight correlated requests.
func (c *Client) PendingCount() int {
	return c.pending.Len()
}

// Run drives the reconnect loop until Close is called. It blocks, so
// callers typically start it under a taskset.Set. Running a client twice
// or after Close is a usage error.
func (c *Client) Run(ctx context.Context) error {
	if c.closed.Load() {
		return core.ErrClientClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return core.ErrAlreadyRunning
	}

	// Cancelling ctx and calling Close are equivalent: either one stops
	// the client for good.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-runCtx.Done():
			_ = c.Close()
		}
	}()

	c.logger.Info().Msg("client starting")
	c.state.Store(StateConnecting)

	c.wg.Go(func() { c.heartbeatLoop(runCtx) })
	if c.config.DataTimeout > 0 {
		c.wg.Go(func() { c.dataWatchdogLoop() })
	}

	for !c.isStopped() {
		if err := c.limiter.WaitBucket(runCtx, c.meta.Exchange.String()); err != nil {
			break
		}
		c.runOnce(runCtx)
		if c.isStopped() {
			break
		}
		c.sleepOrStopped(c.backoff.Current())
	}

	c.state.Store(StateClosed)
	c.wg.Wait()
	c.tasks.Shutdown()
	c.logger.Info().Msg("client stopped")
	return nil
}

// Close shuts the client down. It is safe to call multiple times and
// from any goroutine; a client cannot be run again after closing.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Info().Msg("client closing")
	close(c.stopChan)

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		_ = conn.NetConn().Close()
	}
	c.state.Store(StateClosed)
	return nil
}

// Subscribe adds topics to the authoritative set. Topics already in the
// set are skipped; when the connection is live the new topics are sent
// first and the set is only updated after every batch is acknowledged.
func (c *Client) Subscribe(ctx context.Context, topics []string) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	fresh := c.missingTopics(topics)
	if len(fresh) == 0 {
		return nil
	}

	if c.isReady() {
		if err := c.sendSubscribe(ctx, fresh); err != nil {
			return err
		}
	}

	c.mu.Lock()
	for _, t := range fresh {
		c.topics[t] = struct{}{}
	}
	c.mu.Unlock()

	c.logger.Info().Strs("topics", fresh).Msg("subscribed")
	return nil
}

// Unsubscribe removes topics from the authoritative set. Topics not in
// the set are skipped; when the connection is live the removals are sent
// first and the set is only updated after every batch is acknowledged.
func (c *Client) Unsubscribe(ctx context.Context, topics []string) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	present := c.knownTopics(topics)
	if len(present) == 0 {
		return nil
	}

	if c.isReady() {
		if err := c.sendUnsubscribe(ctx, present); err != nil {
			return err
		}
	}

	c.mu.Lock()
	for _, t := range present {
		delete(c.topics, t)
	}
	c.mu.Unlock()

	c.logger.Info().Strs("topics", present).Msg("unsubscribed")
	return nil
}

// Request sends one correlated request and waits for the venue's
// response. A zero timeout uses the configured request timeout. When the
// request has no id, the next numeric id is assigned and stamped into
// the payload. The response frame's own error, if any, is returned
// alongside the frame.
func (c *Client) Request(ctx context.Context, req *core.Request, timeout time.Duration) (*core.Frame, error) {
	if c.closed.Load() {
		return nil, core.ErrClientClosed
	}
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}

	if req.ID == "" {
		id := c.reqID.Add(1)
		req.ID = strconv.FormatInt(id, 10)
		if req.Payload != nil {
			c.adapter.StampID(req.Payload, id)
		}
	}

	ch, err := c.pending.Add(req.ID)
	if err != nil {
		return nil, err
	}
	defer c.pending.Remove(req.ID)

	data, err := c.adapter.EncodeRequest(req)
	if err != nil {
		return nil, core.NewExchangeError(c.adapter.Name(), core.ErrorTypeProtocol, 0, err.Error())
	}
	if err := c.send(ctx, data); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.frame, res.frame.Err
	case <-timer.C:
		return nil, core.ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopChan:
		return nil, core.ErrClientClosed
	}
}

// runOnce performs one full connection cycle: dial, session init, login,
// topic restore, serve, teardown.
func (c *Client) runOnce(ctx context.Context) {
	connID := c.connCount.Add(1)
	logger := c.logger.With().Int64("conn", connID).Logger()

	c.liveness.Reset()
	c.forced.Store(false)
	c.state.Store(StateConnecting)

	dialURL, err := c.dialURL(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("connection preparation failed")
		c.backoff.Failure()
		return
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.connDone = done
	c.mu.Unlock()

	socket, _, err := gws.NewClient(c.handler, &gws.ClientOption{
		Addr: dialURL,
	})
	if err != nil {
		logger.Warn().Err(err).Str("url", dialURL).Msg("websocket connect failed")
		c.backoff.Failure()
		return
	}
	c.backoff.Success()

	c.wg.Go(func() {
		socket.ReadLoop()
	})

	openTimer := time.NewTimer(c.config.RequestTimeout)
	defer openTimer.Stop()
	select {
	case <-c.readyChan():
	case <-done:
		c.finishConn(logger)
		return
	case <-openTimer.C:
		logger.Warn().Msg("websocket open handshake timed out")
		c.backoff.Failure()
		_ = socket.NetConn().Close()
		<-done
		c.finishConn(logger)
		return
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		<-done
		c.finishConn(logger)
		return
	}

	logger.Info().Str("url", dialURL).Msg("websocket connected")

	if err := c.afterConnect(ctx, logger); err != nil {
		logger.Error().Err(err).Msg("connection setup failed")
		c.backoff.Failure()
		_ = socket.NetConn().Close()
		<-done
		c.finishConn(logger)
		return
	}

	c.state.Store(StateServing)
	logger.Info().Int("topics", c.topicCount()).Msg("connection serving")

	select {
	case <-done:
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		<-done
	}
	c.finishConn(logger)
}

// afterConnect runs the post-dial sequence on the live socket: session
// options, login, topic restore, connected callback.
func (c *Client) afterConnect(ctx context.Context, logger zerolog.Logger) error {
	if si, ok := c.adapter.(SessionIniter); ok {
		if err := si.SessionInit(ctx, c); err != nil {
			return err
		}
	}

	if c.auth != nil {
		c.state.Store(StateAuthenticating)
		if err := c.auth.Login(ctx, c); err != nil {
			return err
		}
		logger.Info().Msg("authenticated")

		if bt, ok := c.auth.(BackgroundTasker); ok {
			c.tasksOnce.Do(func() {
				for _, t := range bt.BackgroundTasks() {
					c.tasks.AddTask(ctx, t)
				}
			})
		}
	}

	c.state.Store(StateSubscribing)
	if err := c.resubscribe(ctx); err != nil {
		return err
	}

	c.cbMu.RLock()
	cb := c.onConnected
	c.cbMu.RUnlock()
	if cb != nil {
		if err := c.runConnectedCallback(ctx, cb); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) runConnectedCallback(ctx context.Context, cb func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NewExchangeError(c.adapter.Name(), core.ErrorTypeUsage, 0,
				fmt.Sprintf("connected callback panicked: %v", r))
		}
	}()
	return cb(ctx)
}

// finishConn tears the connection state down after the socket is gone:
// in-flight requests are rejected and the disconnected callback fires.
func (c *Client) finishConn(logger zerolog.Logger) {
	c.mu.Lock()
	c.conn = nil
	c.connDone = nil
	c.mu.Unlock()

	if n := c.pending.Fail(core.ErrDisconnected); n > 0 {
		logger.Debug().Int("pending", n).Msg("rejected in-flight requests")
	}

	c.cbMu.RLock()
	cb := c.onDisconnected
	c.cbMu.RUnlock()
	if cb != nil {
		c.safeCallback(func() { cb() })
	}
	if !c.closed.Load() {
		c.state.Store(StateConnecting)
	}
}

// resubscribe re-applies the full authoritative topic set on a fresh
// connection. Venues forget subscriptions when the socket drops.
func (c *Client) resubscribe(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	topics := c.Topics()
	if len(topics) == 0 {
		return nil
	}
	if err := c.sendSubscribe(ctx, topics); err != nil {
		return err
	}
	c.logger.Info().Int("topics", len(topics)).Msg("subscriptions restored")
	return nil
}

func (c *Client) sendSubscribe(ctx context.Context, topics []string) error {
	reqs, err := c.adapter.BuildSubscribe(topics)
	if err != nil {
		return core.NewExchangeError(c.adapter.Name(), core.ErrorTypeSubscription, 0, err.Error())
	}
	return c.sendBatches(ctx, reqs)
}

func (c *Client) sendUnsubscribe(ctx context.Context, topics []string) error {
	reqs, err := c.adapter.BuildUnsubscribe(topics)
	if err != nil {
		return core.NewExchangeError(c.adapter.Name(), core.ErrorTypeSubscription, 0, err.Error())
	}
	return c.sendBatches(ctx, reqs)
}

// sendBatches sends subscription batches sequentially and requires every
// acknowledgement to succeed. A failing batch aborts the remainder;
// batches already acknowledged are not rolled back.
func (c *Client) sendBatches(ctx context.Context, reqs []*core.Request) error {
	for _, req := range reqs {
		frame, err := c.Request(ctx, req, c.config.RequestTimeout)
		if err != nil {
			return c.subscriptionError(req, err)
		}
		if err := c.adapter.AckError(req, frame); err != nil {
			return c.subscriptionError(req, err)
		}
	}
	return nil
}

func (c *Client) subscriptionError(req *core.Request, err error) error {
	if e, ok := err.(*core.ExchangeError); ok {
		return e
	}
	return &core.ExchangeError{
		Type:      core.ErrorTypeSubscription,
		Message:   err.Error(),
		RawError:  req.Topics,
		Exchange:  c.adapter.Name(),
		Timestamp: time.Now(),
	}
}

// send writes raw bytes to the socket, waiting for a live connection
// first so callers spanning a reconnect gap do not fail spuriously.
func (c *Client) send(ctx context.Context, data []byte) error {
	if err := c.waitReady(ctx, sendReadyWait); err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return core.ErrNotConnected
	}
	return conn.WriteMessage(gws.OpcodeText, data)
}

func (c *Client) dialURL(ctx context.Context) (string, error) {
	url := c.config.URL
	if url == "" {
		var err error
		url, err = c.adapter.URL(c.meta.Market, c.auth != nil)
		if err != nil {
			return "", err
		}
	}
	if c.auth != nil {
		return c.auth.Prepare(ctx, url)
	}
	return url, nil
}

func (c *Client) waitReady(ctx context.Context, limit time.Duration) error {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case <-c.readyChan():
		return nil
	case <-timer.C:
		return core.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopChan:
		return core.ErrClientClosed
	}
}

func (c *Client) readyChan() chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Client) isReady() bool {
	select {
	case <-c.readyChan():
		return true
	default:
		return false
	}
}

func (c *Client) isStopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// sleepOrStopped waits d and reports false if the client stopped first.
func (c *Client) sleepOrStopped(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.stopChan:
		return false
	}
}

func (c *Client) missingTopics(topics []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fresh := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := c.topics[t]; !ok {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

func (c *Client) knownTopics(topics []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	present := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := c.topics[t]; ok {
			present = append(present, t)
		}
	}
	return present
}

func (c *Client) topicCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.topics)
}

// dispatch fans one data message out to every registered callback and
// waits for all of them. The read loop does not advance until they
// return, so a slow callback stalls further receives.
func (c *Client) dispatch(data []byte) {
	c.cbMu.RLock()
	cbs := make([]MessageHandler, 0, len(c.msgCallbacks))
	for _, cb := range c.msgCallbacks {
		cbs = append(cbs, cb)
	}
	c.cbMu.RUnlock()

	if len(cbs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, cb := range cbs {
		wg.Go(func() {
			c.safeCallback(func() { cb(c.meta, data) })
		})
	}
	wg.Wait()
}

func (c *Client) safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Any("panic", r).Msg("callback panicked")
		}
	}()
	fn()
}

func (c *Client) deadline() time.Duration {
	return c.config.HeartbeatInterval + c.config.HeartbeatTimeout
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	c := h.client

	c.mu.Lock()
	c.conn = socket
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()

	_ = socket.SetDeadline(time.Now().Add(c.deadline()))
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	c := h.client

	c.mu.Lock()
	c.ready = make(chan struct{})
	done := c.connDone
	c.connDone = nil
	c.mu.Unlock()

	if c.forced.Load() {
		c.logger.Warn().Msg("websocket closed by watchdog")
	} else {
		c.logger.Warn().Err(err).Msg("websocket disconnected")
	}

	if done != nil {
		close(done)
	}
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.client.deadline()))
	_ = socket.WritePong(nil)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {
	c := h.client
	_ = socket.SetDeadline(time.Now().Add(c.deadline()))
	select {
	case c.pongSignal <- struct{}{}:
	default:
	}
}

// OnMessage decodes and routes one inbound frame. Frames are handled
// strictly in receive order; data callbacks complete before the next
// frame is read.
func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	c := h.client

	_ = socket.SetDeadline(time.Now().Add(c.deadline()))

	data := bytes.Clone(message.Bytes())
	if len(data) == 0 {
		return
	}

	frame, err := c.adapter.DecodeFrame(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("data", string(data)).Msg("undecodable frame")
		return
	}

	switch frame.Kind {
	case core.FrameData:
		c.dataCount.Add(1)
		c.dispatch(frame.Raw)
	case core.FrameAck, core.FramePong:
		if frame.ID == "" || !c.pending.Resolve(frame.ID, frame) {
			c.logger.Debug().
				Str("kind", frame.Kind.String()).
				Str("id", frame.ID).
				Msg("unmatched control frame")
		}
	case core.FramePing:
		select {
		case c.heartbeatDemand <- struct{}{}:
		default:
		}
	case core.FrameInfo:
		c.logger.Debug().Str("data", string(frame.Raw)).Msg("info frame")
	case core.FrameError:
		c.logger.Warn().Err(frame.Err).Str("data", string(frame.Raw)).Msg("exchange error frame")
	}
}
