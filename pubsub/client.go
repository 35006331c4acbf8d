package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-twitch/core"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribing
	StateUnsubscribing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribing:
		return "subscribing"
	case StateUnsubscribing:
		return "unsubscribing"
	default:
		return "disconnected"
	}
}

var (
	errPongTimeout     = errors.New("pubsub: no PONG within timeout")
	errServerReconnect = errors.New("pubsub: server requested reconnect")
)

type Config struct {
	URL           string
	PingInterval  time.Duration
	PongTimeout   time.Duration
	ListenTimeout time.Duration
	AutoReconnect bool
	// MaxReconnectAttempts bounds consecutive failed redials; zero retries forever.
	MaxReconnectAttempts int
	Backoff              core.BackoffScheduler
}

func DefaultConfig() Config {
	return ConfigFromCore(core.DefaultConfig().PubSub)
}

func ConfigFromCore(cfg core.PubSubConfig) Config {
	return Config{
		URL:           cfg.URL,
		PingInterval:  cfg.PingInterval,
		PongTimeout:   cfg.PongTimeout,
		ListenTimeout: cfg.ListenTimeout,
		AutoReconnect: cfg.AutoReconnect,
		Backoff: core.ExponentialBackoffScheduler{
			Initial: cfg.ReconnectInitial,
			Max:     cfg.ReconnectMax,
		},
	}
}

// Message is one decoded MESSAGE frame. Payload holds the typed value from
// DecodePayload.
type Message struct {
	Topic   string
	Raw     json.RawMessage
	Payload any
}

type Handler func(msg Message)

type Option func(*Client)

func WithDialer(dialer Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(c *Client) {
		c.loggerProvider = provider
	}
}

// WithErrorHandler receives failures that have no caller to return to:
// connection loss, failed re-subscriptions, undecodable payloads and frames
// that break the protocol.
func WithErrorHandler(handler func(error)) Option {
	return func(c *Client) {
		c.onError = handler
	}
}

func WithNonceFunc(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newNonce = fn
		}
	}
}

type subscription struct {
	topic   string
	token   string
	handler Handler
	box     *mailbox[Message]
}

type pendingReply struct {
	kind     string
	sub      *subscription
	internal bool
	done     chan error
}

type session struct {
	conn Conn
	stop chan struct{}
	pong chan struct{}
}

type Client struct {
	config         Config
	dialer         Dialer
	clock          clockwork.Clock
	logger         core.Logger
	loggerProvider core.LoggerProvider
	onError        func(error)
	errs           *mailbox[error]
	newNonce       func() string

	connectMu sync.Mutex
	writeMu   sync.Mutex

	mu         sync.Mutex
	session    *session
	connecting bool
	subs       map[string]*subscription
	pending    map[string]*pendingReply
	runCtx     context.Context
	runCancel  context.CancelFunc
	wg         sync.WaitGroup
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		cfg.URL = core.DefaultPubSubURL
	}
	if cfg.PingInterval < 0 || cfg.PongTimeout < 0 || cfg.ListenTimeout < 0 {
		return nil, errors.New("pubsub: intervals must be >= 0")
	}
	if cfg.Backoff == nil {
		cfg.Backoff = core.ExponentialBackoffScheduler{}
	}
	c := &Client{
		config:   cfg,
		dialer:   WebsocketDialer{},
		clock:    clockwork.NewRealClock(),
		newNonce: uuid.NewString,
		subs:     map[string]*subscription{},
		pending:  map[string]*pendingReply{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.errs = newMailbox(func(err error) {
		if c.onError != nil {
			c.onError(err)
		}
	})
	provider, logger := glog.Resolve("twitch.pubsub", c.loggerProvider, c.logger)
	c.loggerProvider = provider
	c.logger = glog.Ensure(logger)
	return c, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		if c.connecting {
			return StateConnecting
		}
		return StateDisconnected
	}
	unlistening := false
	for _, reply := range c.pending {
		if reply.kind == FrameListen {
			return StateSubscribing
		}
		unlistening = true
	}
	if unlistening {
		return StateUnsubscribing
	}
	return StateConnected
}

// Topics lists the active subscriptions.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		out = append(out, topic)
	}
	return out
}

// Connect dials the socket if it is not already open. Active subscriptions
// are re-issued on the new connection.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil
	}
	if c.runCtx == nil || c.runCtx.Err() != nil {
		c.runCtx, c.runCancel = context.WithCancel(context.Background())
	}
	run := c.runCtx
	c.mu.Unlock()
	_, err := c.dial(ctx, run)
	return err
}

// Close drops the socket, stops reconnection, fails waiting requests and
// forgets every subscription. Messages not yet handed to a handler are
// dropped. Close may be called from a handler, and the client may be
// connected again afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.runCancel != nil {
		c.runCancel()
	}
	c.runCtx, c.runCancel = nil, nil
	sess := c.session
	c.session = nil
	if sess != nil {
		close(sess.stop)
	}
	pending := c.takePendingLocked()
	for _, sub := range c.subs {
		sub.box.close()
	}
	c.subs = map[string]*subscription{}
	c.mu.Unlock()

	var err error
	if sess != nil {
		err = sess.conn.Close()
	}
	failPending(pending, core.NewError(core.KindTransportFailure, "pubsub", "client closed"))
	c.wg.Wait()
	return err
}

// WithConnection connects, runs fn and always closes the client afterwards.
// Cancelling ctx closes the socket even while fn is still running.
func (c *Client) WithConnection(ctx context.Context, fn func(ctx context.Context, client *Client) error) error {
	if fn == nil {
		return core.NewError(core.KindInvalidRequest, "pubsub", "connection callback is required")
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		c.dropSession()
	})
	defer func() {
		stop()
		_ = c.Close()
	}()
	return fn(ctx, c)
}

// Subscribe sends LISTEN for topic and waits for its RESPONSE. A rejected,
// timed out or cancelled LISTEN fails only this subscription.
func (c *Client) Subscribe(ctx context.Context, topic string, authToken string, handler Handler) error {
	const op = "pubsub listen"
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return core.NewError(core.KindInvalidRequest, op, "topic is required")
	}
	if handler == nil {
		return core.NewError(core.KindInvalidRequest, op, "handler is required")
	}
	c.mu.Lock()
	taken := c.topicTakenLocked(topic)
	c.mu.Unlock()
	if taken {
		return core.NewError(core.KindInvalidRequest, op, "already subscribed to "+topic)
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.roundTrip(ctx, op, FrameListen, &subscription{
		topic:   topic,
		token:   strings.TrimSpace(authToken),
		handler: handler,
	})
}

// Unsubscribe sends UNLISTEN for topic and waits for its RESPONSE. When the
// socket is down the subscription is dropped locally.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	const op = "pubsub unlisten"
	topic = strings.TrimSpace(topic)
	c.mu.Lock()
	sub, ok := c.subs[topic]
	if !ok {
		c.mu.Unlock()
		return core.NewError(core.KindInvalidRequest, op, "not subscribed to "+topic)
	}
	if c.session == nil {
		sub.box.close()
		delete(c.subs, topic)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.roundTrip(ctx, op, FrameUnlisten, &subscription{topic: topic, handler: sub.handler})
}

func (c *Client) roundTrip(ctx context.Context, op string, kind string, sub *subscription) error {
	c.mu.Lock()
	sess := c.session
	if sess == nil {
		c.mu.Unlock()
		return core.NewError(core.KindTransportFailure, op, "not connected")
	}
	// The topic is reserved by the pending entry, so a concurrent LISTEN for
	// it is refused here rather than replacing this handler later.
	if kind == FrameListen && c.topicTakenLocked(sub.topic) {
		c.mu.Unlock()
		return core.NewError(core.KindInvalidRequest, op, "already subscribed to "+sub.topic)
	}
	nonce := c.newNonce()
	reply := &pendingReply{kind: kind, sub: sub, done: make(chan error, 1)}
	c.pending[nonce] = reply
	c.mu.Unlock()

	frame := outboundFrame{Type: kind, Nonce: nonce, Data: &outboundTopics{Topics: []string{sub.topic}}}
	if kind == FrameListen {
		frame.Data.AuthToken = sub.token
	}
	if err := c.write(sess, frame); err != nil {
		c.dropPending(nonce)
		c.connectionLost(sess, err)
		return core.WrapError(core.KindTransportFailure, op, "write failed", err)
	}

	var timeout <-chan time.Time
	if c.config.ListenTimeout > 0 {
		timer := c.clock.NewTimer(c.config.ListenTimeout)
		defer timer.Stop()
		timeout = timer.Chan()
	}
	select {
	case err := <-reply.done:
		return err
	case <-ctx.Done():
		c.dropPending(nonce)
		return core.WrapError(core.KindTransportFailure, op, "cancelled waiting for response", ctx.Err())
	case <-timeout:
		c.dropPending(nonce)
		return core.NewError(core.KindTransportFailure, op, "no response for "+sub.topic)
	}
}

// dial opens a session and re-issues active subscriptions. handedOff reports
// that a failed re-subscribe already passed the session to connectionLost,
// which schedules its own reconnect.
func (c *Client) dial(ctx context.Context, run context.Context) (handedOff bool, err error) {
	const op = "pubsub connect"
	c.mu.Lock()
	c.connecting = true
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.config.URL)
	if err != nil {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
		return false, core.WrapError(core.KindTransportFailure, op, "dial failed", err)
	}
	sess := &session{conn: conn, stop: make(chan struct{}), pong: make(chan struct{}, 1)}

	c.mu.Lock()
	c.connecting = false
	if run.Err() != nil || c.runCtx != run {
		c.mu.Unlock()
		_ = conn.Close()
		return false, core.NewError(core.KindTransportFailure, op, "client closed")
	}
	c.session = sess
	frames := c.resubscribeLocked()
	c.wg.Add(2)
	c.mu.Unlock()

	go c.readLoop(sess)
	go c.keepalive(sess)

	c.logger.Info("pubsub connected", "url", c.config.URL, "resubscribed", len(frames))
	for _, frame := range frames {
		if err := c.write(sess, frame); err != nil {
			c.connectionLost(sess, err)
			return true, core.WrapError(core.KindTransportFailure, op, "re-subscribe failed", err)
		}
	}
	return false, nil
}

// resubscribeLocked issues one internal LISTEN per active subscription.
func (c *Client) resubscribeLocked() []outboundFrame {
	frames := make([]outboundFrame, 0, len(c.subs))
	for _, sub := range c.subs {
		nonce := c.newNonce()
		c.pending[nonce] = &pendingReply{kind: FrameListen, sub: sub, internal: true, done: make(chan error, 1)}
		frames = append(frames, outboundFrame{
			Type:  FrameListen,
			Nonce: nonce,
			Data:  &outboundTopics{Topics: []string{sub.topic}, AuthToken: sub.token},
		})
	}
	return frames
}

func (c *Client) write(sess *session, frame outboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sess.conn.WriteMessage(data)
}

func (c *Client) readLoop(sess *session) {
	defer c.wg.Done()
	for {
		data, err := sess.conn.ReadMessage()
		if err != nil {
			c.connectionLost(sess, err)
			return
		}
		c.handleFrame(sess, data)
	}
}

func (c *Client) handleFrame(sess *session, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.report(core.WrapError(core.KindProtocolViolation, "pubsub frame", "undecodable frame", err))
		return
	}
	switch frame.Type {
	case FramePong:
		select {
		case sess.pong <- struct{}{}:
		default:
		}
	case FrameReconnect:
		c.connectionLost(sess, errServerReconnect)
	case FrameResponse:
		c.handleResponse(frame)
	case FrameMessage:
		c.handleMessage(frame)
	default:
		c.report(core.NewError(core.KindProtocolViolation, "pubsub frame", "unknown frame type "+frame.Type))
	}
}

func (c *Client) handleResponse(frame inboundFrame) {
	c.mu.Lock()
	reply, ok := c.pending[frame.Nonce]
	if !ok {
		c.mu.Unlock()
		c.report(core.NewError(core.KindProtocolViolation, "pubsub response", "unknown nonce "+frame.Nonce))
		return
	}
	delete(c.pending, frame.Nonce)
	topic := reply.sub.topic
	if frame.Error == "" {
		switch reply.kind {
		case FrameListen:
			if reply.sub.box == nil {
				reply.sub.box = newMailbox[Message](reply.sub.handler)
			}
			c.subs[topic] = reply.sub
		case FrameUnlisten:
			c.forgetLocked(topic)
		}
	} else if reply.internal {
		c.forgetLocked(topic)
	}
	c.mu.Unlock()

	var err error
	if frame.Error != "" {
		op := "pubsub listen"
		if reply.kind == FrameUnlisten {
			op = "pubsub unlisten"
		}
		err = responseError(op, topic, frame.Error)
	}
	if reply.internal {
		if err != nil {
			c.report(err)
		}
		return
	}
	reply.done <- err
}

func (c *Client) handleMessage(frame inboundFrame) {
	var data messageData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		c.report(core.WrapError(core.KindProtocolViolation, "pubsub message", "undecodable message envelope", err))
		return
	}
	c.mu.Lock()
	sub, ok := c.subs[data.Topic]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("pubsub message for inactive topic", "topic", data.Topic)
		return
	}
	raw := []byte(data.Message)
	payload, err := DecodePayload(data.Topic, raw)
	if err != nil {
		c.report(err)
		return
	}
	sub.box.push(Message{Topic: data.Topic, Raw: json.RawMessage(raw), Payload: payload})
}

func (c *Client) forgetLocked(topic string) {
	if sub, ok := c.subs[topic]; ok {
		sub.box.close()
		delete(c.subs, topic)
	}
}

// topicTakenLocked reports an active subscription or a LISTEN in flight.
func (c *Client) topicTakenLocked(topic string) bool {
	if _, ok := c.subs[topic]; ok {
		return true
	}
	for _, reply := range c.pending {
		if reply.kind == FrameListen && reply.sub.topic == topic {
			return true
		}
	}
	return false
}

// keepalive pings every PingInterval and drops the connection when no PONG
// arrives within PongTimeout.
func (c *Client) keepalive(sess *session) {
	defer c.wg.Done()
	if c.config.PingInterval <= 0 {
		<-sess.stop
		return
	}
	ticker := c.clock.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	var (
		timer    clockwork.Timer
		deadline <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		deadline = nil
	}
	defer stopTimer()

	for {
		select {
		case <-sess.stop:
			return
		case <-ticker.Chan():
			if deadline != nil {
				continue
			}
			if err := c.write(sess, outboundFrame{Type: FramePing}); err != nil {
				c.connectionLost(sess, err)
				return
			}
			if c.config.PongTimeout > 0 {
				timer = c.clock.NewTimer(c.config.PongTimeout)
				deadline = timer.Chan()
			}
		case <-sess.pong:
			stopTimer()
		case <-deadline:
			c.connectionLost(sess, errPongTimeout)
			return
		}
	}
}

// connectionLost tears sess down once. Later calls for the same or an older
// session are no-ops.
func (c *Client) connectionLost(sess *session, cause error) {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	close(sess.stop)
	pending := c.takePendingLocked()
	run := c.runCtx
	reconnect := c.config.AutoReconnect && run != nil && run.Err() == nil
	if reconnect {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	_ = sess.conn.Close()
	lost := core.WrapError(core.KindTransportFailure, "pubsub", "connection lost", cause)
	failPending(pending, lost)
	c.report(lost)
	if reconnect {
		go c.reconnect(run)
	}
}

// dropSession closes the socket without reconnecting.
func (c *Client) dropSession() {
	c.mu.Lock()
	if c.runCancel != nil {
		c.runCancel()
	}
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		c.connectionLost(sess, context.Canceled)
	}
}

func (c *Client) reconnect(run context.Context) {
	defer c.wg.Done()
	for attempt := 1; ; attempt++ {
		if max := c.config.MaxReconnectAttempts; max > 0 && attempt > max {
			c.report(core.NewError(core.KindTransportFailure, "pubsub reconnect", "reconnect attempts exhausted"))
			return
		}
		delay := c.config.Backoff.NextDelay(attempt)
		c.logger.Info("pubsub reconnecting", "attempt", attempt, "delay_ms", delay.Milliseconds())
		select {
		case <-run.Done():
			return
		case <-c.clock.After(delay):
		}

		c.connectMu.Lock()
		c.mu.Lock()
		connected := c.session != nil
		c.mu.Unlock()
		var (
			err       error
			handedOff bool
		)
		if !connected {
			handedOff, err = c.dial(run, run)
		}
		c.connectMu.Unlock()
		if err == nil || run.Err() != nil {
			return
		}
		c.report(err)
		if handedOff {
			return
		}
	}
}

func (c *Client) dropPending(nonce string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, nonce)
}

func (c *Client) takePendingLocked() map[string]*pendingReply {
	pending := c.pending
	c.pending = map[string]*pendingReply{}
	return pending
}

func failPending(pending map[string]*pendingReply, err error) {
	for _, reply := range pending {
		if reply.internal {
			continue
		}
		reply.done <- err
	}
}

func (c *Client) report(err error) {
	if err == nil {
		return
	}
	fields := []any{"error", err.Error()}
	if kind := core.KindOf(err); kind != "" {
		fields = append(fields, "error_kind", string(kind))
	}
	c.logger.Warn("pubsub error", fields...)
	c.errs.push(err)
}
