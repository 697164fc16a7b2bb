// ABOUTME: The bridge client: connection state machine, reconnect backoff,
// ABOUTME: request correlation, timeout enforcement and inbound dispatch.

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// maxReconnectAttempts caps consecutive automatic reconnects after
	// an established connection drops. A failed explicit Connect never
	// schedules a retry.
	maxReconnectAttempts = 3

	// reconnectBaseDelay is the first backoff delay; it doubles per
	// attempt (1s, 2s, 4s).
	reconnectBaseDelay = time.Second

	// requestTimeout bounds how long a request may stay unanswered.
	requestTimeout = 30 * time.Second

	// dialTimeout bounds transport dial and handshake.
	dialTimeout = 15 * time.Second

	// recordTimeout bounds history writes so a stuck disk never blocks a send.
	recordTimeout = 5 * time.Second
)

// ErrMissingURLResolver indicates Options lacked a URL resolver.
var ErrMissingURLResolver = errors.New("url resolver is required")

// ErrMissingDialect indicates Options lacked a wire dialect.
var ErrMissingDialect = errors.New("dialect is required")

// connState is the session's position in the connection state machine.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Message direction constants for Record.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Record is one history entry for a sent or received message.
type Record struct {
	Direction string
	Text      string
	MessageID string
	At        time.Time
}

// MessageRecorder persists message traffic. Implementations must be safe
// for concurrent use. Recording failures are logged, never fatal.
type MessageRecorder interface {
	Record(ctx context.Context, rec Record) error
}

// SeenCache suppresses duplicate inbound responses by message ID.
// CheckAndMark returns true when the key was already seen.
type SeenCache interface {
	CheckAndMark(key string) bool
}

// Options configures a Client. ResolveURL and Dialect are required.
type Options struct {
	// ResolveURL yields the gateway URL; it is called once per
	// connection attempt.
	ResolveURL func() string

	// Dialect selects the wire protocol.
	Dialect Dialect

	// Transport opens connections. Nil selects the WebSocket transport.
	Transport Transport

	// ChannelID and AccountID are stamped on every outbound message.
	ChannelID string
	AccountID string

	// Recorder, when set, persists message traffic.
	Recorder MessageRecorder

	// Seen, when set, drops replayed responses by message ID.
	Seen SeenCache

	// OnEvent receives unsolicited gateway events. Nil is a no-op.
	OnEvent func(Event)

	// DialTimeout bounds transport dial and handshake. Zero keeps the
	// default of 15s.
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Client is a stateful session manager wrapping one gateway connection at
// a time. It owns the transport handle exclusively: only the client writes
// to or closes it. All exported methods are safe for concurrent use;
// inbound frames for a session are dispatched strictly in arrival order
// by the single connection read loop.
type Client struct {
	resolveURL func() string
	dialect    Dialect
	transport  Transport
	channelID  string
	accountID  string
	recorder   MessageRecorder
	seen       SeenCache
	onEvent    func(Event)
	logger     *slog.Logger
	feed       *connectivityFeed

	// Timing knobs hold the package constants; tests shrink them.
	requestTimeout time.Duration
	baseDelay      time.Duration
	maxAttempts    int
	dialTimeout    time.Duration
	newID          func() string

	mu       sync.Mutex
	state    connState
	conn     Conn
	gen      int // connection generation, guards against stale events
	attempts int
	retry    *time.Timer
	pending  map[string]*pendingRequest // keyed dialect
	slot     *pendingRequest            // single-flight dialect
}

// New creates a bridge client. The session starts Disconnected; the first
// Connect or SendMessage establishes it.
func New(opts Options) (*Client, error) {
	if opts.ResolveURL == nil {
		return nil, ErrMissingURLResolver
	}
	if opts.Dialect == nil {
		return nil, ErrMissingDialect
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "bridge")
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewWebSocketTransport()
	}
	dialTO := dialTimeout
	if opts.DialTimeout > 0 {
		dialTO = opts.DialTimeout
	}

	return &Client{
		resolveURL:     opts.ResolveURL,
		dialect:        opts.Dialect,
		transport:      transport,
		channelID:      opts.ChannelID,
		accountID:      opts.AccountID,
		recorder:       opts.Recorder,
		seen:           opts.Seen,
		onEvent:        opts.OnEvent,
		logger:         logger,
		feed:           newConnectivityFeed(logger),
		requestTimeout: requestTimeout,
		baseDelay:      reconnectBaseDelay,
		maxAttempts:    maxReconnectAttempts,
		dialTimeout:    dialTO,
		newID:          func() string { return uuid.New().String() },
		pending:        make(map[string]*pendingRequest),
	}, nil
}

// IsConnected reports whether the session is currently Connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// SubscribeConnectivity returns a channel that receives the connectivity
// value on every transition into or out of Connected, plus a cancel
// function. Late subscribers receive only future transitions.
func (c *Client) SubscribeConnectivity() (<-chan bool, func()) {
	return c.feed.subscribe()
}

// Connect establishes the session and reports the resulting connectivity.
// It is a no-op returning the current connectivity when the session is
// already Connecting or Connected. A failed Connect leaves the session
// Disconnected and does not schedule a reconnect.
func (c *Client) Connect(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != stateDisconnected {
		connected := c.state == stateConnected
		c.mu.Unlock()
		return connected
	}
	c.state = stateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	url := c.resolveURL()

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, err := c.transport.Dial(dialCtx, url)
	cancel()
	if err != nil {
		c.logger.Warn("gateway dial failed", "url", url, "error", err)
		c.connectFailed(gen)
		return false
	}

	hsCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	err = c.dialect.Handshake(hsCtx, conn)
	cancel()
	if err != nil {
		c.logger.Warn("gateway handshake failed", "url", url, "error", err)
		conn.Close()
		c.connectFailed(gen)
		return false
	}

	c.mu.Lock()
	if c.gen != gen || c.state != stateConnecting {
		// Disconnect raced the dial; drop the fresh connection.
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.state = stateConnected
	c.attempts = 0
	c.mu.Unlock()

	// Publish before the read loop starts: a connection that dies on its
	// first read must not get its offline emission ordered ahead of this one.
	c.feed.publish(true)
	go c.readLoop(conn, gen)
	c.logger.Info("connected to gateway", "url", url, "dialect", c.dialect.Name())
	return true
}

// connectFailed rolls a failed connection attempt back to Disconnected.
func (c *Client) connectFailed(gen int) {
	c.mu.Lock()
	if c.gen == gen && c.state == stateConnecting {
		c.state = stateDisconnected
	}
	c.mu.Unlock()
	c.feed.publish(false)
}

// Disconnect tears the session down regardless of prior state. It cancels
// any scheduled reconnect, resets the attempt counter, and force-fails all
// pending requests. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.attempts = 0
	c.gen++
	wasConnected := c.state == stateConnected
	c.state = stateDisconnected
	conn := c.conn
	c.conn = nil
	orphans := c.drainPendingLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, p := range orphans {
		p.resolve(nil)
	}
	c.feed.publish(false)

	if wasConnected {
		c.logger.Info("disconnected from gateway", "failed_requests", len(orphans))
	}
}

// SendMessage sends text to the gateway and waits for the correlated
// reply. It connects first when the session is down. The result is nil on
// any failure: unreachable gateway, timeout, disconnect mid-flight, or a
// superseding send on the single-flight dialect. Failures never propagate
// as errors; the connectivity signal is the out-of-band failure channel.
func (c *Client) SendMessage(ctx context.Context, text string) *Response {
	if !c.IsConnected() {
		if !c.Connect(ctx) {
			c.logger.Warn("send aborted, gateway unreachable")
			return nil
		}
	}

	id := c.newID()
	p := newPendingRequest(id)

	c.mu.Lock()
	if c.state != stateConnected {
		// Dropped between the connectivity check and registration.
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	gen := c.gen
	if c.dialect.SingleFlight() {
		if prev := c.slot; prev != nil {
			c.slot = nil
			prev.resolve(nil)
			c.logger.Warn("superseding unanswered request")
		}
		c.slot = p
	} else {
		c.pending[id] = p
	}
	p.timer = time.AfterFunc(c.requestTimeout, func() { c.expire(p, gen) })
	c.mu.Unlock()

	data, err := c.dialect.EncodeSend(id, Outbound{
		Text:      text,
		ChannelID: c.channelID,
		AccountID: c.accountID,
	})
	if err != nil {
		c.logger.Error("encoding request failed", "error", err)
		c.abandon(p, gen)
		return nil
	}

	if err := conn.Send(ctx, data); err != nil {
		c.logger.Warn("writing request failed", "request_id", id, "error", err)
		c.abandon(p, gen)
		c.transportClosed(gen, err)
		return nil
	}

	c.record(DirectionOutbound, text, id)

	select {
	case resp := <-p.done:
		return resp
	case <-ctx.Done():
		c.abandon(p, gen)
		return nil
	}
}

// readLoop pulls inbound frames until the connection dies. It is the only
// goroutine dispatching for its connection, so frames are processed
// strictly in arrival order.
func (c *Client) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.Receive(context.Background())
		if err != nil {
			c.transportClosed(gen, err)
			return
		}
		c.dispatch(data, gen)
	}
}

// dispatch demultiplexes one inbound frame by kind.
func (c *Client) dispatch(data []byte, gen int) {
	inbound, err := c.dialect.Decode(data)
	if err != nil {
		c.logger.Warn("discarding malformed gateway frame", "error", err)
		if c.dialect.SingleFlight() {
			// No further signal will arrive for the in-flight request.
			if p := c.takePending("", gen); p != nil {
				p.resolve(nil)
			}
		}
		return
	}

	switch inbound.Kind {
	case KindResponse:
		c.handleResponse(inbound, gen)

	case KindError:
		c.logger.Warn("gateway reported request failure",
			"request_id", inbound.RequestID,
			"error", inbound.ErrorMsg,
		)
		if p := c.takePending(inbound.RequestID, gen); p != nil {
			p.resolve(nil)
		}

	case KindEvent:
		if c.onEvent != nil {
			c.onEvent(*inbound.Event)
		} else {
			c.logger.Debug("gateway event", "event", inbound.Event.Name)
		}

	default:
		c.logger.Warn("ignoring unrecognized gateway frame")
	}
}

// handleResponse resolves the matching pending request with a normalized
// Response. Replayed and unsolicited responses are logged and dropped.
func (c *Client) handleResponse(inbound *Inbound, gen int) {
	resp := inbound.Response
	if resp.MessageID != "" && c.seen != nil && c.seen.CheckAndMark(resp.MessageID) {
		c.logger.Debug("duplicate response suppressed", "message_id", resp.MessageID)
		return
	}

	p := c.takePending(inbound.RequestID, gen)
	if p == nil {
		c.logger.Warn("response for unknown or expired request",
			"request_id", inbound.RequestID,
			"message_id", resp.MessageID,
		)
		return
	}

	p.resolve(resp)
	c.record(DirectionInbound, resp.Text, resp.MessageID)
}

// takePending removes and returns the pending request matching id, or the
// single-flight slot when the dialect is unkeyed. Returns nil when nothing
// matches or the frame belongs to a stale connection generation.
func (c *Client) takePending(id string, gen int) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return nil
	}
	if c.dialect.SingleFlight() {
		p := c.slot
		c.slot = nil
		return p
	}
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// expire is the request timeout: it removes the request from tracking and
// force-fails it if still unresolved.
func (c *Client) expire(p *pendingRequest, gen int) {
	c.removeTracking(p, gen)
	if p.resolve(nil) {
		c.logger.Warn("request timed out", "request_id", p.id)
	}
}

// abandon removes the request from tracking and fails it. Used when a
// send cannot complete or the caller's context is cancelled.
func (c *Client) abandon(p *pendingRequest, gen int) {
	c.removeTracking(p, gen)
	p.resolve(nil)
}

func (c *Client) removeTracking(p *pendingRequest, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	if c.slot == p {
		c.slot = nil
	}
	delete(c.pending, p.id)
}

// transportClosed handles a connection drop. It is idempotent: stale
// generations and already-disconnected sessions are ignored. All pending
// requests fail, and a reconnect is scheduled while attempts remain.
func (c *Client) transportClosed(gen int, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.state == stateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = stateDisconnected
	conn := c.conn
	c.conn = nil
	orphans := c.drainPendingLocked()
	delay, scheduled := c.scheduleRetryLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, p := range orphans {
		p.resolve(nil)
	}
	c.feed.publish(false)

	if scheduled {
		c.logger.Warn("gateway connection lost, reconnecting",
			"error", cause,
			"delay", delay,
			"failed_requests", len(orphans),
		)
	} else {
		c.logger.Error("gateway connection lost, giving up",
			"error", cause,
			"failed_requests", len(orphans),
		)
	}
}

// drainPendingLocked empties the registry and slot. Must be called with
// mu held; resolution happens outside the lock.
func (c *Client) drainPendingLocked() []*pendingRequest {
	orphans := make([]*pendingRequest, 0, len(c.pending)+1)
	for id, p := range c.pending {
		delete(c.pending, id)
		orphans = append(orphans, p)
	}
	if c.slot != nil {
		orphans = append(orphans, c.slot)
		c.slot = nil
	}
	return orphans
}

// scheduleRetryLocked arms the backoff timer for the next automatic
// reconnect. The delay doubles per attempt, computed before the counter
// increments: attempt 1 waits 1s, attempt 2 waits 2s, attempt 3 waits 4s.
// Must be called with mu held.
func (c *Client) scheduleRetryLocked() (time.Duration, bool) {
	if c.attempts >= c.maxAttempts {
		return 0, false
	}
	delay := c.baseDelay << c.attempts
	c.attempts++
	gen := c.gen
	c.retry = time.AfterFunc(delay, func() { c.retryConnect(gen) })
	return delay, true
}

// retryConnect is the backoff timer callback. A timer that already fired
// when Disconnect called Stop still runs; the generation check keeps it
// from resurrecting a session the caller tore down. On failure the next
// attempt is chained.
func (c *Client) retryConnect(gen int) {
	c.mu.Lock()
	if c.gen != gen || c.state != stateDisconnected {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()

	if c.Connect(context.Background()) {
		return
	}

	c.mu.Lock()
	// A connect attempt consumes exactly one generation; a larger jump
	// means an explicit Disconnect raced the attempt.
	if c.gen == gen+1 && c.state == stateDisconnected {
		if delay, ok := c.scheduleRetryLocked(); ok {
			c.logger.Info("reconnect failed, retrying",
				"delay", delay,
				"attempt", c.attempts,
			)
		}
	}
	c.mu.Unlock()
}

// record persists one message when a recorder is configured.
func (c *Client) record(direction, text, messageID string) {
	if c.recorder == nil || text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := c.recorder.Record(ctx, Record{
		Direction: direction,
		Text:      text,
		MessageID: messageID,
		At:        time.Now(),
	})
	if err != nil {
		c.logger.Warn("recording message failed", "direction", direction, "error", err)
	}
}
