package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/events"
)

// State is the connection lifecycle state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// ErrNotConnected fails requests made while no socket is open, including
// requests in flight when the socket goes away
var ErrNotConnected = apperr.New(apperr.KindNetwork, "client", "not connected")

// Lifecycle notifications published on the connection bus
type (
	StateChanged struct {
		From State
		To   State
	}
	Connected struct {
		Reconnected bool
	}
	Disconnected struct {
		Err        error
		Deliberate bool
	}
	ReconnectScheduled struct {
		Attempt int
		Delay   time.Duration
	}
	ReconnectFailed struct {
		Attempts int
		Err      error
	}
)

var (
	TopicStateChanged      = events.NewTopic[StateChanged]("client.state")
	TopicConnected         = events.NewTopic[Connected]("client.connected")
	TopicDisconnected      = events.NewTopic[Disconnected]("client.disconnected")
	TopicReconnectSchedule = events.NewTopic[ReconnectScheduled]("client.reconnect_scheduled")
	TopicReconnectFailed   = events.NewTopic[ReconnectFailed]("client.reconnect_failed")
	// TopicMessage carries every server push that is not an ack. Handlers run
	// on the read loop and must not block on Request.
	TopicMessage = events.NewTopic[events.Message]("client.message")
)

type ConnConfig struct {
	URL            string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Backoff        Backoff
}

func DefaultConnConfig(url string) ConnConfig {
	return ConnConfig{
		URL:            url,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 5 * time.Second,
		Backoff:        DefaultBackoff(),
	}
}

// Conn owns the single socket to the server and reconnects it with backoff
type Conn struct {
	cfg    ConnConfig
	dialer Dialer
	clock  clockwork.Clock
	bus    *events.Bus

	mu            sync.Mutex
	state         State
	transport     Transport
	gen           uint64
	attempt       int
	lastErr       error
	userClosed    bool
	everConnected bool
	timer         clockwork.Timer
	pending       map[string]chan events.Message
}

type ConnOption func(*Conn)

func WithClock(c clockwork.Clock) ConnOption {
	return func(conn *Conn) { conn.clock = c }
}

func WithBus(b *events.Bus) ConnOption {
	return func(conn *Conn) { conn.bus = b }
}

func NewConn(cfg ConnConfig, dialer Dialer, opts ...ConnOption) *Conn {
	c := &Conn{
		cfg:     cfg,
		dialer:  dialer,
		clock:   clockwork.NewRealClock(),
		bus:     events.NewBus(),
		state:   StateDisconnected,
		pending: make(map[string]chan events.Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) Bus() *events.Bus {
	return c.bus
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt is the number of reconnection attempts made since the last success
func (c *Conn) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

func (c *Conn) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect opens the socket. It is a no-op while connecting or connected.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.userClosed = false
	c.stopTimerLocked()
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	return c.dial(ctx)
}

// Retry resets the attempt counter after ReconnectFailed and connects again
func (c *Conn) Retry(ctx context.Context) error {
	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Disconnect closes the socket, cancels any pending reconnect and fails
// in-flight requests with ErrNotConnected
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.userClosed = true
	c.stopTimerLocked()
	t := c.transport
	c.transport = nil
	c.gen++
	c.failPendingLocked()
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if t != nil {
		if err := t.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
			log.Debug().Err(err).Msg("close after disconnect")
		}
	}
	notify()
	if t != nil {
		events.Publish(c.bus, TopicDisconnected, Disconnected{Deliberate: true})
	}
}

func (c *Conn) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	t, err := c.dialer.Dial(dialCtx, c.cfg.URL)
	cancel()

	c.mu.Lock()
	if c.userClosed || c.state != StateConnecting {
		c.mu.Unlock()
		if t != nil {
			_ = t.Close(websocket.StatusNormalClosure, "client disconnect")
		}
		return ErrNotConnected
	}

	if err != nil {
		c.lastErr = err
		notify := c.setStateLocked(StateDisconnected)
		after := c.scheduleReconnectLocked(err)
		c.mu.Unlock()
		notify()
		after()
		log.Warn().Err(err).Str("url", c.cfg.URL).Msg("connect failed")
		return apperr.Wrap(apperr.KindNetwork, "Connect", err)
	}

	c.transport = t
	c.attempt = 0
	c.lastErr = nil
	c.gen++
	gen := c.gen
	reconnected := c.everConnected
	c.everConnected = true
	notify := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.readLoop(gen, t)

	notify()
	log.Info().Str("url", c.cfg.URL).Bool("reconnected", reconnected).Msg("connected")
	events.Publish(c.bus, TopicConnected, Connected{Reconnected: reconnected})
	return nil
}

func (c *Conn) reconnect() {
	c.mu.Lock()
	if c.userClosed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	_ = c.dial(context.Background())
}

// scheduleReconnectLocked arms the next attempt, or reports that the attempts
// are used up. The returned func publishes and must run after unlocking.
func (c *Conn) scheduleReconnectLocked(cause error) func() {
	if c.userClosed {
		return func() {}
	}
	c.attempt++
	attempt := c.attempt
	if !c.cfg.Backoff.Allowed(attempt) {
		attempts := attempt - 1
		log.Error().Err(cause).Int("attempts", attempts).Msg("reconnect attempts exhausted")
		return func() {
			events.Publish(c.bus, TopicReconnectFailed, ReconnectFailed{Attempts: attempts, Err: cause})
		}
	}

	delay := c.cfg.Backoff.Delay(attempt)
	c.timer = c.clock.AfterFunc(delay, c.reconnect)
	log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
	return func() {
		events.Publish(c.bus, TopicReconnectSchedule, ReconnectScheduled{Attempt: attempt, Delay: delay})
	}
}

func (c *Conn) readLoop(gen uint64, t Transport) {
	for {
		frame, err := t.Read(context.Background())
		if err != nil {
			c.handleClosed(gen, err)
			return
		}
		msg, err := events.Decode(frame)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if msg.Type == events.EventTypeAck {
			c.resolve(msg)
			continue
		}
		events.Publish(c.bus, TopicMessage, msg)
	}
}

func (c *Conn) handleClosed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.lastErr = err
	c.failPendingLocked()
	deliberate := c.userClosed || IsDeliberateClose(err)
	notify := c.setStateLocked(StateDisconnected)
	after := func() {}
	if !deliberate {
		after = c.scheduleReconnectLocked(err)
	}
	c.mu.Unlock()

	log.Info().Err(err).Bool("deliberate", deliberate).Msg("disconnected")
	notify()
	events.Publish(c.bus, TopicDisconnected, Disconnected{Err: err, Deliberate: deliberate})
	after()
}

// Request sends a request and waits for its ack. resp, if non-nil, receives
// the ack data.
func (c *Conn) Request(ctx context.Context, typ events.EventType, req, resp any) error {
	op := string(typ)
	id := uuid.NewString()
	frame, err := events.Encode(typ, id, req)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, op, err)
	}

	c.mu.Lock()
	if c.state != StateConnected || c.transport == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ch := make(chan events.Message, 1)
	c.pending[id] = ch
	t := c.transport
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := t.Write(ctx, frame); err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, err)
	}

	timer := c.clock.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if msg.Error != nil {
			return msg.Error.Err(op)
		}
		if resp != nil && len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, resp); err != nil {
				return apperr.Wrap(apperr.KindInternal, op, err)
			}
		}
		return nil
	case <-timer.Chan():
		return apperr.New(apperr.KindTimeout, op, "no acknowledgment from server")
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindTimeout, op, ctx.Err())
		}
		return apperr.Wrap(apperr.KindNetwork, op, ctx.Err())
	}
}

func (c *Conn) resolve(msg events.Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		if msg.Error != nil {
			log.Warn().Str("kind", string(msg.Error.Kind)).Str("error", msg.Error.Message).Msg("server error")
		}
		return
	}
	ch <- msg
}

func (c *Conn) failPendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// setStateLocked changes state and returns the notification to publish once
// the lock is released
func (c *Conn) setStateLocked(s State) func() {
	from := c.state
	c.state = s
	if from == s {
		return func() {}
	}
	return func() {
		events.Publish(c.bus, TopicStateChanged, StateChanged{From: from, To: s})
	}
}
